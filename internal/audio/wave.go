package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const (
	waveHeaderSize = 44
	bitsPerSample  = 16
	monoChannels   = 1
)

// ErrNotWave 表示文件不是可识别的 PCM WAV。
var ErrNotWave = errors.New("不是有效的 WAV 文件")

// WaveInfo 描述一个 16-bit PCM WAV 文件。
type WaveInfo struct {
	SampleRate int
	Channels   int
	Bits       int
	Samples    int
}

// Duration 返回音频时长。
func (w WaveInfo) Duration() time.Duration {
	if w.SampleRate <= 0 || w.Channels <= 0 {
		return 0
	}
	frames := w.Samples / w.Channels
	return time.Duration(frames) * time.Second / time.Duration(w.SampleRate)
}

// EncodeWave 将单声道 float32 样本编码为 16-bit PCM WAV 写入 w。
func EncodeWave(w io.Writer, sampleRate int, samples []float32) error {
	if sampleRate <= 0 {
		return fmt.Errorf("采样率无效: %d", sampleRate)
	}
	dataSize := uint32(len(samples) * 2)
	blockAlign := uint16(monoChannels * bitsPerSample / 8)

	hdr := struct {
		RIFF          [4]byte
		ChunkSize     uint32
		WAVE          [4]byte
		Fmt           [4]byte
		FmtSize       uint32
		AudioFormat   uint16
		Channels      uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
		Data          [4]byte
		DataSize      uint32
	}{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		Channels:      monoChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(blockAlign),
		BlockAlign:    blockAlign,
		BitsPerSample: bitsPerSample,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      dataSize,
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("写入 WAV 头失败: %w", err)
	}
	if _, err := bw.Write(Float32ToPCM16(samples)); err != nil {
		return fmt.Errorf("写入 PCM 数据失败: %w", err)
	}
	return bw.Flush()
}

// WriteWave 将样本写入 path，必要时创建父目录。写入失败时不会留下不完整的文件。
func WriteWave(path string, sampleRate int, samples []float32) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("创建 WAV 文件失败: %w", err)
	}
	if err := EncodeWave(f, sampleRate, samples); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("关闭 WAV 文件失败: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("重命名 WAV 文件失败: %w", err)
	}
	return nil
}

// ReadWaveInfo 解析 WAV 头。只支持 44 字节标准头的 PCM 文件。
func ReadWaveInfo(path string) (WaveInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return WaveInfo{}, err
	}
	defer f.Close()

	head := make([]byte, waveHeaderSize)
	if _, err := io.ReadFull(f, head); err != nil {
		return WaveInfo{}, ErrNotWave
	}
	return parseHeader(head)
}

// ReadWave 读取 16-bit PCM WAV，返回归一化到 [-1, 1] 的样本。
func ReadWave(path string) ([]float32, WaveInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WaveInfo{}, err
	}
	if len(data) < waveHeaderSize {
		return nil, WaveInfo{}, ErrNotWave
	}
	info, err := parseHeader(data[:waveHeaderSize])
	if err != nil {
		return nil, WaveInfo{}, err
	}

	pcm := data[waveHeaderSize:]
	if len(pcm) > info.Samples*2 {
		pcm = pcm[:info.Samples*2]
	}
	out := PCM16ToFloat32(pcm)
	info.Samples = len(out)
	return out, info, nil
}

func parseHeader(h []byte) (WaveInfo, error) {
	if string(h[0:4]) != "RIFF" || string(h[8:12]) != "WAVE" || string(h[12:16]) != "fmt " {
		return WaveInfo{}, ErrNotWave
	}
	if binary.LittleEndian.Uint16(h[20:22]) != 1 || string(h[36:40]) != "data" {
		return WaveInfo{}, ErrNotWave
	}
	info := WaveInfo{
		Channels:   int(binary.LittleEndian.Uint16(h[22:24])),
		SampleRate: int(binary.LittleEndian.Uint32(h[24:28])),
		Bits:       int(binary.LittleEndian.Uint16(h[34:36])),
	}
	if info.Bits != bitsPerSample {
		return WaveInfo{}, fmt.Errorf("%w: 不支持 %d bit", ErrNotWave, info.Bits)
	}
	info.Samples = int(binary.LittleEndian.Uint32(h[40:44])) / 2
	return info, nil
}
