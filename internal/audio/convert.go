package audio

import (
	"encoding/binary"
	"math"
)

// toPCM16 将 float32 样本钳位到 [-1, 1] 后四舍五入量化为 int16。
func toPCM16(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int16(math.Round(float64(s) * math.MaxInt16))
}

// Float32ToPCM16 将 float32 样本转换为小端 16-bit PCM 字节。
func Float32ToPCM16(in []float32) []byte {
	out := make([]byte, len(in)*2)
	for i, s := range in {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(toPCM16(s)))
	}
	return out
}

// PCM16ToFloat32 将小端 16-bit PCM 字节转换为 [-1.0, 1.0] 范围的 float32，
// 末尾不足一个样本的字节被忽略。
func PCM16ToFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/2)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(b[2*i:]))
		out[i] = float32(s) / math.MaxInt16
	}
	return out
}
