package audio

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEncodeWave_Header(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeWave(&buf, 22050, []float32{0, 0.5, -0.5}); err != nil {
		t.Fatalf("EncodeWave failed: %v", err)
	}
	b := buf.Bytes()
	if len(b) != waveHeaderSize+6 {
		t.Fatalf("expected %d bytes, got %d", waveHeaderSize+6, len(b))
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" || string(b[36:40]) != "data" {
		t.Errorf("unexpected header: %q", b[:44])
	}
	info, err := parseHeader(b[:waveHeaderSize])
	if err != nil {
		t.Fatalf("parseHeader failed: %v", err)
	}
	if info.SampleRate != 22050 || info.Channels != 1 || info.Bits != 16 || info.Samples != 3 {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestEncodeWave_InvalidRate(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeWave(&buf, 0, []float32{0}); err == nil {
		t.Errorf("expected error for zero sample rate")
	}
}

func TestWriteReadWave_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "a.wav")
	in := []float32{0, 1.0, -1.0, 0.25}
	if err := WriteWave(path, 16000, in); err != nil {
		t.Fatalf("WriteWave failed: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file should not remain")
	}

	out, info, err := ReadWave(path)
	if err != nil {
		t.Fatalf("ReadWave failed: %v", err)
	}
	if info.SampleRate != 16000 || len(out) != len(in) {
		t.Fatalf("unexpected info %+v, %d samples", info, len(out))
	}
	// 0 与 ±1 量化后可以精确还原
	for i, want := range []float32{0, 1.0, -1.0} {
		if out[i] != want {
			t.Errorf("sample %d: got %f, want %f", i, out[i], want)
		}
	}
	if d := math.Abs(float64(out[3] - 0.25)); d > 1e-4 {
		t.Errorf("sample 3 off by %f", d)
	}
}

func TestReadWaveInfo_Duration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	if err := WriteWave(path, 8000, make([]float32, 4000)); err != nil {
		t.Fatal(err)
	}
	info, err := ReadWaveInfo(path)
	if err != nil {
		t.Fatalf("ReadWaveInfo failed: %v", err)
	}
	if info.Duration() != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %s", info.Duration())
	}
}

func TestReadWaveInfo_NotWave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	os.WriteFile(path, []byte("RIFF....WAVE"), 0644)
	if _, err := ReadWaveInfo(path); !errors.Is(err, ErrNotWave) {
		t.Errorf("expected ErrNotWave, got %v", err)
	}
}
