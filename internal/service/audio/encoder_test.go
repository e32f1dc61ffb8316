package audio

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func TestEncodePCM16(t *testing.T) {
	tests := []struct {
		name   string
		sample float32
		want   int16
	}{
		{"zero", 0, 0},
		{"full positive", 1, math.MaxInt16},
		{"full negative", -1, math.MinInt16},
		{"half positive", 0.5, 16383},
		{"half negative", -0.5, -16384},
		{"clamp high", 1.7, math.MaxInt16},
		{"clamp low", -3, math.MinInt16},
		{"nan", float32(math.NaN()), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := EncodePCM16([]float32{tt.sample})
			if len(b) != 2 {
				t.Fatalf("expected 2 bytes, got %d", len(b))
			}
			got := int16(binary.LittleEndian.Uint16(b))
			if got != tt.want {
				t.Errorf("EncodePCM16(%v) = %d, want %d", tt.sample, got, tt.want)
			}
		})
	}
}

func TestEncodePCM16_LittleEndian(t *testing.T) {
	b := EncodePCM16([]float32{1})
	if b[0] != 0xFF || b[1] != 0x7F {
		t.Errorf("expected little-endian 0x7FFF, got % x", b)
	}
}

func TestDecodePCM16_RoundTrip(t *testing.T) {
	in := []float32{0, 0.25, -0.25, 1, -1}
	out := DecodePCM16(EncodePCM16(in))
	for i := range in {
		if math.Abs(float64(in[i]-out[i])) > 1.0/0x7FFF {
			t.Errorf("sample %d: got %f, want %f", i, out[i], in[i])
		}
	}
	if len(DecodePCM16([]byte{1, 2, 3})) != 1 {
		t.Error("expected trailing odd byte to be ignored")
	}
}

func TestFloat32LE(t *testing.T) {
	in := []float32{0.1, -0.9, 0}
	out := DecodeFloat32LE(EncodeFloat32LE(in))
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("sample %d: got %f, want %f", i, out[i], in[i])
		}
	}
}

func TestEncoder_Stream(t *testing.T) {
	enc := NewEncoder("microphone", 16000)
	chunks := make(chan []float32, 3)
	chunks <- []float32{0.1, 0.2}
	chunks <- nil
	chunks <- []float32{0.3}
	close(chunks)

	var frames [][]byte
	for f := range enc.Stream(context.Background(), chunks) {
		frames = append(frames, f)
	}

	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if len(frames[0]) != 4 || len(frames[1]) != 2 {
		t.Errorf("unexpected frame sizes %d, %d", len(frames[0]), len(frames[1]))
	}
}

func TestEncoder_DropsOversizedChunks(t *testing.T) {
	enc := NewEncoder("display", 4)
	chunks := make(chan []float32, 2)
	chunks <- make([]float32, 5)
	chunks <- make([]float32, 4)
	close(chunks)

	var frames [][]byte
	for f := range enc.Stream(context.Background(), chunks) {
		frames = append(frames, f)
	}

	if len(frames) != 1 || len(frames[0]) != 8 {
		t.Errorf("expected only the in-budget chunk, got %d frames", len(frames))
	}
}

func TestEncoder_Restartable(t *testing.T) {
	enc := NewEncoder("microphone", 16000)
	chunks := make(chan []float32, 2)

	ctx, cancel := context.WithCancel(context.Background())
	first := enc.Stream(ctx, chunks)
	chunks <- []float32{0.1}
	<-first
	cancel()
	for range first {
	}

	second := enc.Stream(context.Background(), chunks)
	chunks <- []float32{0.2}
	select {
	case f := <-second:
		if len(f) != 2 {
			t.Errorf("expected 2-byte frame, got %d", len(f))
		}
	case <-time.After(time.Second):
		t.Fatal("restarted stream produced no frame")
	}
	close(chunks)
}
