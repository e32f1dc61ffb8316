// Package audio converts captured float samples into the linear PCM frames
// streamed to the speech service.
package audio

import (
	"context"
	"encoding/binary"
	"math"

	"interview-transcription-service/internal/observability/metrics"
)

// BytesPerSample is the width of one LINEAR16 sample.
const BytesPerSample = 2

// EncodePCM16 converts normalized samples in [-1,1] to 16-bit signed
// little-endian PCM. Out-of-range samples are clamped; NaN encodes as silence.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(sampleToInt16(s)))
	}
	return out
}

func sampleToInt16(s float32) int16 {
	switch {
	case math.IsNaN(float64(s)):
		return 0
	case s >= 1:
		return math.MaxInt16
	case s <= -1:
		return math.MinInt16
	case s < 0:
		return int16(s * 0x8000)
	default:
		return int16(s * 0x7FFF)
	}
}

// DecodePCM16 converts 16-bit signed little-endian PCM to normalized samples.
// A trailing odd byte is ignored.
func DecodePCM16(b []byte) []float32 {
	out := make([]float32, len(b)/BytesPerSample)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(b[i*BytesPerSample:]))
		if v < 0 {
			out[i] = float32(v) / 0x8000
		} else {
			out[i] = float32(v) / 0x7FFF
		}
	}
	return out
}

// DecodeFloat32LE converts little-endian IEEE-754 float32 bytes to samples.
// Trailing bytes that do not form a full sample are ignored.
func DecodeFloat32LE(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// EncodeFloat32LE is the inverse of DecodeFloat32LE.
func EncodeFloat32LE(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// Encoder turns a chunk stream into PCM frames. Each streaming session owns
// its own Encoder; Stream may be called again after a previous stream ended.
type Encoder struct {
	source     string
	sampleRate int
	metrics    *metrics.Metrics
}

// NewEncoder creates an encoder for one source.
func NewEncoder(source string, sampleRate int) *Encoder {
	return &Encoder{
		source:     source,
		sampleRate: sampleRate,
		metrics:    metrics.DefaultMetrics,
	}
}

// Stream yields one frame per incoming chunk. Chunks holding more samples
// than one second of audio are dropped. The returned channel is closed when
// chunks closes or ctx ends.
func (e *Encoder) Stream(ctx context.Context, chunks <-chan []float32) <-chan []byte {
	out := make(chan []byte)

	go func() {
		defer close(out)
		for {
			var chunk []float32
			var ok bool
			select {
			case <-ctx.Done():
				return
			case chunk, ok = <-chunks:
				if !ok {
					return
				}
			}

			if len(chunk) == 0 {
				continue
			}
			if e.sampleRate > 0 && len(chunk) > e.sampleRate {
				e.metrics.RecordChunkDropped(e.source, "oversized")
				continue
			}

			select {
			case out <- EncodePCM16(chunk):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
