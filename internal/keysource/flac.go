package keysource

import (
	"errors"
	"fmt"
	"io"

	"github.com/ColonelBlimp/cwkeyer/internal/log"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

// ErrEmptyRecording is returned for a recording without audio
var ErrEmptyRecording = errors.New("recording has no samples")

const (
	// FLACBlockSize is the number of samples per frame written by WriteFLAC
	FLACBlockSize = 4096
	// FLACBitsPerSample is the sample depth written by WriteFLAC
	FLACBitsPerSample = 16

	// defaultChunk matches the capture buffer size
	defaultChunk = 512
)

// ReadFLAC decodes the first channel of a FLAC stream into samples scaled to
// -1.0..1.0 and returns them with the stream's sample rate.
func ReadFLAC(r io.Reader) ([]float32, float64, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, 0, fmt.Errorf("open flac: %w", err)
	}
	defer stream.Close()

	info := stream.Info
	if info.BitsPerSample == 0 || info.NChannels == 0 {
		return nil, 0, errors.New("open flac: bad stream info")
	}
	scale := float32(int64(1) << (info.BitsPerSample - 1))

	samples := make([]float32, 0, info.NSamples)
	for {
		f, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("decode flac frame: %w", err)
		}
		for _, s := range f.Subframes[0].Samples {
			samples = append(samples, float32(s)/scale)
		}
	}
	if len(samples) == 0 {
		return nil, 0, ErrEmptyRecording
	}

	log.Component("recording").Debug().
		Uint32("sample_rate", info.SampleRate).
		Uint8("channels", info.NChannels).
		Uint8("bits", info.BitsPerSample).
		Int("samples", len(samples)).
		Msg("flac decoded")
	return samples, float64(info.SampleRate), nil
}

// WriteFLAC encodes samples as 16-bit mono FLAC. The last frame is padded
// with silence to a whole block. w is not closed.
func WriteFLAC(w io.Writer, samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return ErrEmptyRecording
	}
	blocks := (len(samples) + FLACBlockSize - 1) / FLACBlockSize

	info := &meta.StreamInfo{
		BlockSizeMin:  FLACBlockSize,
		BlockSizeMax:  FLACBlockSize,
		SampleRate:    uint32(sampleRate),
		NChannels:     1,
		BitsPerSample: FLACBitsPerSample,
		NSamples:      uint64(blocks * FLACBlockSize),
	}

	// the encoder closes writers it can; the caller owns w
	var out io.Writer = struct{ io.Writer }{w}
	if ws, ok := w.(io.WriteSeeker); ok {
		out = struct{ io.WriteSeeker }{ws}
	}
	enc, err := flac.NewEncoder(out, info)
	if err != nil {
		return fmt.Errorf("creating flac encoder: %w", err)
	}

	const fullScale = 1<<(FLACBitsPerSample-1) - 1
	for b := 0; b < blocks; b++ {
		block := make([]int32, FLACBlockSize)
		for i, s := range samples[b*FLACBlockSize : min((b+1)*FLACBlockSize, len(samples))] {
			block[i] = int32(max(-1, min(1, s)) * fullScale)
		}

		f := &frame.Frame{
			Header: frame.Header{
				BlockSize:     FLACBlockSize,
				SampleRate:    uint32(sampleRate),
				Channels:      frame.ChannelsMono,
				BitsPerSample: FLACBitsPerSample,
			},
			Subframes: []*frame.Subframe{{
				SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
				Samples:   block,
				NSamples:  FLACBlockSize,
			}},
		}
		if err := enc.WriteFrame(f); err != nil {
			return fmt.Errorf("writing flac frame: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("closing flac encoder: %w", err)
	}
	return nil
}
