package speech

import (
	"context"
	"time"
)

type mockSynth struct {
	sampleRate int
	channels   int
}

func NewMockSynth(sampleRate, channels int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, channels: channels}
}

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		select {
		case <-ctx.Done():
			errs <- ctx.Err()
			return
		case <-time.After(20 * time.Millisecond):
		}
		chunks <- Chunk{
			SessionID:  req.SessionID,
			Sequence:   0,
			SampleRate: m.sampleRate,
			Channels:   m.channels,
			PCM:        make([]byte, 64),
			Final:      true,
		}
	}()
	return chunks, errs
}
