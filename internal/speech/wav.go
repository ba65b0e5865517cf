package speech

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeWAV spools 16-bit little-endian PCM to a WAV file for the player
// command.
func writeWAV(path string, pcm []byte, sampleRate, channels int) error {
	if len(pcm)%2 != 0 {
		return fmt.Errorf("pcm payload not aligned")
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}
	defer file.Close()

	buffer := &audio.IntBuffer{Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate}}
	samples := make([]int, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer.Data = samples

	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
