package speech

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execSynth shells out to a TTS command that reads one JSON request on stdin
// and streams JSON chunk lines with base64 PCM on stdout.
type execSynth struct {
	cmd        []string
	sampleRate int
	channels   int
	mu         sync.Mutex
}

type execRequest struct {
	Text       string `json:"text"`
	Voice      string `json:"voice"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type execResponse struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
}

func NewExecSynth(command string, sampleRate, channels int) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse speech command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("speech command empty")
	}
	return &execSynth{cmd: args, sampleRate: sampleRate, channels: channels}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan Chunk, <-chan error) {
	e.mu.Lock()
	chunks := make(chan Chunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		defer e.mu.Unlock()

		payload := execRequest{
			Text:       req.Text,
			Voice:      req.Voice,
			SampleRate: e.sampleRate,
			Channels:   e.channels,
		}
		data, err := json.Marshal(payload)
		if err != nil {
			errs <- err
			return
		}

		base := e.cmd[0]
		args := append([]string{}, e.cmd[1:]...)
		cmd := exec.CommandContext(ctx, base, args...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			errs <- err
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			errs <- err
			return
		}
		if err := cmd.Start(); err != nil {
			errs <- err
			return
		}

		if _, err := stdin.Write(data); err != nil {
			errs <- err
			cmd.Wait()
			return
		}
		stdin.Close()

		scanner := bufio.NewScanner(stdout)
		sequence := 0
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var resp execResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				errs <- err
				cmd.Wait()
				return
			}
			pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
			if err != nil {
				errs <- err
				cmd.Wait()
				return
			}
			select {
			case chunks <- Chunk{
				SessionID:  req.SessionID,
				Sequence:   sequence,
				SampleRate: e.sampleRate,
				Channels:   e.channels,
				PCM:        pcm,
				Final:      resp.Final,
			}:
			case <-ctx.Done():
				errs <- ctx.Err()
				cmd.Wait()
				return
			}
			sequence++
		}
		if err := cmd.Wait(); err != nil {
			errs <- err
			return
		}
		if scanErr := scanner.Err(); scanErr != nil {
			errs <- scanErr
		}
	}()
	return chunks, errs
}
