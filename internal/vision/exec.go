package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/signstream-labs/signstream/internal/config"
	"github.com/signstream-labs/signstream/internal/protocol"
)

type execClassifier struct {
	cmd         []string
	instruction string
	mu          sync.Mutex
}

type execRequest struct {
	ImageBase64 string `json:"image_base64"`
	Instruction string `json:"instruction"`
}

type execResponse struct {
	Sign       string `json:"sign"`
	Confidence int    `json:"confidence"`
}

func NewExecClassifier(cfg config.VisionConfig) (Classifier, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse vision command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("vision command is empty")
	}
	return &execClassifier{cmd: args, instruction: cfg.Instruction}, nil
}

func (e *execClassifier) Classify(ctx context.Context, frame protocol.Frame) (protocol.Observation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	payload := execRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(frame.JPEG),
		Instruction: e.instruction,
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return protocol.Observation{}, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(input)
	output, err := cmd.Output()
	if err != nil {
		return protocol.Observation{}, fmt.Errorf("vision exec command failed: %w", err)
	}

	var resp execResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return protocol.Observation{}, fmt.Errorf("decode vision exec response: %w", err)
	}

	return protocol.Observation{
		Label:      resp.Sign,
		Confidence: resp.Confidence,
		Timestamp:  time.Now().UTC(),
	}, nil
}
