package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/signstream-labs/signstream/internal/config"
	"github.com/signstream-labs/signstream/internal/protocol"
)

const classifyPrompt = "Identify the sign shown in this image."

type ollamaClassifier struct {
	endpoint    string
	model       string
	instruction string
	apiKey      string
	client      *http.Client
}

func NewOllamaClassifier(cfg config.VisionConfig) Classifier {
	return &ollamaClassifier{
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		instruction: cfg.Instruction,
		apiKey:      cfg.APIKey,
		client:      http.DefaultClient,
	}
}

type ollamaRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	System string   `json:"system,omitempty"`
	Images []string `json:"images"`
	Format string   `json:"format,omitempty"`
	Stream bool     `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type signPayload struct {
	Sign       string `json:"sign"`
	Confidence int    `json:"confidence"`
}

func (o *ollamaClassifier) Classify(ctx context.Context, frame protocol.Frame) (protocol.Observation, error) {
	payload := ollamaRequest{
		Model:  o.model,
		Prompt: classifyPrompt,
		System: o.instruction,
		Images: []string{base64.StdEncoding.EncodeToString(frame.JPEG)},
		Format: "json",
		Stream: false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return protocol.Observation{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return protocol.Observation{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return protocol.Observation{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return protocol.Observation{}, fmt.Errorf("vision endpoint returned status %s", resp.Status)
	}

	var decoded ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return protocol.Observation{}, fmt.Errorf("decode vision response: %w", err)
	}

	var sign signPayload
	if err := json.Unmarshal([]byte(decoded.Response), &sign); err != nil {
		return protocol.Observation{}, fmt.Errorf("decode sign payload: %w", err)
	}

	return protocol.Observation{
		Label:      sign.Sign,
		Confidence: sign.Confidence,
		Timestamp:  time.Now().UTC(),
	}, nil
}
