package vision

import (
	"context"
	"sync"
	"time"

	"github.com/signstream-labs/signstream/internal/protocol"
)

type mockClassifier struct {
	mu   sync.Mutex
	next int
}

var mockSequence = []protocol.Observation{
	{Label: "Hello", Confidence: 92},
	{Label: "Hello", Confidence: 88},
	{Label: "Thanks", Confidence: 47},
	{Label: protocol.SentinelLabel, Confidence: 0},
	{Label: "Yes", Confidence: 81},
}

// NewMockClassifier cycles through a fixed set of observations so the full
// pipeline can run without a model backend.
func NewMockClassifier() Classifier {
	return &mockClassifier{}
}

func (m *mockClassifier) Classify(_ context.Context, frame protocol.Frame) (protocol.Observation, error) {
	m.mu.Lock()
	obs := mockSequence[m.next%len(mockSequence)]
	m.next++
	m.mu.Unlock()

	obs.SessionID = frame.SessionID
	obs.Sequence = frame.Sequence
	obs.Timestamp = time.Now().UTC()
	return obs, nil
}
