package protocol

import "time"

// SentinelLabel stands in for a real classification whenever the vision
// backend fails or the model is unsure. Consumers treat both cases
// identically.
const SentinelLabel = "..."

// Frame is one still image sampled from the camera. Frames are transient:
// they are handed to the classifier and never published on the bus.
type Frame struct {
	SessionID  string
	Sequence   int
	Width      int
	Height     int
	JPEG       []byte
	CapturedAt time.Time
}

// Observation is one classification result broadcast on the bus.
type Observation struct {
	SessionID  string    `json:"session_id"`
	Sequence   int       `json:"sequence"`
	Label      string    `json:"label"`
	Confidence int       `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Sentinel reports whether the observation is the "unclear" placeholder.
func (o Observation) Sentinel() bool {
	return o.Label == SentinelLabel
}

// SentinelObservation builds the fixed "unclear" result for a frame slot.
func SentinelObservation(sessionID string, sequence int, at time.Time) Observation {
	return Observation{
		SessionID:  sessionID,
		Sequence:   sequence,
		Label:      SentinelLabel,
		Confidence: 0,
		Timestamp:  at,
	}
}

// TranscriptEntry is an accepted label appended to the running transcript.
type TranscriptEntry struct {
	SessionID  string    `json:"session_id"`
	Position   int       `json:"position"`
	Label      string    `json:"label"`
	Confidence int       `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// SessionState announces sampler session transitions.
type SessionState struct {
	SessionID string    `json:"session_id"`
	Active    bool      `json:"active"`
	Timestamp time.Time `json:"timestamp"`
}

// SpeechRequest asks the speech service to voice an accepted label.
type SpeechRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Voice     string `json:"voice"`
}

// SpeechStatus reports utterance lifecycle for the UI feed.
type SpeechStatus struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Spoken    bool      `json:"spoken"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectObservation   = "sign.observation"
	SubjectAccepted      = "sign.accepted"
	SubjectSessionState  = "session.state"
	SubjectSpeechRequest = "speech.request"
	SubjectSpeechStatus  = "speech.status"
)
