package queue

import "encoding/json"

// Signals carried by queue messages.
const (
	SignalStart  = "start"
	SignalResume = "resume"
)

// Message is the payload sent to pipeline workers.
type Message struct {
	AnalysisID string `json:"analysisId"`
	Signal     string `json:"signal"`
	RequestID  string `json:"requestId"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
