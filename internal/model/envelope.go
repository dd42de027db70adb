package model

type MessageType string

const (
	MessageTypeHealthReport MessageType = "health_report"
)

// Envelope is transport-agnostic framing for stream payloads.
type Envelope struct {
	Type          MessageType `json:"type"`
	NodeID        string      `json:"node_id"`
	TimestampUnix int64       `json:"timestamp_unix"`
	Payload       any         `json:"payload"`
}

func NewReportEnvelope(r Report) Envelope {
	return Envelope{Type: MessageTypeHealthReport, NodeID: r.NodeID, TimestampUnix: r.CompletedAt.Unix(), Payload: r}
}
