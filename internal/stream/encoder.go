package stream

import (
	"context"
	"encoding/json"

	"db-health-agent/internal/model"
)

// Sink delivers one report. Implementations own their connection and reconnect lazily on
// the next send after a failure.
type Sink interface {
	SendReport(ctx context.Context, r model.Report) error
	Close(ctx context.Context) error
}

type ReportFrame struct {
	NodeID        string       `json:"node_id"`
	TimestampUnix int64        `json:"timestamp_unix"`
	Report        model.Report `json:"report"`
}

func EncodeEnvelope(e model.Envelope) ([]byte, error) {
	return json.Marshal(e)
}

func NewReportFrame(r model.Report) ReportFrame {
	return ReportFrame{NodeID: r.NodeID, TimestampUnix: r.CompletedAt.UTC().Unix(), Report: r}
}
