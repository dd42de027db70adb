package version

import (
	"time"

	"db-health-agent/internal/config"
)

func Get(cfg config.Config, now time.Time) *GetVersionResponse {
	return &GetVersionResponse{
		NodeID:          cfg.NodeID,
		Hostname:        cfg.Hostname,
		AgentVersion:    cfg.AgentVersion,
		StreamMode:      string(cfg.StreamMode),
		ProbeListenAddr: cfg.ProbeListenAddr,
		CheckedAtUnix:   now.UTC().Unix(),
	}
}
