package stream

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"

	"db-health-agent/internal/config"
)

func NewSinkFromConfig(ctx context.Context, cfg config.Config, tlsCfg *tls.Config, logger *slog.Logger) (Sink, error) {
	switch cfg.StreamMode {
	case config.StreamModeGRPC:
		return NewGRPCClient(cfg.BackendGRPCAddr, tlsCfg, cfg.BackendToken, cfg.GRPCReportMethod, logger), nil
	case config.StreamModeWebSocket:
		return NewWebSocketClient(cfg.BackendWSURL, cfg.BackendToken, tlsCfg, cfg.SinkWriteTimeout, cfg.WebSocketPing, logger), nil
	case config.StreamModeSQLite:
		sink, err := NewSQLiteSink(ctx, cfg.SQLitePath, cfg.SQLiteRetention, logger)
		if err != nil {
			return nil, err
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("unsupported stream mode %q", cfg.StreamMode)
	}
}
