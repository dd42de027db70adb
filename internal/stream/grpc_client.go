package stream

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"

	"db-health-agent/internal/model"
)

type jsonCodec struct{}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// GRPCClient sends report frames on a client stream using the JSON codec, so the backend
// needs no generated protobuf types.
type GRPCClient struct {
	mu sync.Mutex

	logger       *slog.Logger
	addr         string
	tlsConfig    *tls.Config
	token        string
	reportMethod string
	conn         *grpc.ClientConn
	reportStream grpc.ClientStream
	streamCancel context.CancelFunc
	dialTimeout  time.Duration
}

func NewGRPCClient(addr string, tlsCfg *tls.Config, token, reportMethod string, logger *slog.Logger) *GRPCClient {
	encoding.RegisterCodec(jsonCodec{})
	return &GRPCClient{
		logger:       logger,
		addr:         addr,
		tlsConfig:    tlsCfg,
		token:        token,
		reportMethod: reportMethod,
		dialTimeout:  8 * time.Second,
	}
}

func (c *GRPCClient) SendReport(ctx context.Context, r model.Report) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureConnLocked(ctx); err != nil {
		return err
	}
	if c.reportStream == nil {
		if err := c.openReportStreamLocked(); err != nil {
			return err
		}
	}
	frame := NewReportFrame(r)
	if err := c.sendLocked(ctx, frame); err != nil {
		c.closeStreamLocked()
		if ctx.Err() != nil {
			return fmt.Errorf("send report frame: %w", err)
		}
		c.logger.Warn("grpc report send failed, reopening stream", "report_id", r.ID, "error", err)
		if err2 := c.openReportStreamLocked(); err2 != nil {
			return fmt.Errorf("reopen report stream: %w", err2)
		}
		if err2 := c.sendLocked(ctx, frame); err2 != nil {
			c.closeStreamLocked()
			return fmt.Errorf("send report frame: %w", err2)
		}
	}
	return nil
}

// sendLocked bounds SendMsg by ctx: a stalled stream is torn down when ctx ends.
func (c *GRPCClient) sendLocked(ctx context.Context, frame ReportFrame) error {
	stream := c.reportStream
	errCh := make(chan error, 1)
	go func() {
		errCh <- stream.SendMsg(frame)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		c.closeStreamLocked()
		return ctx.Err()
	}
}

func (c *GRPCClient) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reportStream != nil {
		_ = c.reportStream.CloseSend()
	}
	c.closeStreamLocked()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	_ = ctx
	return nil
}

func (c *GRPCClient) ensureConnLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	dialCtx, cancel := context.WithTimeout(context.Background(), c.dialTimeout)
	defer cancel()
	if dl, ok := ctx.Deadline(); ok {
		dialCtx, cancel = context.WithDeadline(context.Background(), dl)
		defer cancel()
	}

	var creds credentials.TransportCredentials
	if c.tlsConfig != nil {
		creds = credentials.NewTLS(c.tlsConfig)
	} else {
		creds = insecure.NewCredentials()
	}

	conn, err := grpc.DialContext(
		dialCtx,
		c.addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithBlock(),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
	)
	if err != nil {
		return fmt.Errorf("grpc dial %s: %w", c.addr, err)
	}
	c.conn = conn
	c.logger.Info("grpc stream connected", "addr", c.addr)
	return nil
}

// openReportStreamLocked opens a long-lived stream. Its context is independent of any single
// send so a per-report timeout does not close it.
func (c *GRPCClient) openReportStreamLocked() error {
	if c.conn == nil {
		return fmt.Errorf("grpc conn is nil")
	}
	streamCtx, cancel := context.WithCancel(context.Background())
	if c.token != "" {
		streamCtx = metadata.AppendToOutgoingContext(streamCtx, "authorization", "Bearer "+c.token)
	}
	s, err := c.conn.NewStream(streamCtx, &grpc.StreamDesc{ClientStreams: true}, c.reportMethod)
	if err != nil {
		cancel()
		return fmt.Errorf("open report stream: %w", err)
	}
	c.reportStream = s
	c.streamCancel = cancel
	return nil
}

func (c *GRPCClient) closeStreamLocked() {
	if c.streamCancel != nil {
		c.streamCancel()
		c.streamCancel = nil
	}
	c.reportStream = nil
}
