package stream

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"db-health-agent/internal/model"
)

// WebSocketClient writes each report as one JSON envelope text frame.
type WebSocketClient struct {
	mu sync.Mutex

	logger       *slog.Logger
	url          string
	token        string
	tlsConfig    *tls.Config
	writeTimeout time.Duration
	pingInterval time.Duration
	session      *wsSession
}

// wsSession is one dialed connection and its keepalive goroutine.
type wsSession struct {
	conn *websocket.Conn
	stop context.CancelFunc
}

func NewWebSocketClient(url, token string, tlsCfg *tls.Config, writeTimeout, pingInterval time.Duration, logger *slog.Logger) *WebSocketClient {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 10 * time.Second
	}
	return &WebSocketClient{
		logger:       logger,
		url:          url,
		token:        token,
		tlsConfig:    tlsCfg,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
	}
}

// SendReport writes r, redialing once if the current connection turns out to be dead.
func (c *WebSocketClient) SendReport(ctx context.Context, r model.Report) error {
	payload, err := EncodeEnvelope(model.NewReportEnvelope(r))
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		s, err := c.sessionLocked(wctx)
		if err != nil {
			return err
		}
		if lastErr = s.conn.Write(wctx, websocket.MessageText, payload); lastErr == nil {
			return nil
		}
		c.logger.Warn("websocket write failed", "report_id", r.ID, "attempt", attempt+1, "error", lastErr)
		c.endSessionLocked(s, websocket.StatusInternalError, "reconnect")
		if wctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("write report %s: %w", r.ID, lastErr)
}

func (c *WebSocketClient) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	if s == nil {
		return nil
	}
	c.session = nil
	s.stop()
	_ = ctx
	return s.conn.Close(websocket.StatusNormalClosure, "shutdown")
}

func (c *WebSocketClient) sessionLocked(ctx context.Context) (*wsSession, error) {
	if c.session != nil {
		return c.session, nil
	}
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	opt := &websocket.DialOptions{HTTPHeader: h}
	if c.tlsConfig != nil {
		opt.HTTPClient = &http.Client{Transport: &http.Transport{TLSClientConfig: c.tlsConfig}}
	}
	conn, _, err := websocket.Dial(ctx, c.url, opt)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", c.url, err)
	}
	conn.SetReadLimit(1 << 20)

	// The backend never sends data frames; CloseRead keeps control frames (pongs, close) flowing.
	keepCtx, stop := context.WithCancel(context.Background())
	s := &wsSession{conn: conn, stop: stop}
	go c.keepalive(conn.CloseRead(keepCtx), s)

	c.session = s
	c.logger.Info("websocket stream connected", "url", c.url)
	return s, nil
}

// endSessionLocked closes s if it is still the current session.
func (c *WebSocketClient) endSessionLocked(s *wsSession, code websocket.StatusCode, reason string) {
	if c.session != s {
		return
	}
	c.session = nil
	s.stop()
	_ = s.conn.Close(code, reason)
}

// keepalive pings until the session ends. A failed ping drops the session so the next report redials.
func (c *WebSocketClient) keepalive(ctx context.Context, s *wsSession) {
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
			err := s.conn.Ping(pingCtx)
			cancel()
			if err == nil {
				continue
			}
			c.logger.Debug("websocket ping failed, dropping connection", "error", err)
			c.mu.Lock()
			c.endSessionLocked(s, websocket.StatusGoingAway, "ping timeout")
			c.mu.Unlock()
			return
		}
	}
}
