package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trading-agent-lab/internal/domain"
)

// WSConfig configures the websocket tick source.
type WSConfig struct {
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration // per frame; a context deadline takes precedence
	WriteTimeout     time.Duration
}

// DefaultWSConfig returns default websocket settings.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// WSSource reads JSON-encoded domain.MarketState frames from a websocket.
// A normal close from the server ends the feed.
type WSSource struct {
	cfg  WSConfig
	mu   sync.Mutex
	conn *websocket.Conn
}

// Compile-time interface check.
var _ TickSource = (*WSSource)(nil)

// DialWS connects to endpoint. A nil cfg uses DefaultWSConfig.
func DialWS(ctx context.Context, endpoint string, cfg *WSConfig) (*WSSource, error) {
	c := DefaultWSConfig()
	if cfg != nil {
		c = *cfg
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return &WSSource{cfg: c, conn: conn}, nil
}

// NextTick blocks for the next frame.
func (s *WSSource) NextTick(ctx context.Context) (*domain.MarketState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := time.Now().Add(s.cfg.ReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}

	_, data, err := s.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, ErrEndOfFeed
		}
		return nil, fmt.Errorf("read tick frame: %w", err)
	}

	var m domain.MarketState
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: decode frame: %w", ErrInvalidTick, err)
	}
	if err := validateTick(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Close sends a close frame and closes the connection. Safe to call while
// NextTick is blocked; the pending read returns an error.
func (s *WSSource) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	werr := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteTimeout))
	cerr := s.conn.Close()
	if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
		return errors.Join(werr, cerr)
	}
	return cerr
}
