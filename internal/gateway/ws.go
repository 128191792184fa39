package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/packetmux/packetmux/internal/broadcast"
	"github.com/packetmux/packetmux/internal/config"
)

// wsRateLimit and wsRateBurst bound inbound input frames per connection.
// Bursts cover paste operations; sustained flooding is dropped.
const (
	wsRateLimit = 200
	wsRateBurst = 200
)

// inputFrame is one message from the renderer. Type selects the action:
// "write" delivers to one session, "broadcast" fans out, "key" translates a
// named control key then fans out, "line" runs the colon-command parser, and
// "resize" changes one session's geometry.
type inputFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      string `json:"data,omitempty"`
	Key       string `json:"key,omitempty"`
	Cols      uint16 `json:"cols,omitempty"`
	Rows      uint16 `json:"rows,omitempty"`
}

// eventsWS streams registry events to the renderer and accepts input frames
// back. Each connection gets its own subscription; a slow connection drops
// its own events and never stalls a session's reader.
func (s *Server) eventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[gateway] websocket accept failed: %v", err)
		return
	}
	defer conn.CloseNow()

	conn.SetReadLimit(1024 * 1024)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := s.reg.Subscribe(config.Cfg.EventBuffer)
	defer unsubscribe()

	// Registry -> renderer.
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				payload, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
					return
				}
			}
		}
	}()

	// Renderer -> sessions.
	limiter := newTokenBucket(wsRateBurst, wsRateLimit)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		if !limiter.allow() {
			continue
		}

		var frame inputFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		s.handleInputFrame(frame)
	}

	conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) handleInputFrame(frame inputFrame) {
	switch frame.Type {
	case "write":
		if frame.SessionID == "" {
			return
		}
		if err := s.reg.WriteTo(frame.SessionID, []byte(frame.Data)); err != nil {
			log.Printf("[gateway] ws write to %s failed: %v", frame.SessionID, err)
		}
	case "broadcast":
		s.router.Broadcast(frame.Data)
	case "key":
		b, ok := broadcast.TranslateKey(frame.Key)
		if !ok {
			return
		}
		if frame.SessionID != "" {
			s.reg.WriteTo(frame.SessionID, b)
			return
		}
		s.router.Broadcast(string(b))
	case "line":
		if !s.router.Exec(frame.Data) {
			// Not a command: deliver as keystrokes.
			s.router.Broadcast(frame.Data)
		}
	case "resize":
		if frame.SessionID == "" || frame.Cols == 0 || frame.Rows == 0 {
			return
		}
		if err := s.reg.Resize(frame.SessionID, frame.Cols, frame.Rows); err != nil {
			log.Printf("[gateway] ws resize %s failed: %v", frame.SessionID, err)
		}
	}
}

// tokenBucket is a simple per-connection rate limiter for input frames.
type tokenBucket struct {
	tokens     int
	maxTokens  int
	refillRate int // tokens added per second
	lastRefill time.Time
}

func newTokenBucket(maxTokens, refillRate int) *tokenBucket {
	return &tokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

func (tb *tokenBucket) allow() bool {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)
	tb.lastRefill = now

	tb.tokens += int(elapsed.Seconds() * float64(tb.refillRate))
	if tb.tokens > tb.maxTokens {
		tb.tokens = tb.maxTokens
	}

	if tb.tokens <= 0 {
		return false
	}
	tb.tokens--
	return true
}
