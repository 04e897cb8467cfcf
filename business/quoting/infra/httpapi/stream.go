package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/fd1az/quote-engine/business/quoting/app"
	"github.com/fd1az/quote-engine/business/quoting/infra/redisfeed"
	"github.com/fd1az/quote-engine/internal/logger"
)

const (
	streamBuffer       = 64
	streamWriteTimeout = 5 * time.Second
)

// StreamHub fans watcher updates out to websocket subscribers. A subscriber whose buffer is
// full misses updates instead of stalling the watcher.
type StreamHub struct {
	mu   sync.RWMutex
	subs map[chan redisfeed.Snapshot]struct{}
}

var _ app.QuotePublisher = (*StreamHub)(nil)

func NewStreamHub() *StreamHub {
	return &StreamHub{subs: make(map[chan redisfeed.Snapshot]struct{})}
}

// Publish implements app.QuotePublisher.
func (h *StreamHub) Publish(_ context.Context, u app.QuoteUpdate) error {
	snap := redisfeed.FromUpdate(u)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	return nil
}

// Subscribers returns the number of open streams.
func (h *StreamHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *StreamHub) subscribe() (<-chan redisfeed.Snapshot, func()) {
	ch := make(chan redisfeed.Snapshot, streamBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

// StreamHandler upgrades GET /api/v1/stream to a websocket that receives every update as JSON.
type StreamHandler struct {
	hub            *StreamHub
	originPatterns []string
	logger         logger.LoggerInterface
}

var _ ConnHandler = (*StreamHandler)(nil)

// NewStreamHandler creates the handler. originPatterns follows websocket.AcceptOptions; empty
// means same-origin only.
func NewStreamHandler(hub *StreamHub, originPatterns []string, log logger.LoggerInterface) *StreamHandler {
	return &StreamHandler{hub: hub, originPatterns: originPatterns, logger: log}
}

func (h *StreamHandler) Root() string {
	return "/stream"
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		// Accept has already written the error response.
		h.logger.Debug(r.Context(), "websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	updates, unsubscribe := h.hub.subscribe()
	defer unsubscribe()

	// Clients never send; CloseRead handles control frames and cancels ctx on disconnect.
	ctx := conn.CloseRead(r.Context())
	h.logger.Debug(ctx, "stream opened", "client", r.RemoteAddr, "subscribers", h.hub.Subscribers())

	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-updates:
			wctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := wsjson.Write(wctx, conn, snap)
			cancel()
			if err != nil {
				h.logger.Debug(ctx, "stream closed", "client", r.RemoteAddr, "error", err)
				return
			}
		}
	}
}
