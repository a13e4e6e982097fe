// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	applog "github.com/philcrump/limesdr-fft/internal/log"
	"go.uber.org/zap"
)

// Subprotocol is the websocket protocol name viewers ask for.
const Subprotocol = "fft-main"

const (
	defaultPingInterval = 3 * time.Second
	defaultPongWait     = 10 * time.Second
	defaultWriteWait    = 2 * time.Second
	maxViewerMessage    = 512
)

// errHubClosed is returned to upgrade attempts after Close.
var errHubClosed = errors.New("transport: hub closed")

// ViewerInfo describes one connected viewer.
type ViewerInfo struct {
	ID        string    `json:"id"`
	Remote    string    `json:"remote"`
	Connected time.Time `json:"connected"`
	Cursor    uint64    `json:"cursor"`
	Sent      uint64    `json:"sent"`
}

// viewer is one websocket connection with a single-slot mailbox. The hub
// overwrites the mailbox; the viewer's writer goroutine drains it, so a slow
// socket only ever delays itself.
type viewer struct {
	id        uuid.UUID
	conn      *websocket.Conn
	remote    string
	connected time.Time
	log       *zap.Logger

	cursor atomic.Uint64 // last sequence queued
	sent   atomic.Uint64

	mu         sync.Mutex
	pending    []byte
	pendingSeq uint64
	hasPending bool

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// offer replaces the mailbox contents with frame. Frames not newer than the
// viewer's cursor are ignored.
func (v *viewer) offer(seq uint64, frame []byte) {
	v.mu.Lock()
	if seq <= v.cursor.Load() {
		v.mu.Unlock()
		return
	}
	v.pending = append(v.pending[:0], frame...)
	v.pendingSeq = seq
	v.hasPending = true
	v.cursor.Store(seq)
	v.mu.Unlock()

	select {
	case v.wake <- struct{}{}:
	default:
	}
}

// take swaps the mailbox buffer with spare and returns the frame.
func (v *viewer) take(spare []byte) ([]byte, uint64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.hasPending {
		return spare, 0, false
	}
	frame := v.pending
	v.pending = spare[:0]
	v.hasPending = false
	return frame, v.pendingSeq, true
}

func (v *viewer) close() {
	v.closeOnce.Do(func() {
		close(v.done)
		_ = v.conn.Close()
	})
}

// Hub is the websocket Sink. It serves viewer upgrades as an http.Handler and
// keeps a cursor per viewer so each one receives a given frame at most once.
type Hub struct {
	upgrader websocket.Upgrader
	src      FrameSource

	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration

	mu      sync.RWMutex
	viewers map[uuid.UUID]*viewer
	closed  bool
	wg      sync.WaitGroup
}

// NewHub creates a hub with the default keepalive settings. When src is not
// nil, a newly connected viewer is sent the latest published frame without
// waiting for the next one.
func NewHub(src FrameSource) *Hub {
	return &Hub{
		src: src,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			Subprotocols:    []string{Subprotocol},
			CheckOrigin: func(r *http.Request) bool {
				return true // Viewers are served from any origin
			},
		},
		PingInterval: defaultPingInterval,
		PongWait:     defaultPongWait,
		WriteWait:    defaultWriteWait,
		viewers:      make(map[uuid.UUID]*viewer),
	}
}

// ServeHTTP upgrades the request and registers the viewer.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, errHubClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("Hub: Upgrade error: %v", err)
		return
	}

	id := uuid.New()
	v := &viewer{
		id:        id,
		conn:      conn,
		remote:    r.RemoteAddr,
		connected: time.Now(),
		log:       applog.With(zap.String("viewer", id.String()), zap.String("remote", r.RemoteAddr)),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.viewers[id] = v
	total := len(h.viewers)
	h.wg.Add(2)
	h.mu.Unlock()

	v.log.Info("viewer connected", zap.Int("total", total), zap.String("protocol", conn.Subprotocol()))

	// Registered first so a concurrent Send is never lost; offer drops the
	// seed if a newer frame already arrived.
	if h.src != nil {
		buf := make([]byte, h.src.Capacity())
		if n, seq, ok := h.src.TryReadInto(buf, 0); ok {
			v.offer(seq, buf[:n])
		}
	}

	go h.readLoop(v)
	go h.writeLoop(v)
}

// readLoop discards viewer messages and detects disconnects through the
// pong deadline.
func (h *Hub) readLoop(v *viewer) {
	defer h.wg.Done()
	defer h.remove(v)

	v.conn.SetReadLimit(maxViewerMessage)
	_ = v.conn.SetReadDeadline(time.Now().Add(h.PongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(h.PongWait))
	})

	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				v.log.Debug("viewer read error", zap.Error(err))
			}
			return
		}
	}
}

// writeLoop sends mailbox frames and keepalive pings.
func (h *Hub) writeLoop(v *viewer) {
	defer h.wg.Done()
	defer h.remove(v)

	ping := time.NewTicker(h.PingInterval)
	defer ping.Stop()

	var spare []byte
	for {
		select {
		case <-v.done:
			return
		case <-v.wake:
			frame, seq, ok := v.take(spare)
			if !ok {
				continue
			}
			_ = v.conn.SetWriteDeadline(time.Now().Add(h.WriteWait))
			err := v.conn.WriteMessage(websocket.BinaryMessage, frame)
			spare = frame
			if err != nil {
				v.log.Debug("viewer write failed", zap.Uint64("seq", seq), zap.Error(err))
				return
			}
			v.sent.Add(1)
		case <-ping.C:
			if err := v.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.WriteWait)); err != nil {
				v.log.Debug("viewer ping failed", zap.Error(err))
				return
			}
		}
	}
}

// remove drops v from the hub and closes its connection.
func (h *Hub) remove(v *viewer) {
	h.mu.Lock()
	_, present := h.viewers[v.id]
	delete(h.viewers, v.id)
	total := len(h.viewers)
	h.mu.Unlock()

	v.close()
	if present {
		v.log.Info("viewer disconnected", zap.Int("total", total), zap.Uint64("sent", v.sent.Load()))
	}
}

// Send queues the frame for every viewer that has not been given seq yet.
// It never waits on a socket.
func (h *Hub) Send(seq uint64, frame []byte) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, v := range h.viewers {
		if v.cursor.Load() != seq {
			v.offer(seq, frame)
		}
	}
	return nil
}

// Count returns the number of connected viewers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// Viewers returns a snapshot of the connected viewers.
func (h *Hub) Viewers() []ViewerInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]ViewerInfo, 0, len(h.viewers))
	for _, v := range h.viewers {
		out = append(out, ViewerInfo{
			ID:        v.id.String(),
			Remote:    v.remote,
			Connected: v.connected,
			Cursor:    v.cursor.Load(),
			Sent:      v.sent.Load(),
		})
	}
	return out
}

// Close detaches every viewer and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	viewers := make([]*viewer, 0, len(h.viewers))
	for _, v := range h.viewers {
		viewers = append(viewers, v)
	}
	h.mu.Unlock()

	applog.Infof("Hub: Closing %d viewer connections", len(viewers))
	for _, v := range viewers {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		_ = v.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.WriteWait))
		v.close()
	}
	h.wg.Wait()
	return nil
}

// Ensure Hub satisfies the interfaces at compile time.
var (
	_ Sink         = (*Hub)(nil)
	_ http.Handler = (*Hub)(nil)
)
