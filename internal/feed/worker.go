package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"crypto_feed/internal/domain"
	"crypto_feed/internal/infra"

	"github.com/gorilla/websocket"
)

const (
	maxRetries       = 10
	handshakeTimeout = 10 * time.Second
	readTimeout      = 60 * time.Second
)

// Protocol is the exchange-specific part of a websocket worker.
type Protocol interface {
	// Subscribe sends the subscription messages on a fresh connection.
	Subscribe(w *Worker) error
	// HandleMessage parses one frame and invokes callbacks.
	HandleMessage(msg []byte)
}

// WorkerConfig configures the shared websocket worker.
type WorkerConfig struct {
	Name         string
	URL          string
	PingInterval time.Duration // 0 disables application pings
	PingMessage  []byte
	PongMessage  []byte // Frames equal to this are swallowed
	Metrics      *infra.Metrics
}

// Worker owns one websocket connection and reconnects with exponential backoff.
type Worker struct {
	cfg   WorkerConfig
	proto Protocol

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewWorker creates a worker speaking proto.
func NewWorker(cfg WorkerConfig, proto Protocol) *Worker {
	return &Worker{cfg: cfg, proto: proto}
}

func (w *Worker) Name() string {
	return w.cfg.Name
}

// Connect starts the connection loop in the background.
func (w *Worker) Connect(ctx context.Context) error {
	if w.cfg.URL == "" {
		return domain.NewFatalNetworkError(w.cfg.Name, "connect", errors.New("empty url"))
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

// IsConnected reports whether a connection is currently open.
func (w *Worker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

func (w *Worker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Feed panic recovered", slog.String("feed", w.cfg.Name), slog.Any("panic", r))
		}
	}()

	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			slog.Info("Feed connection loop stopped", slog.String("feed", w.cfg.Name))
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			slog.Warn("Feed connection failed",
				slog.String("feed", w.cfg.Name),
				slog.Any("error", err),
				slog.Int("retry", retryCount),
			)
			if !domain.IsRetriable(err) {
				return
			}

			delay := CalculateBackoff(retryCount)
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0 // Infinite retry loop for monitoring
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		// Connection successful, reset retry counter
		retryCount = 0
		w.readLoop(ctx)
	}
}

func (w *Worker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.cfg.URL, nil)
	if err != nil {
		return domain.NewNetworkError(w.cfg.Name, "dial", fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err))
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()
	w.cfg.Metrics.IncrementConnections()

	if err := w.proto.Subscribe(w); err != nil {
		w.closeConnection()
		return domain.NewNetworkError(w.cfg.Name, "subscribe", err)
	}

	if w.cfg.PingInterval > 0 {
		go w.pingLoop(ctx, conn)
	}
	slog.Info("Feed connected", slog.String("feed", w.cfg.Name))
	return nil
}

// WriteMessage sends a frame on the current connection.
func (w *Worker) WriteMessage(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		return fmt.Errorf("no conn")
	}
	return w.conn.WriteMessage(msgType, data)
}

// WriteJSON marshals v and sends it as a text frame.
func (w *Worker) WriteJSON(v interface{}) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		return fmt.Errorf("no conn")
	}
	return w.conn.WriteJSON(v)
}

func (w *Worker) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(w.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.RLock()
			current := w.conn
			w.mu.RUnlock()
			if current != conn {
				return // Reconnected; the new connection runs its own loop
			}
			w.WriteMessage(websocket.TextMessage, w.cfg.PingMessage)
		}
	}
}

func (w *Worker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, msg, err := conn.ReadMessage()
		if err != nil {
			slog.Warn("Feed read failed", slog.String("feed", w.cfg.Name), slog.Any("error", err))
			w.closeConnection()
			return
		}
		if w.cfg.PongMessage != nil && string(msg) == string(w.cfg.PongMessage) {
			continue
		}
		w.proto.HandleMessage(msg)
	}
}

func (w *Worker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
		w.cfg.Metrics.DecrementConnections()
	}
	w.connected = false
}

// Disconnect stops the connection loop and waits for it to exit.
func (w *Worker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
}
