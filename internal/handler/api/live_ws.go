package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	models "MidgardPull/internal/domain/models"
	domrepo "MidgardPull/internal/domain/repository"
	xlogger "MidgardPull/pkg/logger"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = (livePongWait * 9) / 10
	liveSendBuffer = 256
)

// LiveFeed broadcasts newly inserted intervals to websocket subscribers on
// GET /live. It is a Mirror: the writer publishes to it after every commit.
// A subscriber whose buffer is full is disconnected rather than slowing ingestion.
type LiveFeed struct {
	logger   *xlogger.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*liveClient]struct{}
	closed  bool
}

type liveClient struct {
	conn   *websocket.Conn
	send   chan []byte
	series map[string]bool // empty means all
	once   sync.Once
}

var _ domrepo.Mirror = (*LiveFeed)(nil)

func NewLiveFeed(logger *xlogger.Logger) *LiveFeed {
	return &LiveFeed{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*liveClient]struct{}),
	}
}

func (f *LiveFeed) RegisterRoutes(e *echo.Echo) {
	e.GET("/live", f.Serve)
}

func (f *LiveFeed) Name() string { return "live" }

// Subscribers returns the number of connected clients.
func (f *LiveFeed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// Serve upgrades the request. ?series=depth,swap limits the feed.
func (f *LiveFeed) Serve(c echo.Context) error {
	conn, err := f.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		f.logger.Warn("live upgrade failed", xlogger.Error(err))
		return nil
	}

	cl := &liveClient{
		conn:   conn,
		send:   make(chan []byte, liveSendBuffer),
		series: parseSeriesFilter(c.QueryParam("series")),
	}
	if !f.add(cl) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(liveWriteWait))
		_ = conn.Close()
		return nil
	}

	go f.writeLoop(cl)
	f.readLoop(cl)
	return nil
}

func parseSeriesFilter(raw string) map[string]bool {
	out := make(map[string]bool)
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(strings.ToLower(s)); s != "" {
			out[s] = true
		}
	}
	return out
}

func (f *LiveFeed) add(cl *liveClient) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.clients[cl] = struct{}{}
	return true
}

func (f *LiveFeed) remove(cl *liveClient) {
	f.mu.Lock()
	delete(f.clients, cl)
	f.mu.Unlock()
	cl.once.Do(func() { close(cl.send) })
}

// readLoop only services control frames; it returns when the peer goes away.
func (f *LiveFeed) readLoop(cl *liveClient) {
	defer f.remove(cl)
	cl.conn.SetReadLimit(512)
	_ = cl.conn.SetReadDeadline(time.Now().Add(livePongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(livePongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *LiveFeed) writeLoop(cl *liveClient) {
	ticker := time.NewTicker(livePingPeriod)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Publish sends each event as one JSON text frame.
func (f *LiveFeed) Publish(_ context.Context, events []models.IntervalEvent) error {
	if len(events) == 0 {
		return nil
	}

	frames := make([][]byte, len(events))
	for i, ev := range events {
		b, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		frames[i] = b
	}

	var slow []*liveClient
	f.mu.RLock()
	for cl := range f.clients {
	events:
		for i, ev := range events {
			if len(cl.series) > 0 && !cl.series[ev.Series] {
				continue
			}
			select {
			case cl.send <- frames[i]:
			default:
				slow = append(slow, cl)
				break events
			}
		}
	}
	f.mu.RUnlock()

	for _, cl := range slow {
		f.logger.Warn("dropping slow live subscriber", xlogger.String("remote", cl.conn.RemoteAddr().String()))
		f.remove(cl)
	}
	return nil
}

// Close disconnects every subscriber and refuses new ones.
func (f *LiveFeed) Close() error {
	f.mu.Lock()
	f.closed = true
	clients := make([]*liveClient, 0, len(f.clients))
	for cl := range f.clients {
		clients = append(clients, cl)
	}
	f.mu.Unlock()

	for _, cl := range clients {
		f.remove(cl)
	}
	return nil
}
