// Package status is the optional, opt-in local diagnostics HTTP server:
// GET /healthz reports registry size, last reload time, and process
// uptime; GET /ws pushes one JSON line per tools_changed event. Grounded on
// the teacher's internal/server websocket.go connection-pump shape,
// collapsed from its many event-type multiplexing down to the one stream
// this host needs, since nothing here touches stdin/stdout.
package status

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"starmcp-go/internal/events"
	"starmcp-go/internal/registry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Server is the debug HTTP surface, started only when an address is
// explicitly configured. It binds that address as given; no loopback-only
// restriction is applied.
type Server struct {
	registry  *registry.Registry
	bus       *events.Bus
	logger    *zap.Logger
	startedAt time.Time

	mu           sync.RWMutex
	lastReloadAt time.Time
}

// New builds a Server. Call WatchReloads to start updating lastReloadAt from
// bus activity, and wire Handler into an http.Server mux.
func New(reg *registry.Registry, bus *events.Bus, logger *zap.Logger) *Server {
	return &Server{registry: reg, bus: bus, logger: logger, startedAt: time.Now()}
}

// ListenAndServe binds addr and serves until the process exits or the
// listener errors; callers typically run this in its own goroutine.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	return srv.ListenAndServe()
}

// Handler returns the mux to bind an http.Server to.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// WatchReloads updates lastReloadAt on every tools_changed event, until done
// is closed; meant to run in its own goroutine alongside the mcp adapter's
// own subscriber.
func (s *Server) WatchReloads(done <-chan struct{}) {
	ch := s.bus.Subscribe(events.ToolsChanged)
	defer s.bus.Unsubscribe(events.ToolsChanged, ch)
	for {
		select {
		case <-done:
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			s.mu.Lock()
			s.lastReloadAt = time.Now()
			s.mu.Unlock()
		}
	}
}

type healthzResponse struct {
	RegistrySize int       `json:"registry_size"`
	LastReload   time.Time `json:"last_reload,omitempty"`
	UptimeSecs   float64   `json:"uptime_seconds"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	lastReload := s.lastReloadAt
	s.mu.RUnlock()

	resp := healthzResponse{
		RegistrySize: s.registry.Size(),
		LastReload:   lastReload,
		UptimeSecs:   time.Since(s.startedAt).Seconds(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("websocket upgrade failed", zap.Error(err))
		}
		return
	}

	ch := s.bus.Subscribe(events.ToolsChanged)
	stop := make(chan struct{})

	go s.readPump(conn, stop)
	s.writePump(conn, ch, stop)

	s.bus.Unsubscribe(events.ToolsChanged, ch)
}

// readPump only exists to notice the client going away; the status stream
// is push-only.
func (s *Server) readPump(conn *websocket.Conn, stop chan struct{}) {
	defer close(stop)
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, ch <-chan events.Event, stop chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-stop:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
