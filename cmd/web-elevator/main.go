package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"go-elevator-dispatch/pkg/elevator"

	"github.com/gorilla/websocket"
)

//go:embed static/*
var staticFiles embed.FS

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Message types
// 메시지 타입 정의
type ClientMessage struct {
	Action      string          `json:"action"`
	Config      *ElevatorConfig `json:"config,omitempty"`
	Source      int             `json:"source"`
	Destination int             `json:"destination"`
}

type ServerMessage struct {
	Type        string      `json:"type"`
	EventType   string      `json:"eventType,omitempty"`
	Payload     interface{} `json:"payload,omitempty"`
	Timestamp   string      `json:"timestamp,omitempty"`
	Floor       int         `json:"floor"`
	Direction   string      `json:"direction"`
	State       string      `json:"state"`
	CurrentJobs []TripView  `json:"currentJobs"`
	UpPending   []TripView  `json:"upPending"`
	DownPending []TripView  `json:"downPending"`
	Plan        []TripView  `json:"plan"`
}

type TripView struct {
	ID          string `json:"id"`
	Source      int    `json:"source"`
	Destination int    `json:"destination"`
	Direction   string `json:"direction"`
}

func tripViews(reqs []elevator.Request) []TripView {
	out := make([]TripView, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, TripView{
			ID:          r.ID.String(),
			Source:      r.Source,
			Destination: r.Destination,
			Direction:   string(r.Direction),
		})
	}
	return out
}

// ElevatorSession manages a WebSocket connection with an elevator instance
// ElevatorSession은 엘리베이터 인스턴스와의 WebSocket 연결을 관리합니다.
type ElevatorSession struct {
	conn     *websocket.Conn
	defaults ElevatorConfig
	elevator *elevator.Elevator
	mu       sync.Mutex
	writeMu  sync.Mutex
	done     chan struct{}
	cancel   context.CancelFunc
}

func NewElevatorSession(conn *websocket.Conn, defaults ElevatorConfig) *ElevatorSession {
	return &ElevatorSession{
		conn:     conn,
		defaults: defaults,
		done:     make(chan struct{}),
	}
}

func (s *ElevatorSession) HandleMessages() {
	slog.Info("Session started", "remote_addr", s.conn.RemoteAddr())
	defer func() {
		close(s.done)
		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Unlock()
		_ = s.conn.Close()
		slog.Info("Session ended", "remote_addr", s.conn.RemoteAddr())
	}()

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket read error", "error", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			slog.Warn("Failed to parse message", "error", err)
			continue
		}

		s.handleAction(msg)
	}
}

func (s *ElevatorSession) handleAction(msg ClientMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slog.Debug("Action received", "action", msg.Action, "payload", msg)

	switch msg.Action {
	case "init":
		cfg := s.defaults
		if msg.Config != nil {
			cfg = *msg.Config
		}
		s.initElevator(cfg)
	case "submit":
		if s.elevator == nil {
			s.initElevator(s.defaults)
		}
		if s.elevator != nil {
			s.elevator.Submit(msg.Source, msg.Destination)
			s.sendState()
		}
	case "stop":
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
		s.elevator = nil
	case "getState":
		if s.elevator != nil {
			s.sendState()
		}
	default:
		slog.Warn("Unknown action", "action", msg.Action)
	}
}

func (s *ElevatorSession) initElevator(cfg ElevatorConfig) {
	// Stop existing elevator if any
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	config := elevator.Config{
		ID:                 cfg.ID,
		InitialFloor:       cfg.InitialFloor,
		TravelTime:         cfg.TravelDuration(),
		EventBuffer:        cfg.EventBuffer,
		CollapseDuplicates: cfg.CollapseDuplicates,
	}
	slog.Info("Elevator config", "config", cfg)

	e, err := elevator.New(config)
	if err != nil {
		slog.Error("Failed to initialize elevator", "error", err)
		return
	}
	s.elevator = e

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	// Subscribe to events
	// 이벤트 구독
	go s.eventListener(ctx, e)

	if err := e.Start(ctx); err != nil {
		slog.Error("Failed to start dispatch loop", "error", err)
		return
	}

	slog.Info("Elevator initialized", "id", cfg.ID, "floor", cfg.InitialFloor)

	// Send initial state
	s.sendState()
}

func (s *ElevatorSession) eventListener(ctx context.Context, e *elevator.Elevator) {
	eventCh := e.Events()
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case event := <-eventCh:
			s.sendEvent(event)
			s.writeJSON(stateMessage(e))
		}
	}
}

func (s *ElevatorSession) sendState() {
	if s.elevator == nil {
		return
	}
	s.writeJSON(stateMessage(s.elevator))
}

func stateMessage(e *elevator.Elevator) ServerMessage {
	snap := e.Snapshot()
	plan, err := e.Plan()
	if err != nil {
		slog.Warn("Plan unavailable", "error", err)
	}

	return ServerMessage{
		Type:        "state",
		Floor:       snap.Floor,
		Direction:   string(snap.Direction),
		State:       string(snap.State),
		CurrentJobs: tripViews(snap.CurrentJobs),
		UpPending:   tripViews(snap.UpPendingJobs),
		DownPending: tripViews(snap.DownPendingJobs),
		Plan:        tripViews(plan),
	}
}

func (s *ElevatorSession) sendEvent(event elevator.Event) {
	payload := event.Payload
	if req, ok := payload.(elevator.Request); ok {
		payload = tripViews([]elevator.Request{req})[0]
	}

	msg := ServerMessage{
		Type:      "event",
		EventType: string(event.Type),
		Payload:   payload,
		Timestamp: event.Timestamp.Format("15:04:05"),
	}

	s.writeJSON(msg)
}

// writeJSON serializes writes; the listener and the reader both send.
func (s *ElevatorSession) writeJSON(msg ServerMessage) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(msg); err != nil {
		slog.Error("Failed to write JSON message", "error", err)
	}
}

func websocketHandler(defaults ElevatorConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("WebSocket upgrade failed", "error", err)
			return
		}

		session := NewElevatorSession(conn, defaults)
		session.HandleMessages()
	}
}

func main() {
	cfg, err := loadConfig(defaultEnvPath)
	if err != nil {
		log.Fatal(err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	})))

	// Serve static files from embedded filesystem
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatal(err)
	}

	http.Handle("/", http.FileServer(http.FS(staticFS)))
	http.HandleFunc("/ws", websocketHandler(cfg.Elevator))

	addr := ":" + cfg.Port
	slog.Info("Starting elevator web server", "addr", addr)
	slog.Info("Open http://localhost:" + cfg.Port + " in your browser")

	if err := http.ListenAndServe(addr, nil); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
