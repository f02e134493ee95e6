package shark

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/joshp123/sharkd/internal/cleanmap"
	"github.com/joshp123/sharkd/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// viewerMessage is one inbound message from the viewer page.
//
//	{"type":"resize","width":800,"height":600}
//	{"type":"event","kind":"pointer_move","x":10,"y":20}
//	{"type":"event","kind":"pinch_scale","scale":1.1,"x":400,"y":300}
//	{"type":"refresh"}
type viewerMessage struct {
	Type   string  `json:"type"`
	Kind   string  `json:"kind"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Scale  float64 `json:"scale"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
}

type outbound struct {
	messageType int
	data        []byte
}

// viewerSession connects one websocket to a cleanmap.Screen. A new map is
// fetched on connect and on every "refresh" message.
type viewerSession struct {
	conn   *websocket.Conn
	screen *cleanmap.Screen
	send   chan outbound
	log    *logrus.Entry

	// ctx lives as long as the connection; fetches started by the viewer use it.
	ctx context.Context
}

func (p *Plugin) handleWS(w http.ResponseWriter, r *http.Request) {
	if p.client == nil || p.maps == nil {
		http.Error(w, "shark unavailable: "+p.healthMessage, http.StatusServiceUnavailable)
		return
	}
	lookupCtx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	dsn, err := firstDSN(lookupCtx, p.client, r.URL.Query().Get("dsn"))
	cancel()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithDevice(dsn).WithError(err).Warn("websocket upgrade failed")
		return
	}

	sess := &viewerSession{
		conn: conn,
		send: make(chan outbound, 8),
		log:  logger.WithDevice(dsn).WithField("remote", r.RemoteAddr),
	}
	sess.screen = cleanmap.NewScreen(p.maps.Fetcher(dsn), cleanmap.ScreenOptions{
		FocalZoom: p.focalZoom,
		OnFrame:   sess.onFrame,
		OnError:   sess.onError,
	})
	sess.log.Info("viewer connected")
	sess.run()
	sess.log.Info("viewer disconnected")
}

func (s *viewerSession) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.ctx = ctx

	go func() {
		_ = s.screen.Run(ctx)
	}()
	go s.writePump(ctx)

	s.screen.Refresh(ctx)
	s.readPump()
}

func (s *viewerSession) readPump() {
	defer func() {
		if err := s.conn.Close(); err != nil {
			s.log.WithError(err).Debug("close websocket")
		}
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg viewerMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.WithError(err).Warn("websocket read failed")
			}
			return
		}
		s.dispatch(msg)
	}
}

func (s *viewerSession) dispatch(msg viewerMessage) {
	switch msg.Type {
	case "resize":
		s.screen.Resize(msg.Width, msg.Height)
	case "refresh":
		s.screen.Refresh(s.ctx)
	case "event":
		kind, err := cleanmap.ParseEventKind(msg.Kind)
		if err != nil {
			s.onError(err)
			return
		}
		s.screen.Input(cleanmap.Event{Kind: kind, X: msg.X, Y: msg.Y, Scale: msg.Scale})
	default:
		s.log.WithField("type", msg.Type).Debug("ignoring viewer message")
	}
}

func (s *viewerSession) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(msg.messageType, msg.data); err != nil {
				s.log.WithError(err).Debug("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.WithError(err).Debug("ping failed")
				return
			}
		}
	}
}

// onFrame runs on the screen goroutine. Frames are dropped when the writer
// is behind; the next frame supersedes them.
func (s *viewerSession) onFrame(frame cleanmap.Frame) {
	data, err := cleanmap.EncodePNG(frame.Image)
	if err != nil {
		s.onError(err)
		return
	}
	s.enqueue(outbound{messageType: websocket.BinaryMessage, data: data})
}

func (s *viewerSession) onError(err error) {
	payload, _ := json.Marshal(map[string]string{"type": "error", "error": err.Error()})
	s.enqueue(outbound{messageType: websocket.TextMessage, data: payload})
}

func (s *viewerSession) enqueue(msg outbound) {
	select {
	case s.send <- msg:
	default:
		s.log.Debug("viewer send queue full, dropping message")
	}
}
