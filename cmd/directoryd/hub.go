package main

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"veilchat/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// hub routes relay frames between connected websocket clients. Envelopes pass
// through untouched; the hub only reads the addressing fields.
type hub struct {
	dir *server
	log *logrus.Logger

	mu    sync.Mutex
	conns map[string]*relayConn
}

type relayConn struct {
	username string
	ws       *websocket.Conn
	writeMu  sync.Mutex
}

func newHub(dir *server, log *logrus.Logger) *hub {
	return &hub{dir: dir, log: log, conns: make(map[string]*relayConn)}
}

func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	conn := &relayConn{ws: ws}
	defer func() {
		h.remove(conn)
		_ = ws.Close()
	}()

	for {
		var f domain.RelayFrame
		if err := ws.ReadJSON(&f); err != nil {
			return
		}
		switch f.Type {
		case domain.FrameRegister:
			h.handleRegister(conn, f)
		case domain.FrameCheckUsername:
			h.handleCheckUsername(conn, f)
		case domain.FrameSendMessage:
			h.handleSendMessage(conn, f)
		default:
			conn.send(domain.RelayFrame{Type: domain.FrameError, Message: "unknown frame type"})
		}
	}
}

func (h *hub) handleRegister(conn *relayConn, f domain.RelayFrame) {
	id, ok := h.dir.register(f.Username, f.PublicKey)
	if !ok {
		conn.send(domain.RelayFrame{Type: domain.FrameError, Message: "username already exists"})
		return
	}

	h.mu.Lock()
	if prev, dup := h.conns[f.Username]; dup && prev != conn {
		h.mu.Unlock()
		conn.send(domain.RelayFrame{Type: domain.FrameError, Message: "username already exists"})
		return
	}
	conn.username = f.Username
	h.conns[f.Username] = conn
	h.mu.Unlock()

	h.log.WithField("user", f.Username).Info("relay client registered")
	conn.send(domain.RelayFrame{Type: domain.FrameRegistered, Username: f.Username, UserID: id})
	h.broadcastOnline()
}

func (h *hub) handleCheckUsername(conn *relayConn, f domain.RelayFrame) {
	h.dir.mu.Lock()
	_, taken := h.dir.users[f.Username]
	h.dir.mu.Unlock()
	conn.send(domain.RelayFrame{
		Type: domain.FrameUsernameAvailable, Username: f.Username, Available: !taken,
	})
}

func (h *hub) handleSendMessage(conn *relayConn, f domain.RelayFrame) {
	if conn.username == "" {
		conn.send(domain.RelayFrame{Type: domain.FrameError, Message: "register first"})
		return
	}
	if f.Encrypted == nil {
		conn.send(domain.RelayFrame{Type: domain.FrameError, Message: "missing encrypted payload"})
		return
	}

	h.mu.Lock()
	dst, online := h.conns[f.To]
	h.mu.Unlock()
	if !online {
		conn.send(domain.RelayFrame{Type: domain.FrameError, Message: "recipient not connected"})
		return
	}

	out := domain.RelayFrame{
		Type:      domain.FrameMessage,
		ID:        uuid.NewString(),
		From:      conn.username,
		To:        f.To,
		Encrypted: f.Encrypted,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := dst.send(out); err != nil {
		h.log.WithError(err).WithField("to", f.To).Warn("forward failed")
		conn.send(domain.RelayFrame{Type: domain.FrameError, Message: "delivery failed"})
	}
}

func (h *hub) remove(conn *relayConn) {
	h.mu.Lock()
	if conn.username != "" && h.conns[conn.username] == conn {
		delete(h.conns, conn.username)
	}
	h.mu.Unlock()
	if conn.username != "" {
		h.log.WithField("user", conn.username).Info("relay client disconnected")
		h.broadcastOnline()
	}
}

// broadcastOnline pushes the connected-user list to every client.
func (h *hub) broadcastOnline() {
	h.mu.Lock()
	users := make([]string, 0, len(h.conns))
	targets := make([]*relayConn, 0, len(h.conns))
	for u, c := range h.conns {
		users = append(users, u)
		targets = append(targets, c)
	}
	h.mu.Unlock()
	sort.Strings(users)

	frame := domain.RelayFrame{Type: domain.FrameOnlineUsers, Users: users}
	for _, c := range targets {
		_ = c.send(frame)
	}
}

func (c *relayConn) send(f domain.RelayFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteJSON(f)
}
