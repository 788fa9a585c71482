package main

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"veilchat/internal/domain"
)

type userRecord struct {
	ID        string
	PublicKey string
}

// server holds the directory state: registered users and per-user signaling
// queues. Everything lives in memory.
type server struct {
	log *logrus.Logger

	mu      sync.Mutex
	users   map[string]userRecord
	signals map[string][]domain.SignalingMessage
}

func newServer(log *logrus.Logger) *server {
	return &server{
		log:     log,
		users:   make(map[string]userRecord),
		signals: make(map[string][]domain.SignalingMessage),
	}
}

func (s *server) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/check-username", s.handleCheckUsername)
	mux.HandleFunc("POST /api/user/public-key", s.handlePublicKey)
	mux.HandleFunc("GET /api/online-users", s.handleOnlineUsers)
	mux.HandleFunc("POST /api/webrtc/offer", s.handleOffer)
	mux.HandleFunc("POST /api/webrtc/answer", s.handleAnswer)
	mux.HandleFunc("POST /api/webrtc/ice-candidate", s.handleCandidate)
	mux.HandleFunc("GET /api/webrtc/pending-messages/{username}", s.handlePendingSignals)
}

// register stores a user, refusing a taken name unless the key matches the
// existing record (re-registration of the same identity is idempotent).
func (s *server) register(username, publicKey string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.users[username]; ok {
		if rec.PublicKey == publicKey {
			return rec.ID, true
		}
		return "", false
	}
	rec := userRecord{ID: uuid.NewString(), PublicKey: publicKey}
	s.users[username] = rec
	return rec.ID, true
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	id, ok := s.register(req.Username, req.PublicKey)
	if !ok {
		http.Error(w, "username already exists", http.StatusConflict)
		return
	}
	s.log.WithField("user", req.Username).Info("registered")
	writeJSON(w, domain.RegisterResponse{UserID: id, Username: req.Username})
}

func (s *server) handleCheckUsername(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckUsernameRequest
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	_, taken := s.users[req.Username]
	s.mu.Unlock()
	resp := domain.CheckUsernameResponse{Available: !taken, Message: "username is available"}
	if taken {
		resp.Message = "username is taken"
	}
	writeJSON(w, resp)
}

func (s *server) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	var req domain.PublicKeyRequest
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	rec, ok := s.users[req.Username]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	writeJSON(w, domain.PublicKeyResponse{PublicKey: rec.PublicKey})
}

func (s *server) handleOnlineUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	users := make([]string, 0, len(s.users))
	for u := range s.users {
		users = append(users, u)
	}
	s.mu.Unlock()
	sort.Strings(users)
	writeJSON(w, domain.OnlineUsersResponse{Users: users})
}

func (s *server) enqueueSignal(w http.ResponseWriter, sig domain.SignalingMessage) {
	s.mu.Lock()
	_, known := s.users[sig.To]
	if known {
		s.signals[sig.To] = append(s.signals[sig.To], sig)
	}
	s.mu.Unlock()
	if !known {
		http.Error(w, "recipient not found", http.StatusNotFound)
		return
	}
	s.log.WithFields(logrus.Fields{
		"kind": sig.Kind, "from": sig.From, "to": sig.To,
	}).Debug("signal queued")
	writeJSON(w, domain.SignalingResponse{Success: true, Message: "queued"})
}

func (s *server) handleOffer(w http.ResponseWriter, r *http.Request) {
	var req domain.OfferRequest
	if !decode(w, r, &req) {
		return
	}
	s.enqueueSignal(w, domain.SignalingMessage{
		Kind: domain.SignalOffer, From: req.From, To: req.To, Payload: req.Offer,
	})
}

func (s *server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req domain.AnswerRequest
	if !decode(w, r, &req) {
		return
	}
	s.enqueueSignal(w, domain.SignalingMessage{
		Kind: domain.SignalAnswer, From: req.From, To: req.To, Payload: req.Answer,
	})
}

func (s *server) handleCandidate(w http.ResponseWriter, r *http.Request) {
	var req domain.CandidateRequest
	if !decode(w, r, &req) {
		return
	}
	s.enqueueSignal(w, domain.SignalingMessage{
		Kind: domain.SignalCandidate, From: req.From, To: req.To, Payload: req.Candidate,
	})
}

// handlePendingSignals drains the queue so each item is delivered once.
func (s *server) handlePendingSignals(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	s.mu.Lock()
	pending := s.signals[username]
	delete(s.signals, username)
	s.mu.Unlock()
	if pending == nil {
		pending = []domain.SignalingMessage{}
	}
	writeJSON(w, pending)
}

func decode(w http.ResponseWriter, r *http.Request, out any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
