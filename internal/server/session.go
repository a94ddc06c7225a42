package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pkh-dashboard/peta/internal/projection"
	"github.com/pkh-dashboard/peta/internal/view"
)

// View actions accepted by POST /api/view/{id}/{action}.
const (
	ActionZoomIn       = "zoom-in"
	ActionZoomOut      = "zoom-out"
	ActionReset        = "reset"
	ActionPointerDown  = "pointer-down"
	ActionPointerMove  = "pointer-move"
	ActionPointerUp    = "pointer-up"
	ActionPointerLeave = "pointer-leave"
)

// session is one client's view. Events are applied under mu in arrival
// order.
type session struct {
	mu       sync.Mutex
	state    *view.State
	lastSeen time.Time
}

func (s *session) read(viewport projection.Size) (view.Snapshot, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Snapshot(), s.state.Transform(viewport)
}

type sessionStore struct {
	opts view.Options
	ttl  time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

func newSessionStore(opts view.Options, ttl time.Duration) *sessionStore {
	return &sessionStore{opts: opts, ttl: ttl, sessions: make(map[string]*session)}
}

func (st *sessionStore) create() (string, *session) {
	now := time.Now()
	id := uuid.New().String()
	sess := &session{state: view.New(st.opts), lastSeen: now}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.evictLocked(now)
	st.sessions[id] = sess
	return id, sess
}

func (st *sessionStore) get(id string) (*session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[id]
	if !ok {
		return nil, false
	}
	now := time.Now()
	if st.ttl > 0 && now.Sub(sess.lastSeen) > st.ttl {
		delete(st.sessions, id)
		return nil, false
	}
	sess.lastSeen = now
	return sess, true
}

func (st *sessionStore) count() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

func (st *sessionStore) evictLocked(now time.Time) {
	if st.ttl <= 0 {
		return
	}
	for id, sess := range st.sessions {
		if now.Sub(sess.lastSeen) > st.ttl {
			delete(st.sessions, id)
		}
	}
}

type viewResponse struct {
	ID        string        `json:"id"`
	Transform string        `json:"transform"`
	View      view.Snapshot `json:"view"`
}

func (s *Server) viewResponse(id string, sess *session) viewResponse {
	snap, transform := sess.read(s.pipeline.Size())
	return viewResponse{ID: id, Transform: transform, View: snap}
}

func (s *Server) handleCreateView(w http.ResponseWriter, _ *http.Request) {
	id, sess := s.sessions.create()
	zap.L().Debug("server: view session created", zap.String("session", id))
	writeJSON(w, http.StatusCreated, s.viewResponse(id, sess))
}

func (s *Server) handleGetView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := s.sessions.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, errUnknownSession.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.viewResponse(id, sess))
}

func (s *Server) handleViewAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	action := chi.URLParam(r, "action")

	sess, ok := s.sessions.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, errUnknownSession.Error())
		return
	}

	var p view.Point
	switch action {
	case ActionPointerDown, ActionPointerMove:
		if err := decodePoint(r.Body, &p); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	case ActionZoomIn, ActionZoomOut, ActionReset, ActionPointerUp, ActionPointerLeave:
	default:
		writeError(w, http.StatusBadRequest, "unknown view action "+action)
		return
	}

	sess.mu.Lock()
	switch action {
	case ActionZoomIn:
		sess.state.ZoomIn()
	case ActionZoomOut:
		sess.state.ZoomOut()
	case ActionReset:
		sess.state.Reset()
	case ActionPointerDown:
		sess.state.PointerDown(p)
	case ActionPointerMove:
		sess.state.PointerMove(p)
	case ActionPointerUp:
		sess.state.PointerUp()
	case ActionPointerLeave:
		sess.state.PointerLeave()
	}
	sess.mu.Unlock()

	writeJSON(w, http.StatusOK, s.viewResponse(id, sess))
}

var errMissingPoint = errors.New("server: pointer action needs a JSON body with x and y")

func decodePoint(body io.Reader, p *view.Point) error {
	var raw struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	}
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return errMissingPoint
	}
	if raw.X == nil || raw.Y == nil {
		return errMissingPoint
	}
	*p = view.Point{X: *raw.X, Y: *raw.Y}
	return nil
}
