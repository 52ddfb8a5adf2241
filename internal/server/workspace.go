package server

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/surveyloom/internal/dataset"
	"github.com/KaramelBytes/surveyloom/internal/session"
)

const (
	cookieName   = "surveyloom"
	workspaceKey = "workspace"
)

// ControllerFactory opens a session controller over store.
type ControllerFactory func(store *dataset.Store) (*session.Controller, error)

// workspace is one browser's session: its own data and chat controller.
type workspace struct {
	id string

	mu       sync.Mutex
	ctrl     *session.Controller
	lastSeen time.Time
	// seeded marks a workspace running on the server's default data; an
	// upload clears it.
	seeded bool
}

func (w *workspace) controller() *session.Controller {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ctrl
}

func (w *workspace) touch(now time.Time) {
	w.mu.Lock()
	w.lastSeen = now
	w.mu.Unlock()
}

// workspace resolves the caller's workspace from the session cookie,
// creating one (and setting the cookie) on first contact. New workspaces
// start from the server's default data when it has any.
func (s *Server) workspace(w http.ResponseWriter, r *http.Request) (*workspace, error) {
	sess, err := s.sessionStore.Get(r, cookieName)
	if err != nil {
		// A cookie signed with an old secret decodes to an error plus a
		// fresh session; carry on with the fresh one.
		s.logger.Debug("session cookie rejected", "error", err)
	}
	id, _ := sess.Values[workspaceKey].(string)

	s.mu.Lock()
	ws, ok := s.workspaces[id]
	if !ok {
		id = uuid.NewString()
		ws = &workspace{id: id}
		s.workspaces[id] = ws
	}
	def := s.defaultStore
	s.mu.Unlock()
	ws.touch(time.Now())

	if !ok {
		sess.Values[workspaceKey] = id
		if err := sess.Save(r, w); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
		s.logger.Debug("workspace created", "workspace", id)
		if def != nil {
			ctrl, err := s.newController(def)
			if err != nil {
				return nil, err
			}
			ws.mu.Lock()
			ws.ctrl = ctrl
			ws.seeded = true
			ws.mu.Unlock()
		}
	}
	return ws, nil
}

// reloadDefault swaps the default data and pushes it into every workspace
// that has not uploaded its own. A workspace mid-turn is caught up by
// syncDefault once the turn ends.
func (s *Server) reloadDefault(store *dataset.Store) {
	s.mu.Lock()
	s.defaultStore = store
	list := make([]*workspace, 0, len(s.workspaces))
	for _, ws := range s.workspaces {
		list = append(list, ws)
	}
	s.mu.Unlock()

	for _, ws := range list {
		s.syncDefault(ws)
	}
	s.notifier.Broadcast()
}

// syncDefault moves a seeded workspace onto the current default data.
func (s *Server) syncDefault(ws *workspace) {
	s.mu.Lock()
	def := s.defaultStore
	s.mu.Unlock()

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if !ws.seeded || ws.ctrl == nil || def == nil || ws.ctrl.Store() == def {
		return
	}
	if err := ws.ctrl.ReloadData(def); err != nil {
		if errors.Is(err, session.ErrTurnInProgress) {
			s.logger.Debug("workspace busy; reload deferred until the turn ends", "workspace", ws.id)
		} else {
			s.logger.Warn("workspace not reloaded", "workspace", ws.id, "error", err)
		}
		return
	}
	s.logger.Debug("workspace reloaded", "workspace", ws.id)
}

// sweep drops workspaces idle for longer than ttl.
func (s *Server) sweep(now time.Time, ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, ws := range s.workspaces {
		ws.mu.Lock()
		idle := now.Sub(ws.lastSeen) > ttl
		busy := ws.ctrl != nil && ws.ctrl.Busy()
		ws.mu.Unlock()
		if idle && !busy {
			delete(s.workspaces, id)
			n++
		}
	}
	return n
}
