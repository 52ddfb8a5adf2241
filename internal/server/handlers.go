package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/KaramelBytes/surveyloom/internal/catalog"
	"github.com/KaramelBytes/surveyloom/internal/dataset"
	"github.com/KaramelBytes/surveyloom/internal/session"
)

// statusClientClosedRequest reports a turn the client cancelled.
const statusClientClosedRequest = 499

const heartbeatInterval = 15 * time.Second

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// controllerFor resolves the workspace controller, answering 412 when no
// data has been loaded yet. A nil return means the response was written.
func (s *Server) controllerFor(w http.ResponseWriter, r *http.Request) *session.Controller {
	ws, err := s.workspace(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil
	}
	s.syncDefault(ws)
	ctrl := ws.controller()
	if ctrl == nil {
		writeError(w, http.StatusPreconditionFailed, "no survey data loaded; upload a questionnaire and results first")
		return nil
	}
	return ctrl
}

type dataSummary struct {
	Variables       int      `json:"variables"`
	Declared        int      `json:"declared"`
	AnalysisTime    int      `json:"analysis_time"`
	Disaggregations []string `json:"disaggregations"`
	QualitativeRows int      `json:"qualitative_rows"`
	Warnings        []string `json:"warnings,omitempty"`
	Generation      int      `json:"generation"`
}

func summarize(ctrl *session.Controller) dataSummary {
	cat := ctrl.Catalog()
	return dataSummary{
		Variables:       cat.Len(),
		Declared:        cat.DeclaredCount(),
		AnalysisTime:    cat.AnalysisTimeCount(),
		Disaggregations: ctrl.Disaggregations().Values(),
		QualitativeRows: len(ctrl.Store().Qualitative()),
		Warnings:        ctrl.Store().Warnings(),
		Generation:      ctrl.Generation(),
	}
}

// handleUpload decodes a questionnaire and a results file. Bad input is a
// 400 and leaves the workspace's current data in place.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ws, err := s.workspace(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid upload: %v", err))
		return
	}

	qFile, qHeader, err := r.FormFile("questionnaire")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing questionnaire file")
		return
	}
	defer func() { _ = qFile.Close() }()
	rFile, rHeader, err := r.FormFile("results")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing results file")
		return
	}
	defer func() { _ = rFile.Close() }()

	store, err := decodeUpload(qFile, qHeader, rFile, rHeader)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, dataset.ErrFormat) {
			status = http.StatusBadRequest
		}
		s.logger.Warn("upload rejected", "workspace", ws.id, "error", err)
		writeError(w, status, err.Error())
		return
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.ctrl != nil {
		if err := ws.ctrl.ReloadData(store); err != nil {
			if errors.Is(err, session.ErrTurnInProgress) {
				writeError(w, http.StatusConflict, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	} else {
		ctrl, err := s.newController(store)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		ws.ctrl = ctrl
	}
	ws.seeded = false
	s.logger.Info("data uploaded", "workspace", ws.id, "questionnaire", qHeader.Filename, "results", rHeader.Filename)
	writeJSON(w, http.StatusOK, summarize(ws.ctrl))
}

func decodeUpload(qFile multipart.File, qHeader *multipart.FileHeader, rFile multipart.File, rHeader *multipart.FileHeader) (*dataset.Store, error) {
	q, err := dataset.DecodeQuestionnaire(qHeader.Filename, qFile)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(rFile)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	res, err := dataset.DecodeResults(rHeader.Filename, data)
	if err != nil {
		return nil, err
	}
	return dataset.Build(q, res), nil
}

type catalogBody struct {
	Variables       []catalog.Variable `json:"variables"`
	Disaggregations []string           `json:"disaggregations"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controllerFor(w, r)
	if ctrl == nil {
		return
	}
	writeJSON(w, http.StatusOK, catalogBody{
		Variables:       ctrl.Catalog().Variables(),
		Disaggregations: ctrl.Disaggregations().Values(),
	})
}

func (s *Server) handlePersonas(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.personas.List())
}

type sessionBody struct {
	Config     session.Config `json:"config"`
	Generation int            `json:"generation"`
	Busy       bool           `json:"busy"`
	Data       dataSummary    `json:"data"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controllerFor(w, r)
	if ctrl == nil {
		return
	}
	writeJSON(w, http.StatusOK, sessionBody{
		Config:     ctrl.Config(),
		Generation: ctrl.Generation(),
		Busy:       ctrl.Busy(),
		Data:       summarize(ctrl),
	})
}

type sessionUpdate struct {
	Model         *string `json:"model"`
	SelectorModel *string `json:"selector_model"`
	Persona       *string `json:"persona"`
	CustomStyle   *string `json:"custom_style"`
}

// handlePutSession folds persona, model and selector changes into one
// config and applies it only if the whole of it is valid. Persona and model
// changes rebuild the chat.
func (s *Server) handlePutSession(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controllerFor(w, r)
	if ctrl == nil {
		return
	}
	var upd sessionUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	next := ctrl.Config()
	if upd.Persona != nil || upd.CustomStyle != nil {
		id, guide := next.Persona, next.CustomStyle
		if upd.Persona != nil {
			id = *upd.Persona
		}
		if upd.CustomStyle != nil {
			guide = *upd.CustomStyle
		}
		next = next.WithPersona(id, guide)
	}
	if upd.Model != nil {
		next = next.WithModel(*upd.Model)
	}
	if upd.SelectorModel != nil {
		next = next.WithSelectorModel(*upd.SelectorModel)
	}
	if err := ctrl.Apply(next); err != nil {
		if errors.Is(err, session.ErrTurnInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.handleGetSession(w, r)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controllerFor(w, r)
	if ctrl == nil {
		return
	}
	msgs := ctrl.Messages()
	if msgs == nil {
		msgs = []session.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

type chatRequest struct {
	Message string `json:"message"`
}

type cancelledBody struct {
	Cancelled bool   `json:"cancelled"`
	Input     string `json:"input"`
}

// handleChat runs one turn bound to the request context, so a client that
// disconnects cancels its turn.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controllerFor(w, r)
	if ctrl == nil {
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	msg, err := ctrl.Send(r.Context(), req.Message)
	if ws, wsErr := s.workspace(w, r); wsErr == nil {
		s.syncDefault(ws)
	}
	var cancelled *session.CancelledError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, msg)
	case errors.As(err, &cancelled):
		writeJSON(w, statusClientClosedRequest, cancelledBody{Cancelled: true, Input: cancelled.Input})
	case errors.Is(err, session.ErrTurnInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrEmptyInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controllerFor(w, r)
	if ctrl == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": ctrl.Cancel()})
}

// handleProgress streams the turn trace as server-sent events: a snapshot
// first, then step and reset events, plus reload pings when the data
// changes on disk.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controllerFor(w, r)
	if ctrl == nil {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	events, unsubscribe := ctrl.Progress().Subscribe()
	defer unsubscribe()
	reloads := s.notifier.Subscribe()
	defer s.notifier.Unsubscribe(reloads)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "snapshot", ctrl.Progress().Steps()); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, string(ev.Type), ev); err != nil {
				return
			}
		case <-reloads:
			if err := writeEvent(w, "reload", summarize(ctrl)); err != nil {
				return
			}
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

func writeEvent(w io.Writer, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
