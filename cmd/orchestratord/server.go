package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kory-ai/workbench-core/internal/bus"
	"github.com/kory-ai/workbench-core/internal/manager"
	"github.com/kory-ai/workbench-core/internal/session"
	"github.com/kory-ai/workbench-core/internal/streamevent"
)

// runServe wires the application and serves it over HTTP until a SIGINT or
// SIGTERM arrives, then drains in-flight requests before returning. The
// errc-channel-plus-WaitGroup shape mirrors the teacher's
// example/cmd/assistant/main.go handleHTTPServer/signal-handling pair.
func runServe(opts *serveOptions) error {
	application, err := newApp(opts)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(opts.host, fmt.Sprintf("%d", opts.port))
	srv := &http.Server{Addr: addr, Handler: newRouter(application)}

	errc := make(chan error, 1)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		application.logger.Info(context.Background(), "orchestratord listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	cause := <-errc
	application.logger.Info(context.Background(), "shutting down", "reason", cause)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	application.manager.Cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	wg.Wait()
	return nil
}

func newRouter(a *app) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /status", a.handleStatus)
	mux.HandleFunc("POST /sessions", a.handleCreateSession)
	mux.HandleFunc("POST /sessions/{id}/messages", a.handleSendMessage)
	mux.HandleFunc("GET /sessions/{id}/events", a.handleEvents)
	mux.HandleFunc("POST /sessions/{id}/input", a.handleUserInput)
	mux.HandleFunc("GET /sessions/{id}/changes", a.handleGetChanges)
	mux.HandleFunc("POST /sessions/{id}/changes", a.handleApplyChanges)
	mux.HandleFunc("POST /sessions/{id}/cancel", a.handleCancelSession)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (a *app) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.manager.GetStatus())
}

func (a *app) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title    string `json:"title"`
		ParentID string `json:"parentId"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	sess, err := a.sessions.CreateSession(r.Context(), body.Title, body.ParentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// handleSendMessage persists the inbound user message (C2) and hands it to
// the manager (C9), matching spec §2's data-flow description: "HTTP
// handler persists the user message in C2, then calls Manager.Process".
func (a *app) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var body struct {
		Text           string `json:"text"`
		PreferredModel string `json:"preferredModel"`
		ReasoningLevel string `json:"reasoningLevel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.Text == "" {
		writeError(w, http.StatusBadRequest, errors.New("text is required"))
		return
	}

	if _, err := a.sessions.GetSession(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	if _, err := a.sessions.AddMessage(r.Context(), session.Message{
		SessionID: sessionID,
		Role:      session.RoleUser,
		Content:   body.Text,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	a.manager.Process(sessionID, body.Text, body.PreferredModel, body.ReasoningLevel)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "processing"})
}

// handleEvents streams every bus event for one session as server-sent
// events, filtered through streamevent.ChatProfile so a chat client doesn't
// pay for the raw file-delta stream a diff viewer would want instead.
func (a *app) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	sub := streamevent.NewFilteredSubscription(a.bus.Subscribe(), streamevent.ChatProfile())
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			if ev.SessionID() != sessionID {
				continue
			}
			payload, err := encodeEvent(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// kindedEvent is satisfied by every streamevent.* struct via its embedded
// streamevent.Base; Type() is exported so this works without streamevent
// exposing an envelope type of its own.
type kindedEvent interface {
	Type() streamevent.Type
}

func encodeEvent(ev bus.Event) ([]byte, error) {
	envelope := struct {
		Type      string `json:"type"`
		SessionID string `json:"sessionId"`
		Data      any    `json:"data"`
	}{
		SessionID: ev.SessionID(),
		Data:      ev,
	}
	if k, ok := ev.(kindedEvent); ok {
		envelope.Type = string(k.Type())
	}
	return json.Marshal(envelope)
}

func (a *app) handleUserInput(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var body struct {
		RequestID string `json:"requestId"`
		Selection string `json:"selection"`
		Text      string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ok := a.manager.HandleUserInput(sessionID, body.RequestID, body.Selection, body.Text)
	writeJSON(w, http.StatusOK, map[string]bool{"resolved": ok})
}

func (a *app) handleGetChanges(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	writeJSON(w, http.StatusOK, a.manager.GetSessionChanges(sessionID))
}

func (a *app) handleApplyChanges(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var decision manager.ChangeDecision
	if err := json.NewDecoder(r.Body).Decode(&decision); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.manager.ApplySessionChanges(r.Context(), sessionID, decision)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *app) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	a.manager.CancelSessionWorkers(sessionID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}
