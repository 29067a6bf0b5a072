package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"notetaker/notes"
	"notetaker/transcript"
)

type (
	server struct {
		svc *notes.Service
		log *slog.Logger
		// jobs outlives individual requests so async processing is not
		// cancelled when the handler returns.
		jobs context.Context
	}

	processRequest struct {
		notes.ProcessRequest
		Async bool `json:"async"`
	}

	askRequest struct {
		Owner    string `json:"owner"`
		Question string `json:"question"`
	}

	noteResponse struct {
		Note       notes.Note              `json:"note"`
		Utterances []notes.StoredUtterance `json:"utterances"`
	}
)

func runServer(ctx context.Context, addr string, svc *notes.Service, logger *slog.Logger) error {
	s := &server{svc: svc, log: logger.With("component", "http"), jobs: ctx}

	srv := &http.Server{}
	srv.Addr = addr
	srv.Handler = s.routes()

	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http listen and serve: %w", err)
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /notes", s.createNote)
	mux.HandleFunc("GET /notes", s.listNotes)
	mux.HandleFunc("GET /notes/{id}", s.getNote)
	mux.HandleFunc("DELETE /notes/{id}", s.deleteNote)
	mux.HandleFunc("POST /ask", s.ask)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

func (s *server) createNote(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: decode body: %w", transcript.ErrInvalidInput, err))
		return
	}

	if req.Async {
		s.svc.StartProcess(s.jobs, req.ProcessRequest, nil)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "path": req.Path})
		return
	}

	res, err := s.svc.Process(r.Context(), req.ProcessRequest)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Existing {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (s *server) listNotes(w http.ResponseWriter, r *http.Request) {
	ns, err := s.svc.ListNotes(r.Context(), r.URL.Query().Get("owner"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if ns == nil {
		ns = []notes.Note{}
	}
	writeJSON(w, http.StatusOK, ns)
}

func (s *server) getNote(w http.ResponseWriter, r *http.Request) {
	n, us, err := s.svc.GetNote(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, noteResponse{Note: n, Utterances: us})
}

func (s *server) deleteNote(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteNote(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: decode body: %w", transcript.ErrInvalidInput, err))
		return
	}
	answer, err := s.svc.Ask(r.Context(), req.Owner, req.Question)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, transcript.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, notes.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, transcript.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, notes.ErrChatUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// initDB opens the SQLite database at path and migrates it. Connection
// level settings go in the DSN so every pooled connection gets them; the
// path is escaped so "?" or "#" in it stay part of the file name.
func initDB(ctx context.Context, path string) (*sql.DB, error) {
	q := url.Values{}
	q.Set("_busy_timeout", "10000")
	q.Set("_foreign_keys", "on")
	dsn := url.URL{Scheme: "file", OmitHost: true, Path: path, RawQuery: q.Encode()}
	db, err := sql.Open("sqlite3", dsn.String())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := notes.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
