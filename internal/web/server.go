// Package web serves the browser chat page. Every form post is turned into one
// chat event, then the browser is redirected back to the page.
package web

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tech-advisor/internal/export"
	"tech-advisor/internal/usecase"
)

const (
	sessionCookie    = "tech_advisor_session"
	defaultMaxUpload = 10 << 20
)

// Chat is the chat service surface the page needs.
type Chat interface {
	View(ctx context.Context, id string) (usecase.View, error)
	Dispatch(ctx context.Context, id string, ev usecase.Event) (usecase.Result, error)
}

// Server is the HTTP transport for the chat page.
type Server struct {
	Chat   Chat
	Logger *slog.Logger
	// Model is shown in the page header.
	Model string
	// MaxUpload bounds an imported history file. Zero means 10 MiB.
	MaxUpload int64
	// SecureCookie marks the session cookie Secure.
	SecureCookie bool
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok\n")
	})

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /submit", s.handleSubmit)
	mux.HandleFunc("POST /clear", s.handleClear)
	mux.HandleFunc("POST /history/save", s.handleSaveHistory)
	mux.HandleFunc("POST /history/load", s.handleLoadHistory)
	mux.HandleFunc("POST /answer/save", s.handleSaveAnswer)
	mux.HandleFunc("POST /apikey", s.handleAPIKey)
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.Chat == nil {
		writeText(w, http.StatusInternalServerError, "server misconfigured: chat service is nil")
		return
	}
	view, err := s.Chat.View(r.Context(), sessionID(r))
	if err != nil {
		s.logger().Error("render view", "err", err)
		writeText(w, http.StatusInternalServerError, "could not load the session")
		return
	}
	s.setSession(w, view.SessionID)

	body, err := renderPage(view, s.Model)
	if err != nil {
		s.logger().Error("render page", "session", view.SessionID, "err", err)
		writeText(w, http.StatusInternalServerError, "could not render the page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, usecase.Event{Kind: usecase.EventSubmit, Text: r.PostFormValue("question")})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, usecase.Event{Kind: usecase.EventClear})
}

func (s *Server) handleSaveHistory(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, usecase.Event{Kind: usecase.EventSaveHistory})
}

func (s *Server) handleSaveAnswer(w http.ResponseWriter, r *http.Request) {
	raw := r.PostFormValue("format")
	format, err := export.ParseFormat(raw)
	if err != nil {
		// Unknown formats are reported by the chat service.
		format = export.Format(raw)
	}
	s.dispatch(w, r, usecase.Event{Kind: usecase.EventSaveAnswer, Format: format})
}

func (s *Server) handleAPIKey(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, r, usecase.Event{
		Kind:    usecase.EventSetAPIKey,
		Text:    r.PostFormValue("api_key"),
		Persist: r.PostFormValue("save_env") != "",
	})
}

func (s *Server) handleLoadHistory(w http.ResponseWriter, r *http.Request) {
	limit := s.MaxUpload
	if limit <= 0 {
		limit = defaultMaxUpload
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeText(w, http.StatusRequestEntityTooLarge, "history file is too large")
			return
		}
		writeText(w, http.StatusBadRequest, "invalid upload")
		return
	}
	file, _, err := r.FormFile("history")
	if errors.Is(err, http.ErrMissingFile) {
		redirectHome(w, r)
		return
	}
	if err != nil {
		writeText(w, http.StatusBadRequest, "invalid upload")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		writeText(w, http.StatusBadRequest, "could not read the uploaded file")
		return
	}
	if int64(len(data)) > limit {
		writeText(w, http.StatusRequestEntityTooLarge, "history file is too large")
		return
	}
	s.dispatch(w, r, usecase.Event{Kind: usecase.EventLoadHistory, Data: data})
}

// dispatch applies ev and redirects to the page. Event errors are already
// queued on the session as notices, so they only get logged here.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, ev usecase.Event) {
	if s.Chat == nil {
		writeText(w, http.StatusInternalServerError, "server misconfigured: chat service is nil")
		return
	}
	res, err := s.Chat.Dispatch(r.Context(), sessionID(r), ev)
	if err != nil {
		var ucErr *usecase.Error
		if errors.As(err, &ucErr) && ucErr.Code != usecase.ErrorInternal {
			s.logger().Warn("event failed", "session", res.SessionID, "event", ev.Kind, "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
		} else {
			s.logger().Error("event failed", "session", res.SessionID, "event", ev.Kind, "err", err)
		}
	} else {
		s.logger().Info("event", "session", res.SessionID, "event", ev.Kind)
	}
	if res.SessionID != "" {
		s.setSession(w, res.SessionID)
	}
	redirectHome(w, r)
}

func (s *Server) setSession(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func sessionID(r *http.Request) string {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func writeText(w http.ResponseWriter, status int, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, s+"\n")
}

// NewHTTPServer wraps h with the timeouts used by cmd/server. Write timeout
// leaves room for a slow completion call.
func NewHTTPServer(addr string, h http.Handler, requestTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      requestTimeout + 30*time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
