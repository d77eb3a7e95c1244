package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"signalcal/internal/app"
	"signalcal/internal/config"
	"signalcal/internal/familycode"
	"signalcal/internal/ics"
	appLog "signalcal/internal/log"
	"signalcal/internal/schedule"
)

// maxWeeks caps ?weeks= so a single request cannot ask for an unbounded
// schedule.
const maxWeeks = 520

// Server exposes the family code actions over HTTP. It holds no
// per-family state: every request decodes its code and regenerates.
type Server struct {
	cfg        *config.Config
	app        *app.App
	dispatcher *app.Dispatcher
	router     *chi.Mux
}

//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, a *app.App) *Server {
	s := &Server{
		cfg:        cfg,
		app:        a,
		dispatcher: app.NewDispatcher(a),
		router:     chi.NewRouter(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler, wrapped in basic auth if configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Family Signal Words", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves until ctx is cancelled, then shuts down with a
// five second grace period.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// registerRoutes wires middleware and routes. chi's request logger is not
// used: query strings may carry a family code.
func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/code", s.handleNewCode)
		r.Get("/schedule", s.handleSchedule)
		r.Post("/schedule", s.handleSchedule)
		r.Get("/current", s.handleCurrent)
		r.Post("/current", s.handleCurrent)
	})

	// Downloads accept GET links and POSTed forms alike.
	for path, h := range map[string]http.HandlerFunc{
		"/" + ics.Filename: s.handleDownload,
		"/print":           s.handlePrint,
		"/print.pdf":       s.handlePrintPDF,
	} {
		r.Get(path, h)
		r.Post(path, h)
	}

	r.Handle("/*", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type codeResponse struct {
	Code     string    `json:"code"`
	Anchor   time.Time `json:"anchor"`
	Degraded bool      `json:"degraded,omitempty"`
}

// handleNewCode issues a fresh family code.
//
// POST /api/code
func (s *Server) handleNewCode(w http.ResponseWriter, _ *http.Request) {
	sess, issued, err := s.app.Fresh(1)
	if err != nil {
		appLog.Error("api code: issue failed", err)
		writeError(w, http.StatusInternalServerError, "could not generate a family code")
		return
	}
	writeJSON(w, http.StatusOK, codeResponse{
		Code:     sess.Code().String(),
		Anchor:   sess.Anchor(),
		Degraded: issued.Degraded,
	})
}

type scheduleResponse struct {
	Weeks   int             `json:"weeks"`
	Preview app.PreviewView `json:"preview"`
}

// handleSchedule returns the first weeks of the schedule for display.
//
// GET|POST /api/schedule  code=<family code>&weeks=52
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, scheduleResponse{
		Weeks:   sess.Len(),
		Preview: app.Preview(sess, app.DefaultPreviewLimit),
	})
}

// handleCurrent returns the week active today.
//
// GET|POST /api/current  code=<family code>
func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.app.Current(sess))
}

// handleDownload serves the calendar export as an attachment.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	s.serveAction(w, r, app.ActionDownload, ics.ContentType, ics.Filename)
}

func (s *Server) handlePrint(w http.ResponseWriter, r *http.Request) {
	s.serveAction(w, r, app.ActionPrint, "text/html; charset=utf-8", "")
}

func (s *Server) handlePrintPDF(w http.ResponseWriter, r *http.Request) {
	s.serveAction(w, r, app.ActionPrintPDF, "application/pdf", "family-signal-words.pdf")
}

func (s *Server) serveAction(w http.ResponseWriter, r *http.Request, action, contentType, filename string) {
	sess, ok := s.openSession(w, r)
	if !ok {
		return
	}

	// Render fully before touching the response so errors stay clean.
	var body bytes.Buffer
	if err := s.dispatcher.Dispatch(r.Context(), action, sess, &body); err != nil {
		if errors.Is(err, app.ErrNoPrinter) {
			writeError(w, http.StatusNotImplemented, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to render "+action)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	if filename != "" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = body.WriteTo(w)
}

// openSession reads code and weeks from the query or form body and
// writes a 400 on any error.
func (s *Server) openSession(w http.ResponseWriter, r *http.Request) (app.Session, bool) {
	weeks := s.cfg.Weeks
	if v := r.FormValue("weeks"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxWeeks {
			writeError(w, http.StatusBadRequest, "weeks must be between 1 and "+strconv.Itoa(maxWeeks))
			return app.Session{}, false
		}
		weeks = n
	}

	code := r.FormValue("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "Please enter your family code.")
		return app.Session{}, false
	}

	sess, err := s.app.Open(code, weeks)
	switch {
	case err == nil:
		return sess, true
	case errors.Is(err, familycode.ErrFormat):
		writeError(w, http.StatusBadRequest, "Invalid family code format. Please check and try again.")
	case errors.Is(err, schedule.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		appLog.Error("open session failed", err)
		writeError(w, http.StatusInternalServerError, "failed to generate schedule")
	}
	return app.Session{}, false
}

// staticFileServer serves the embedded single-page UI.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}
	return http.FileServer(http.FS(sub))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
