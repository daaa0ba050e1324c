package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/lirantal/devrel-cfp-committee/internal/database"
	"github.com/lirantal/devrel-cfp-committee/internal/logging"
	"github.com/lirantal/devrel-cfp-committee/internal/metrics"
	"github.com/lirantal/devrel-cfp-committee/internal/sessionize"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Server is the read-only HTTP browser over evaluation results.
type Server struct {
	db      *database.DB
	pages   map[string]*template.Template
	mux     *http.ServeMux
	logger  *logging.Logger
	metrics *metrics.Manager
	fixture string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics exposes m on /metrics.
func WithMetrics(m *metrics.Manager) Option {
	return func(s *Server) { s.metrics = m }
}

// WithFixture sets the session feed file served under /fixtures/.
func WithFixture(path string) Option {
	return func(s *Server) { s.fixture = path }
}

// speakerView is a speaker row with the data the pages need resolved.
type speakerView struct {
	database.Speaker
	Name         string
	ProfileURL   string
	SessionCount int
	Latest       *database.SpeakerEvaluation
}

// New creates a new Server.
func New(db *database.DB, opts ...Option) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"total": func(n *int) string {
			if n == nil {
				return "-"
			}
			return fmt.Sprintf("%d", *n)
		},
		"avg": func(f *float64) string {
			if f == nil {
				return "n/a"
			}
			return fmt.Sprintf("%.2f", *f)
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone so {{define "content"}} does not collide.
	pageNames := []string{"index.html", "session.html", "speakers.html", "speaker.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, pages: pages, mux: http.NewServeMux(), logger: logging.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/session/", s.handleSession)
	s.mux.HandleFunc("/speakers", s.handleSpeakers)
	s.mux.HandleFunc("/speaker/", s.handleSpeaker)
	s.mux.HandleFunc("/fixtures/db", s.handleFixture(false))
	s.mux.HandleFunc("/fixtures/sessions", s.handleFixture(true))
	if s.metrics != nil {
		s.mux.HandleFunc("/metrics", s.handleMetrics)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	stats, err := s.db.GetStats()
	if err != nil {
		s.internalError(w, "loading stats", err)
		return
	}
	processed, err := s.db.GetProcessedSessions()
	if err != nil {
		s.internalError(w, "loading processed sessions", err)
		return
	}
	unprocessed, err := s.db.GetUnprocessedSessions()
	if err != nil {
		s.internalError(w, "loading unprocessed sessions", err)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Stats":       stats,
		"Processed":   processed,
		"Unprocessed": unprocessed,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimPrefix(r.URL.Path, "/session/")
	if sessionID == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	session, err := s.db.GetSession(sessionID)
	if err != nil {
		s.internalError(w, "loading session", err)
		return
	}
	if session == nil {
		http.NotFound(w, r)
		return
	}

	var payload sessionize.Session
	if err := json.Unmarshal(session.Data, &payload); err != nil {
		s.logger.Warn("Stored session payload does not decode", "session_id", sessionID, "error", err)
	}

	speakers, err := s.db.GetSessionSpeakers(sessionID)
	if err != nil {
		s.internalError(w, "loading session speakers", err)
		return
	}
	views := make([]speakerView, 0, len(speakers))
	for _, sp := range speakers {
		latest, err := s.db.GetLatestSpeakerEvaluation(sp.ID)
		if err != nil {
			s.internalError(w, "loading speaker evaluation", err)
			return
		}
		v := newSpeakerView(sp)
		v.Latest = latest
		views = append(views, v)
	}

	s.render(w, "session.html", map[string]any{
		"Session":      session,
		"Payload":      payload,
		"KeyTakeaways": payload.KeyTakeaways(),
		"GivenBefore":  payload.GivenBefore(),
		"Speakers":     views,
	})
}

func (s *Server) handleSpeakers(w http.ResponseWriter, r *http.Request) {
	speakers, err := s.db.GetAllSpeakers()
	if err != nil {
		s.internalError(w, "loading speakers", err)
		return
	}
	counts, err := s.db.CountSessionsBySpeaker()
	if err != nil {
		s.internalError(w, "counting sessions", err)
		return
	}
	latest, err := s.db.GetLatestSpeakerEvaluations()
	if err != nil {
		s.internalError(w, "loading speaker evaluations", err)
		return
	}

	views := make([]speakerView, 0, len(speakers))
	for _, sp := range speakers {
		v := newSpeakerView(sp)
		v.SessionCount = counts[sp.ID]
		if ev, ok := latest[sp.ID]; ok {
			v.Latest = &ev
		}
		views = append(views, v)
	}

	s.render(w, "speakers.html", map[string]any{
		"Speakers": views,
	})
}

func (s *Server) handleSpeaker(w http.ResponseWriter, r *http.Request) {
	speakerID := strings.TrimPrefix(r.URL.Path, "/speaker/")
	if speakerID == "" {
		http.Redirect(w, r, "/speakers", http.StatusFound)
		return
	}

	sp, err := s.db.GetSpeaker(speakerID)
	if err != nil {
		s.internalError(w, "loading speaker", err)
		return
	}
	if sp == nil {
		http.NotFound(w, r)
		return
	}
	history, err := s.db.GetSpeakerEvaluationHistory(speakerID)
	if err != nil {
		s.internalError(w, "loading evaluation history", err)
		return
	}

	s.render(w, "speaker.html", map[string]any{
		"Speaker": newSpeakerView(*sp),
		"History": history,
	})
}

// handleFixture serves the configured session feed. With flatten set the
// response is the sessions of every group as one array.
func (s *Server) handleFixture(flatten bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
			return
		case http.MethodGet, http.MethodHead:
		default:
			w.Header().Set("Allow", "GET, OPTIONS")
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		if s.fixture == "" {
			writeJSONError(w, http.StatusNotFound, "no fixture configured")
			return
		}
		data, err := os.ReadFile(s.fixture)
		if errors.Is(err, fs.ErrNotExist) {
			writeJSONError(w, http.StatusNotFound, "fixture not found")
			return
		}
		if err != nil {
			s.logger.Error("Reading fixture failed", "path", s.fixture, "error", err)
			writeJSONError(w, http.StatusInternalServerError, "reading fixture failed")
			return
		}

		if flatten {
			feed, err := sessionize.DecodeSessionFeed(data)
			if err != nil {
				s.logger.Error("Decoding fixture failed", "path", s.fixture, "error", err)
				writeJSONError(w, http.StatusInternalServerError, "fixture is not a session feed")
				return
			}
			data, err = json.Marshal(feed.Sessions())
			if err != nil {
				s.internalError(w, "encoding sessions", err)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetStats()
	if err != nil {
		s.logger.Warn("Refreshing store gauges failed", "error", err)
	} else {
		s.metrics.SetStoreStats(stats)
	}
	s.metrics.Handler().ServeHTTP(w, r)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.logger.Error("Template not found", "template", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		s.logger.Error("Rendering template failed", "template", name, "error", err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, what string, err error) {
	s.logger.Error("Request failed", "step", what, "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func newSpeakerView(sp database.Speaker) speakerView {
	name := sp.FullName
	if name == "" {
		name = strings.TrimSpace(sp.FirstName + " " + sp.LastName)
	}
	links, _ := sessionize.ParseLinks(sp.Links)
	return speakerView{Speaker: sp, Name: name, ProfileURL: sessionize.ProfileURL(links)}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve listens on 127.0.0.1:port until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, srv *Server, port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		srv.logger.Info("Server listening", "url", "http://"+addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		return nil
	}
}
