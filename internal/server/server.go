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
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/pulsefeed/internal/database"
	"github.com/TobiSchelling/pulsefeed/internal/feed"
	"github.com/TobiSchelling/pulsefeed/internal/metrics"
	"github.com/TobiSchelling/pulsefeed/internal/service"
	"github.com/TobiSchelling/pulsefeed/internal/trending"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

const excerptLength = 280

// Options configure the HTTP surface.
type Options struct {
	InteractionsPerSecond float64
	InteractionBurst      int
	Metrics               bool
}

// Server serves the trending page and the JSON API.
type Server struct {
	svc     *service.Service
	db      *database.DB
	pages   map[string]*template.Template
	mux     *http.ServeMux
	limiter *rate.Limiter
}

// New creates a new Server.
func New(svc *service.Service, db *database.DB, opts Options) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"excerpt":  excerpt,
		"score":    func(f float64) string { return strconv.FormatFloat(f, 'f', 1, 64) },
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	pageNames := []string{"index.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	limit := rate.Inf
	if opts.InteractionsPerSecond > 0 {
		limit = rate.Limit(opts.InteractionsPerSecond)
	}
	burst := opts.InteractionBurst
	if burst <= 0 {
		burst = 1
	}

	s := &Server{
		svc:     svc,
		db:      db,
		pages:   pages,
		mux:     http.NewServeMux(),
		limiter: rate.NewLimiter(limit, burst),
	}
	s.routes(opts.Metrics)
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		s.mux.ServeHTTP(rec, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.IncHTTPRequest(route, rec.code)
	})
}

func (s *Server) routes(withMetrics bool) {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/trending", s.handleTrending)
	s.mux.HandleFunc("GET /api/trending/related", s.handleRelated)
	s.mux.HandleFunc("GET /api/feed/{user}", s.handleFeed)
	s.mux.HandleFunc("GET /api/feed/{user}/config", s.handleGetFeedConfig)
	s.mux.HandleFunc("PUT /api/feed/{user}/config", s.handlePutFeedConfig)
	s.mux.HandleFunc("POST /api/interactions", s.handleInteraction)
	s.mux.HandleFunc("GET /api/articles/{id}", s.handleArticle)
	if withMetrics {
		s.mux.Handle("GET /metrics", metrics.Handler())
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	topics, err := s.svc.Trending(r.Context(), "", 0, 0)
	if err != nil {
		log.Printf("Error loading trending topics: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	articles, err := s.db.GetRecentArticles(r.Context(), 20)
	if err != nil {
		log.Printf("Error loading recent articles: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Topics":   topics,
		"Articles": articles,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	count, err := intParam(q.Get("count"), 0)
	if err != nil {
		writeError(w, err)
		return
	}
	minScore, err := floatParam(q.Get("minScore"))
	if err != nil {
		writeError(w, err)
		return
	}

	topics, err := s.svc.Trending(r.Context(), q.Get("category"), minScore, count)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topics)
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), 10)
	if err != nil {
		writeError(w, err)
		return
	}
	articles, err := s.svc.RelatedArticles(r.Context(), q.Get("topic"), q.Get("category"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, articles)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	var exclude []string
	for _, c := range strings.Split(r.URL.Query().Get("exclude"), ",") {
		if c = strings.TrimSpace(c); c != "" {
			exclude = append(exclude, c)
		}
	}

	ranked, err := s.svc.Feed(r.Context(), r.PathValue("user"), exclude)
	if err != nil {
		writeError(w, err)
		return
	}
	if ranked == nil {
		ranked = []feed.Scored{}
	}
	writeJSON(w, http.StatusOK, ranked)
}

func (s *Server) handleGetFeedConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.svc.FeedConfiguration(r.Context(), r.PathValue("user"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePutFeedConfig(w http.ResponseWriter, r *http.Request) {
	var cfg feed.Configuration
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&cfg); err != nil {
		writeError(w, fmt.Errorf("%w: %v", service.ErrInvalidArgument, err))
		return
	}
	cfg.UserID = r.PathValue("user")

	if err := s.svc.UpdateFeedConfiguration(r.Context(), cfg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type interactionRequest struct {
	UserID    string `json:"userId"`
	ArticleID int64  `json:"articleId"`
	Kind      string `json:"kind"`
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		return
	}

	var req interactionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12)).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", service.ErrInvalidArgument, err))
		return
	}
	if err := s.svc.RecordInteraction(r.Context(), req.UserID, req.ArticleID, req.Kind); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

type articleView struct {
	ID          int64      `json:"id"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Source      string     `json:"source,omitempty"`
	Category    string     `json:"category"`
	Topic       string     `json:"topic"`
	PublishedAt *time.Time `json:"publishTimestamp,omitempty"`
	Content     string     `json:"content,omitempty"`
}

func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, fmt.Errorf("%w: article id %q", service.ErrInvalidArgument, r.PathValue("id")))
		return
	}

	a, err := s.db.GetArticleByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if a == nil {
		writeError(w, fmt.Errorf("article %d: %w", id, service.ErrNotFound))
		return
	}

	if user := r.URL.Query().Get("user"); user != "" {
		if err := s.svc.RecordInteraction(r.Context(), user, id, "view"); err != nil {
			log.Printf("Failed to record view of %d by %s: %v", id, user, err)
		}
	}

	view := articleView{
		ID: a.ID, URL: a.URL, Title: a.Title, Category: a.Category, Topic: a.Topic, PublishedAt: a.PublishedAt,
	}
	if a.Source != nil {
		view.Source = *a.Source
	}
	if a.Content != nil {
		view.Content = *a.Content
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidArgument),
		errors.Is(err, service.ErrUnknownKind),
		errors.Is(err, trending.ErrInvalidConfig),
		errors.Is(err, feed.ErrInvalidConfig):
		code = http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		code = http.StatusNotFound
	default:
		log.Printf("Internal error: %v", err)
	}

	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", service.ErrInvalidArgument, v)
	}
	return n, nil
}

func floatParam(v string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", service.ErrInvalidArgument, v)
	}
	return f, nil
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// excerpt shortens article content on a word boundary.
func excerpt(content *string) string {
	if content == nil {
		return ""
	}
	text := strings.TrimSpace(*content)
	if len(text) <= excerptLength {
		return text
	}
	cut := strings.LastIndex(text[:excerptLength], " ")
	if cut <= 0 {
		cut = excerptLength
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
	}
	return text[:cut] + "…"
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Serve runs the HTTP server on the given port until ctx is cancelled.
func Serve(ctx context.Context, handler http.Handler, port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on http://%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
