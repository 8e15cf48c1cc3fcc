// Package server exposes the indexed archive over a local web UI: a status
// page for the registry and index, a search page backed by the ranker, and
// per-document views.
package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/gchatrian/BLOOMBERG-RAG/internal/rank"
	"github.com/gchatrian/BLOOMBERG-RAG/internal/registry"
	"github.com/gchatrian/BLOOMBERG-RAG/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Server is the HTTP server for the alert archive.
type Server struct {
	db     *store.DB
	reg    *registry.Registry
	ranker *rank.Ranker
	pages  map[string]*template.Template
	mux    *http.ServeMux
}

// New creates a new Server.
func New(db *store.DB, reg *registry.Registry, ranker *rank.Ranker) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"date": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("2006-01-02")
		},
		"datetime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("2006-01-02 15:04")
		},
		"score": func(f float64) string {
			return fmt.Sprintf("%.3f", f)
		},
		"join": strings.Join,
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	pageNames := []string{"index.html", "search.html", "document.html"}
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

	s := &Server{db: db, reg: reg, ranker: ranker, pages: pages, mux: http.NewServeMux()}
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
	s.mux.HandleFunc("/search", s.handleSearch)
	s.mux.HandleFunc("/doc/", s.handleDocument)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	docCount, err := s.db.CountDocuments()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	recent, err := s.db.RecentDocuments(10)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	pending := s.reg.All(registry.StatePending)
	if len(pending) > 25 {
		pending = pending[:25]
	}

	s.render(w, "index.html", map[string]any{
		"Stats":    s.reg.Stats(),
		"DocCount": docCount,
		"Recent":   recent,
		"Pending":  pending,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	data := map[string]any{
		"Query":   q,
		"Weight":  r.URL.Query().Get("weight"),
		"Topics":  r.URL.Query().Get("topics"),
		"People":  r.URL.Query().Get("people"),
		"Tickers": r.URL.Query().Get("tickers"),
	}
	if q == "" {
		s.render(w, "search.html", data)
		return
	}

	query, err := queryFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	results, err := s.ranker.Rank(ctx, *query)
	if errors.Is(err, rank.ErrInvalidQuery) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Printf("Search failed: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	data["Results"] = results
	data["Searched"] = true
	s.render(w, "search.html", data)
}

func queryFromRequest(r *http.Request) (*rank.Query, error) {
	values := r.URL.Query()
	query := &rank.Query{Text: strings.TrimSpace(values.Get("q"))}

	if raw := values.Get("k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid k: %q", raw)
		}
		query.TopK = k
	}
	if raw := values.Get("weight"); raw != "" {
		weight, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight: %q", raw)
		}
		query.RecencyWeight = &weight
	}
	query.Filter.Topics = splitList(values.Get("topics"))
	query.Filter.People = splitList(values.Get("people"))
	query.Filter.Tickers = splitList(values.Get("tickers"))

	if raw := values.Get("start"); raw != "" {
		start, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, fmt.Errorf("invalid start date: %q", raw)
		}
		query.Filter.Start = start
	}
	if raw := values.Get("end"); raw != "" {
		end, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, fmt.Errorf("invalid end date: %q", raw)
		}
		query.Filter.End = end
	}
	return query, nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/doc/")
	if id == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	doc, err := s.db.GetDocument(id)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if doc == nil {
		http.NotFound(w, r)
		return
	}

	s.render(w, "document.html", map[string]any{
		"Doc": doc,
	})
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port.
func Serve(db *store.DB, reg *registry.Registry, ranker *rank.Ranker, port int) error {
	srv, err := New(db, reg, ranker)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
