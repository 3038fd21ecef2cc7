// Package browse serves a loaded catalog over HTTP for notebooks and
// quick inspection.
package browse

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/floodcat/internal/stac"
)

// CollectionSummary describes one collection of the tree.
type CollectionSummary struct {
	ID     string `json:"id"`
	Title  string `json:"title,omitempty"`
	Parent string `json:"parent"`
	Items  int    `json:"items"`
}

type server struct {
	root *stac.Catalog
}

// NewRouter returns the browse API over root. When docsDir is non-empty the
// saved catalog documents under it are served at /catalog/.
func NewRouter(root *stac.Catalog, docsDir string) http.Handler {
	s := &server{root: root}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Get("/collections", s.collections)
	r.Get("/items/{id}", s.item)
	r.Get("/items/{id}/links/{rel}", s.links)

	if docsDir != "" {
		fs := http.StripPrefix("/catalog/", http.FileServer(http.Dir(docsDir)))
		r.Get("/catalog/*", fs.ServeHTTP)
	}
	return r
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "catalog": s.root.ID})
}

func (s *server) collections(w http.ResponseWriter, _ *http.Request) {
	out := []CollectionSummary{}
	var visit func(parent *stac.Catalog)
	visit = func(parent *stac.Catalog) {
		for _, child := range parent.Children() {
			if child.IsCollection() {
				out = append(out, CollectionSummary{
					ID:     child.ID,
					Title:  child.Title,
					Parent: parent.ID,
					Items:  len(child.Items()),
				})
			}
			visit(child)
		}
	}
	visit(s.root)
	writeJSON(w, http.StatusOK, out)
}

func (s *server) item(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	item, ok := s.root.GetItem(id, true)
	if !ok {
		writeError(w, http.StatusNotFound, "item not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *server) links(w http.ResponseWriter, r *http.Request) {
	id, rel := chi.URLParam(r, "id"), chi.URLParam(r, "rel")
	item, ok := s.root.GetItem(id, true)
	if !ok {
		writeError(w, http.StatusNotFound, "item not found: "+id)
		return
	}

	targets := []*stac.Item{}
	for _, l := range item.LinksByRel(rel) {
		if l.TargetID == "" {
			continue
		}
		target, err := s.root.ResolveLink(l)
		if errors.Is(err, stac.ErrNotFound) {
			zap.L().Warn("browse: dangling link",
				zap.String("item", id),
				zap.String("rel", rel),
				zap.String("target", l.TargetID),
			)
			continue
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		targets = append(targets, target)
	}
	writeJSON(w, http.StatusOK, targets)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("browse: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
