package server

import (
	"io/fs"
	"net/http"
	"strings"

	"github.com/sendrec/clipintake/internal/httputil"
)

// pageServer serves the intake page bundle. Unknown paths fall back to
// index.html so the page can own its own routes.
type pageServer struct {
	files http.Handler
	fsys  fs.FS
}

func newPageServer(fsys fs.FS) *pageServer {
	return &pageServer{files: http.FileServer(http.FS(fsys)), fsys: fsys}
}

func (s *pageServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		httputil.WriteError(w, http.StatusNotFound, "not found")
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/")
	if name == "" {
		name = "index.html"
	}
	if _, err := fs.Stat(s.fsys, name); err != nil {
		r.URL.Path = "/"
		name = "index.html"
	}
	if name == "index.html" {
		w.Header().Set("Cache-Control", "no-cache")
	}

	s.files.ServeHTTP(w, r)
}
