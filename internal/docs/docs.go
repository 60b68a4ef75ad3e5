// Package docs serves the OpenAPI description of the intake API and a
// rendered reference page.
package docs

import (
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/sendrec/clipintake/internal/httputil"
	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openapiYAML []byte

type operation struct {
	Summary string `yaml:"summary"`
}

type pathItem struct {
	Get    *operation `yaml:"get"`
	Post   *operation `yaml:"post"`
	Delete *operation `yaml:"delete"`
}

type document struct {
	Info struct {
		Title       string `yaml:"title"`
		Version     string `yaml:"version"`
		Description string `yaml:"description"`
	} `yaml:"info"`
	Paths map[string]pathItem `yaml:"paths"`
}

// endpoint is one documented route of the reference page index.
type endpoint struct {
	Method  string
	Path    string
	Summary string
}

type page struct {
	Title       string
	Version     string
	Description string
	Endpoints   []endpoint
}

func parseDocument(data []byte) (page, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return page{}, fmt.Errorf("parse openapi document: %w", err)
	}
	if doc.Info.Title == "" {
		return page{}, errors.New("parse openapi document: missing info.title")
	}

	paths := make([]string, 0, len(doc.Paths))
	for p := range doc.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var endpoints []endpoint
	for _, p := range paths {
		item := doc.Paths[p]
		for _, m := range []struct {
			method string
			op     *operation
		}{{"GET", item.Get}, {"POST", item.Post}, {"DELETE", item.Delete}} {
			if m.op != nil {
				endpoints = append(endpoints, endpoint{Method: m.method, Path: p, Summary: m.op.Summary})
			}
		}
	}

	return page{
		Title:       doc.Info.Title,
		Version:     doc.Info.Version,
		Description: doc.Info.Description,
		Endpoints:   endpoints,
	}, nil
}

var loadPage = sync.OnceValues(func() (page, error) {
	return parseDocument(openapiYAML)
})

func HandleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(openapiYAML)
}

// HandleDocs replaces the API content policy so the reference renderer can
// load from its CDN. Without scripts the page still lists every endpoint.
func HandleDocs(w http.ResponseWriter, r *http.Request) {
	p, err := loadPage()
	if err != nil {
		slog.Error("docs: invalid openapi document", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "api reference unavailable")
		return
	}

	w.Header().Set("Content-Security-Policy",
		"default-src 'self'; "+
			"script-src 'self' https://cdn.jsdelivr.net 'unsafe-inline'; "+
			"style-src 'self' https://cdn.jsdelivr.net 'unsafe-inline'; "+
			"font-src 'self' https://cdn.jsdelivr.net data:; "+
			"img-src 'self' data:; connect-src 'self'; frame-ancestors 'none';")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := docsPage.Execute(w, p); err != nil {
		slog.Error("docs: failed to render reference page", "error", err)
	}
}

var docsPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html><head>
  <title>{{.Title}} Reference</title>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <meta name="description" content="{{.Description}}">
</head><body>
  <noscript>
    <h1>{{.Title}} {{.Version}}</h1>
    <p>{{.Description}}</p>
    <ul>
    {{- range .Endpoints}}
      <li><code>{{.Method}} {{.Path}}</code>: {{.Summary}}</li>
    {{- end}}
    </ul>
    <p><a href="/api/docs/openapi.yaml">OpenAPI document</a></p>
  </noscript>
  <script id="api-reference" data-url="/api/docs/openapi.yaml"
    data-configuration='{"hideClientButton":true,"hideDownloadButton":false}'></script>
  <script src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"></script>
</body></html>`))
