// Package swagger serves the OpenAPI description of the replay API and a
// ReDoc page that renders it.
package swagger

import (
	"context"
	"errors"
	"net/http"
)

// Error constants.
var (
	ErrServe = errors.New("swagger serve failed")
)

// DefaultRedocURL is the ReDoc bundle the docs page loads.
const DefaultRedocURL = "https://cdn.redoc.ly/redoc/v2.1.5/bundles/redoc.standalone.js"

// Register attaches the docs routes to mux.
// Routes:
//
//	GET /api-docs      -> ReDoc HTML
//	GET /openapi.yaml  -> Embedded OpenAPI document
func Register(ctx context.Context, mux *http.ServeMux) {
	RegisterWithRedoc(ctx, mux, DefaultRedocURL)
}

// RegisterWithRedoc is Register with the ReDoc bundle loaded from redocURL.
func RegisterWithRedoc(_ context.Context, mux *http.ServeMux, redocURL string) {
	if mux == nil {
		panic("mux is nil")
	}
	if redocURL == "" {
		redocURL = DefaultRedocURL
	}
	page := []byte(indexHTML(redocURL))

	mux.HandleFunc("GET /api-docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	})

	mux.HandleFunc("GET /openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		_, _ = w.Write(OpenAPI)
	})
}

func indexHTML(redocURL string) string {
	return `<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>Ovation API Docs</title>
    <style>body{margin:0;padding:0}</style>
  </head>
  <body>
    <redoc id="redoc-container"></redoc>
    <script src="` + redocURL + `"></script>
    <script>Redoc.init('/openapi.yaml', { suppressWarnings: true }, document.getElementById('redoc-container'));</script>
  </body>
</html>`
}
