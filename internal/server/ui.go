package server

import (
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
)

// GeneratedHandler serves the rendered Go sources under root. Directories
// are listed, .go files are returned as plain text.
func GeneratedHandler(root string) http.Handler {
	return &generatedHandler{root: root}
}

type generatedHandler struct {
	root string
}

func (h *generatedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Clean the path and keep it inside root
	p := path.Clean("/" + r.URL.Path)
	filePath := filepath.Join(h.root, filepath.FromSlash(p))

	info, err := os.Stat(filePath)
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	if !info.IsDir() {
		if path.Ext(filePath) == ".go" {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		}
		http.ServeFile(w, r, filePath)
		return
	}

	entries, err := os.ReadDir(filePath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read directory")
		return
	}

	listing := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		listing = append(listing, name)
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": p, "entries": listing})
}

var indexPage = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>SQLBridge</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            max-width: 800px;
            margin: 50px auto;
            padding: 20px;
            background: #1a1a1a;
            color: #e5e5e5;
        }
        h1 { color: #60a5fa; }
        .api-list { background: #2a2a2a; padding: 20px; border-radius: 8px; }
        .api-list a { display: block; margin: 10px 0; color: #60a5fa; }
    </style>
</head>
<body>
    <h1>SQLBridge API Server</h1>
    <div class="api-list">
        <h3>Available API Endpoints:</h3>
        {{range .}}<a href="{{.Path}}">GET {{.Path}}</a> - {{.Description}}
        {{end}}
    </div>
</body>
</html>`))

type endpoint struct {
	Path        string
	Description string
}

var endpoints = []endpoint{
	{"/api/stats", "Index statistics"},
	{"/api/tables", "Tables with column counts"},
	{"/api/views", "View names"},
	{"/api/packages", "Packages with routine counts"},
	{"/api/search?query=emp", "Search tables, views and routines"},
	{"/api/errors", "Blocks that could not be parsed"},
	{"/api/health", "Health check"},
	{"/generated/", "Rendered Go sources"},
}

// handleIndex serves the landing page listing the API.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	list := endpoints
	if s.outputDir == "" {
		list = list[:len(list)-1]
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexPage.Execute(w, list); err != nil {
		slog.Error("rendering index page", "err", err)
	}
}
