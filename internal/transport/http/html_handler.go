package http

import (
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// fallbackPage is served when the web directory has no index.html.
var fallbackPage = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>{{.Service}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        code { background: #f4f4f4; padding: 2px 4px; }
    </style>
</head>
<body>
    <h1>{{.Service}}</h1>
    <p>Server time: {{.Now}}</p>
    <ul>
        {{range .Endpoints}}<li><code>{{.}}</code></li>
        {{end}}
    </ul>
</body>
</html>
`))

var endpoints = []string{
	"GET /api/health",
	"GET /api/version",
	"GET /api/stats",
	"GET /api/data?limit=50",
	"GET /api/categories",
	"GET /api/models",
	"POST /api/predict",
	"POST /api/pipeline/run",
	"GET /api/pipeline/status",
	"GET /ws",
	"GET /metrics",
}

// ServeDashboard serves webDir/index.html, or a built-in page listing the
// API when the file is absent.
func ServeDashboard(webDir, service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		indexPath := filepath.Join(webDir, "index.html")
		if _, err := os.Stat(indexPath); webDir == "" || err != nil {
			setHTMLHeaders(w)
			err := fallbackPage.Execute(w, map[string]any{
				"Service":   service,
				"Now":       time.Now().Format("2006-01-02 15:04:05"),
				"Endpoints": endpoints,
			})
			if err != nil {
				http.Error(w, "Error rendering page", http.StatusInternalServerError)
			}
			return
		}
		serveHTML(w, r, indexPath)
	}
}

// serveHTML serves an HTML file with proper headers
func serveHTML(w http.ResponseWriter, _ *http.Request, filePath string) {
	tmpl, err := template.ParseFiles(filePath)
	if err != nil {
		http.Error(w, "Error loading page", http.StatusInternalServerError)
		return
	}
	setHTMLHeaders(w)
	if err := tmpl.Execute(w, nil); err != nil {
		http.Error(w, "Error rendering page", http.StatusInternalServerError)
	}
}

func setHTMLHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
}
