package middleware

import (
	"net/http"
	"os"
	"path/filepath"
)

const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 200 200"><rect width="200" height="200" fill="#f0f0f0"/><rect x="55" y="40" width="90" height="120" rx="6" fill="#fff" stroke="#999" stroke-width="3"/><line x1="70" y1="70" x2="130" y2="70" stroke="#999" stroke-width="4"/><line x1="70" y1="90" x2="130" y2="90" stroke="#999" stroke-width="4"/><line x1="70" y1="110" x2="110" y2="110" stroke="#999" stroke-width="4"/><text x="100" y="180" text-anchor="middle" font-family="Arial" font-size="14" fill="#666">RECEIPT</text></svg>`

// StaticFileServer serves rendered receipt images. Missing artifacts get
// a placeholder instead of a 404 so clients always have something to show.
func StaticFileServer(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean(r.URL.Path))

		if _, err := os.Stat(path); err == nil {
			w.Header().Set("Cache-Control", "public, max-age=2592000")
			http.ServeFile(w, r, path)
			return
		}

		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Write([]byte(placeholderSVG))
	})
}
