package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// HandleStatic serves the front-end. Unknown paths get index.html so the
// page can route client-side.
func (h *Handler) HandleStatic(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	if path == "" {
		path = "index.html"
	}

	// Prevent directory traversal attacks
	if strings.Contains(path, "..") {
		writeError(w, http.StatusBadRequest, "Invalid file path")
		return
	}

	full := filepath.Join(h.opts.StaticDir, filepath.FromSlash(path))
	if info, err := os.Stat(full); err != nil || info.IsDir() {
		full = filepath.Join(h.opts.StaticDir, "index.html")
	}
	http.ServeFile(w, r, full)
}
