package static

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
)

const indexFile = "index.html"

type Handler struct {
	root   string
	logger *slog.Logger
}

func New(root string, logger *slog.Logger) *Handler {
	return &Handler{
		root:   root,
		logger: logger,
	}
}

// ServeHTTP serves GET and HEAD requests from the root directory. Directories
// resolve to their index.html. Anything else is a 404.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}

	path, err := h.resolve(r.URL.Path)
	if err != nil {
		h.logger.Debug("Static asset not found",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, path)
}

func (h *Handler) resolve(urlPath string) (string, error) {
	path, err := securejoin.SecureJoin(h.root, urlPath)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	if info.IsDir() {
		path = filepath.Join(path, indexFile)
		info, err = os.Stat(path)
		if err != nil {
			return "", err
		}
	}

	if !info.Mode().IsRegular() {
		return "", os.ErrNotExist
	}

	return path, nil
}
