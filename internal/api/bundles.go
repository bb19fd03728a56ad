package api

import (
	"io"
	"net/http"
	"os"

	"github.com/starford/postlock/internal/postservice"
)

const maxUploadBytes = 100 << 20 // 100 MB

// BundleHandler accepts zipped article bundles.
type BundleHandler struct {
	svc *postservice.Service
}

// NewBundleHandler creates a BundleHandler.
func NewBundleHandler(svc *postservice.Service) *BundleHandler {
	return &BundleHandler{svc: svc}
}

// Upload handles POST /api/bundles (multipart/form-data, field "file").
// The archive is spooled to a temporary file and imported into a new
// timestamped post directory.
func (h *BundleHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "postlock-bundle-*.zip")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to create temp file"))
		return
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, file); err != nil {
		_ = tmp.Close()
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to write file"))
		return
	}
	if err := tmp.Close(); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to write file"))
		return
	}

	res, err := h.svc.ImportBundle(r.Context(), tmp.Name())
	if err != nil {
		writeError(w, "import bundle", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
