package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/postlock/internal/postservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *postservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *postservice.Service) *Handler {
	return &Handler{svc: svc}
}

// filePath extracts the post path from the URL (everything after /files/).
// Supports encoded slashes (e.g. src%2Fposts%2Fa.md).
func filePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// decodeJSON decodes an optional JSON body into v. An empty body is fine.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Build handles POST /api/build.
//
//	@Summary		Lock links in every post and copy images
//	@Tags			build
//	@Accept			json
//	@Produce		json
//	@Param			body	body		BuildRequest	false	"Build options"
//	@Success		200		{object}	build.Report
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/build [post]
func (h *Handler) Build(w http.ResponseWriter, r *http.Request) {
	var req BuildRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	images := req.Images == nil || *req.Images

	report, err := h.svc.Build(r.Context(), postservice.BuildRequest{Force: req.Force, Images: images})
	if err != nil {
		writeError(w, "build", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ListFiles handles GET /api/files.
//
//	@Summary		List journal entries
//	@Tags			journal
//	@Produce		json
//	@Param			outcome	query		string	false	"Filter by outcome"	Enums(locked, unchanged, skipped, failed)
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	FileListResponse
//	@Security		BearerAuth
//	@Router			/files [get]
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	files, total, err := h.svc.ListFiles(r.Context(), q.Get("outcome"), limit, offset)
	if err != nil {
		writeError(w, "list files", err)
		return
	}
	writeJSON(w, http.StatusOK, FileListResponse{Files: files, Total: total})
}

// GetFile handles GET /api/files/*.
//
//	@Summary		Get the journal entry of one post
//	@Tags			journal
//	@Produce		json
//	@Param			path	path		string	true	"Post path"
//	@Success		200		{object}	journal.FileRow
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{path} [get]
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	path := filePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	row, err := h.svc.GetFile(r.Context(), path)
	if err != nil {
		writeError(w, "get file", err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// ListRuns handles GET /api/runs.
//
//	@Summary		List recent build runs
//	@Tags			journal
//	@Produce		json
//	@Param			limit	query		int	false	"Max runs"
//	@Success		200		{object}	RunListResponse
//	@Security		BearerAuth
//	@Router			/runs [get]
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.svc.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, "list runs", err)
		return
	}
	writeJSON(w, http.StatusOK, RunListResponse{Runs: runs})
}

// Lock handles POST /api/lock.
//
//	@Summary		Lock the links of a Markdown text without writing any file
//	@Tags			links
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LockRequest	true	"Markdown text"
//	@Success		200		{object}	LockResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lock [post]
func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req LockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("text is required"))
		return
	}
	out, n, err := h.svc.LockText(req.Text)
	if err != nil {
		writeError(w, "lock", err)
		return
	}
	writeJSON(w, http.StatusOK, LockResponse{Text: out, Links: n})
}

// Unlock handles POST /api/unlock.
//
//	@Summary		Decrypt a locked-link payload
//	@Tags			links
//	@Accept			json
//	@Produce		json
//	@Param			body	body		UnlockRequest	true	"Payload"
//	@Success		200		{object}	UnlockResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/unlock [post]
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	var req UnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Payload == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("payload is required"))
		return
	}
	u, err := h.svc.Unlock(req.Payload)
	if err != nil {
		writeError(w, "unlock", err)
		return
	}
	writeJSON(w, http.StatusOK, UnlockResponse{URL: u})
}

// ListCommands handles GET /api/commands.
//
//	@Summary		List command presets
//	@Tags			commands
//	@Produce		json
//	@Success		200	{object}	map[string][]string
//	@Security		BearerAuth
//	@Router			/commands [get]
func (h *Handler) ListCommands(w http.ResponseWriter, r *http.Request) {
	presets := h.svc.Presets()
	if presets == nil {
		presets = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": presets})
}

// RunCommand handles POST /api/commands/{name}. Output lines are also
// published on the event stream while the command runs.
//
//	@Summary		Run a command preset
//	@Tags			commands
//	@Accept			json
//	@Produce		json
//	@Param			name	path		string			true	"Preset name"
//	@Param			body	body		CommandRequest	false	"Positional arguments"
//	@Success		200		{object}	CommandResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/commands/{name} [post]
func (h *Handler) RunCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	res, err := h.svc.Exec(r.Context(), chi.URLParam(r, "name"), req.Args, nil)
	if err != nil {
		writeError(w, "run command", err)
		return
	}
	writeJSON(w, http.StatusOK, CommandResponse{Preset: res.Preset, ExitCode: res.ExitCode, Lines: res.Lines})
}
