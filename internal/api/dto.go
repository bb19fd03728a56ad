package api

import (
	"github.com/starford/postlock/internal/journal"
	"github.com/starford/postlock/internal/shell"
)

// BuildRequest is the request body for POST /build. Images defaults to true.
type BuildRequest struct {
	Force  bool  `json:"force" example:"false"`
	Images *bool `json:"images,omitempty" example:"true"`
}

// LockRequest is the request body for POST /lock.
type LockRequest struct {
	Text string `json:"text" example:"[网盘 提取码：ab12](https://pan.example.com/s/1)" validate:"required"`
}

// LockResponse carries the locked text.
type LockResponse struct {
	Text  string `json:"text" validate:"required"`
	Links int    `json:"links" example:"1" validate:"required"`
}

// UnlockRequest is the request body for POST /unlock.
type UnlockRequest struct {
	Payload string `json:"payload" example:"encrypted:..." validate:"required"`
}

// UnlockResponse carries the decrypted URL.
type UnlockResponse struct {
	URL string `json:"url" example:"https://pan.example.com/s/1" validate:"required"`
}

// FileListResponse wraps paginated journal entries.
type FileListResponse struct {
	Files []journal.FileRow `json:"files" validate:"required"`
	Total int               `json:"total" example:"42" validate:"required"`
}

// RunListResponse wraps build runs.
type RunListResponse struct {
	Runs []journal.RunRow `json:"runs" validate:"required"`
}

// CommandRequest is the request body for POST /commands/{name}.
type CommandRequest struct {
	Args []string `json:"args,omitempty" example:"publish notes"`
}

// CommandResponse is the collected output of a preset.
type CommandResponse struct {
	Preset   string       `json:"preset" validate:"required"`
	ExitCode int          `json:"exit_code" validate:"required"`
	Lines    []shell.Line `json:"lines" validate:"required"`
}
