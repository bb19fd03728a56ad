// Package models defines the domain types shared by postlock packages.
package models

import "time"

// PostMetadata is a lightweight listing entry for a Markdown post.
type PostMetadata struct {
	Path      string    `json:"path"` // forward-slash, relative to the project root
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Outcome is the result of processing one post.
type Outcome string

const (
	OutcomeLocked    Outcome = "locked"    // rewritten with at least one locked link
	OutcomeUnchanged Outcome = "unchanged" // processed, nothing to rewrite
	OutcomeSkipped   Outcome = "skipped"   // allow-listed or opted out
	OutcomeFailed    Outcome = "failed"
)

// FileResult records what happened to a single post during a build.
type FileResult struct {
	Path     string  `json:"path"`
	Title    string  `json:"title,omitempty"`
	Outcome  Outcome `json:"outcome"`
	Links    int     `json:"links"`
	Checksum string  `json:"checksum,omitempty"`
	Reason   string  `json:"reason,omitempty"`
	Error    string  `json:"error,omitempty"`
}
