// Package bundle imports zipped article bundles into the posts directory.
package bundle

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/starford/postlock/internal/apperr"
	"github.com/starford/postlock/internal/storage"
)

// TimestampLayout names the article and backup directories.
const TimestampLayout = "20060102150405"

// DefaultBackupDir is used when no backup directory is configured.
const DefaultBackupDir = "backup"

// Result describes an imported bundle.
type Result struct {
	ArticleDir string `json:"article_dir"`
	BackupDir  string `json:"backup_dir"`
	Files      int    `json:"files"`
}

// Importer extracts bundles under postsDir/<timestamp> and keeps a copy
// under backupDir/<timestamp>.
type Importer struct {
	store     storage.Provider
	postsDir  string
	backupDir string
	logger    *slog.Logger
	now       func() time.Time
}

// NewImporter creates an Importer. Directories are relative to the project root.
func NewImporter(store storage.Provider, postsDir, backupDir string, logger *slog.Logger) *Importer {
	if backupDir == "" {
		backupDir = DefaultBackupDir
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Importer{
		store:     store,
		postsDir:  postsDir,
		backupDir: backupDir,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock replaces the time source used to name directories.
func (im *Importer) SetClock(now func() time.Time) { im.now = now }

// Import extracts the zip archive at archivePath (a path on the local
// filesystem, not necessarily inside the project). It fails with
// apperr.ErrAlreadyExists when either target directory is taken, before
// anything is written.
func (im *Importer) Import(archivePath string) (*Result, error) {
	stamp := im.now().Format(TimestampLayout)
	res := &Result{
		ArticleDir: path.Join(im.postsDir, stamp),
		BackupDir:  path.Join(im.backupDir, stamp),
	}
	logger := im.logger.With(slog.String("article_dir", res.ArticleDir))

	if im.store.Exists(res.ArticleDir) {
		return nil, fmt.Errorf("bundle: %s: %w", res.ArticleDir, apperr.ErrAlreadyExists)
	}
	if im.store.Exists(res.BackupDir) {
		return nil, fmt.Errorf("bundle: %s: %w", res.BackupDir, apperr.ErrAlreadyExists)
	}

	n, err := im.store.ExtractZip(archivePath, res.ArticleDir)
	if err != nil {
		if im.store.Exists(res.ArticleDir) {
			if rmErr := im.store.RemoveAll(res.ArticleDir); rmErr != nil {
				logger.Warn("bundle: cleanup failed", slog.String("error", rmErr.Error()))
			}
		}
		if errors.Is(err, zip.ErrFormat) {
			return nil, fmt.Errorf("bundle: %s: %w", archivePath, apperr.ErrInvalidArchive)
		}
		return nil, fmt.Errorf("bundle: extract: %w", err)
	}
	res.Files = n
	logger.Info("bundle: extracted", slog.Int("files", n))

	if err := im.store.MkdirAll(im.backupDir); err != nil {
		return nil, fmt.Errorf("bundle: backup: %w", err)
	}
	if err := im.store.CopyTree(res.ArticleDir, res.BackupDir); err != nil {
		return nil, fmt.Errorf("bundle: backup: %w", err)
	}
	logger.Info("bundle: backed up", slog.String("backup_dir", res.BackupDir))
	return res, nil
}
