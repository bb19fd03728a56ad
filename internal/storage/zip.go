package storage

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ExtractZip extracts every entry of the archive into dst and returns the
// number of files written. Entries that would land outside dst are rejected.
func (f *FS) ExtractZip(archivePath, dst string) (int, error) {
	absDst, err := f.safePath(dst)
	if err != nil {
		return 0, err
	}
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, fmt.Errorf("storage: open zip: %w", err)
	}
	defer zr.Close()

	if err := os.MkdirAll(absDst, 0o755); err != nil {
		return 0, fmt.Errorf("storage: mkdir: %w", err)
	}

	n := 0
	for _, zf := range zr.File {
		name := strings.ReplaceAll(zf.Name, "\\", "/")
		target, err := within(absDst, name)
		if err != nil {
			return n, fmt.Errorf("storage: zip entry %q: %w", zf.Name, err)
		}
		if zf.FileInfo().IsDir() || strings.HasSuffix(name, "/") {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return n, fmt.Errorf("storage: mkdir: %w", err)
			}
			continue
		}
		if err := extractEntry(zf, target); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func extractEntry(zf *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}
	rc, err := zf.Open()
	if err != nil {
		return fmt.Errorf("storage: open entry %s: %w", zf.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("storage: create %s: %w", target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return fmt.Errorf("storage: extract %s: %w", zf.Name, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("storage: close %s: %w", target, err)
	}
	return os.Chtimes(target, zf.Modified, zf.Modified)
}
