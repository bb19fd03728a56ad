// Package allowlist decides which post paths are exempt from link locking.
package allowlist

import (
	"path/filepath"
	"strings"
)

// List is a set of allow-list entries. An entry ending in "/" matches every
// path under that folder (prefix match); any other entry matches a file whose
// path ends with it (suffix match). Paths are compared in forward-slash form.
type List struct {
	folders []string
	files   []string
}

// New builds a List from raw entries. Blank entries are ignored and
// backslashes are normalised to forward slashes.
func New(entries []string) *List {
	l := &List{}
	for _, e := range entries {
		e = normalize(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if strings.HasSuffix(e, "/") {
			l.folders = append(l.folders, e)
		} else {
			l.files = append(l.files, e)
		}
	}
	return l
}

// Match reports whether rel (relative to the project root) is allow-listed.
func (l *List) Match(rel string) bool {
	if l == nil {
		return false
	}
	p := normalize(rel)
	for _, f := range l.folders {
		if strings.HasPrefix(p, f) {
			return true
		}
	}
	for _, f := range l.files {
		if strings.HasSuffix(p, f) {
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.folders) + len(l.files)
}

func normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = filepath.ToSlash(p)
	return strings.TrimPrefix(p, "./")
}
