// Package parser splits Markdown posts into a front-matter block and a body
// and joins them back without touching the front-matter bytes.
package parser

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"
)

const delim = "---"

// Document is a parsed Markdown post.
//
// Prefix holds the raw front-matter block including both delimiter lines
// (empty when the post has none). It is written back verbatim.
type Document struct {
	Prefix      string
	Frontmatter map[string]interface{}
	Body        string
	Title       string
}

// Parse separates front-matter from body. Invalid YAML inside the
// delimiters keeps the block opaque with a nil Frontmatter map.
func Parse(data []byte) (*Document, error) {
	prefix, yamlBlock, body := splitFrontmatter(data)

	var fm map[string]interface{}
	if prefix != "" {
		if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
			fm = nil
		}
	}

	return &Document{
		Prefix:      prefix,
		Frontmatter: fm,
		Body:        body,
		Title:       deriveTitle(fm, body),
	}, nil
}

// Bytes joins the untouched front-matter block with body.
func (d *Document) Bytes(body string) []byte {
	return []byte(d.Prefix + body)
}

// LockDisabled reports whether the post opts out of link locking with
// `encrypt_links: false` in its front-matter.
func (d *Document) LockDisabled() bool {
	if d.Frontmatter == nil {
		return false
	}
	v, ok := d.Frontmatter["encrypt_links"].(bool)
	return ok && !v
}

// splitFrontmatter returns the raw front-matter block (delimiters and the
// newline after the closing one included), the YAML between the delimiters,
// and the body. Without a well-formed block the whole input is body.
func splitFrontmatter(data []byte) (string, []byte, string) {
	first, rest, ok := cutLine(data)
	if !ok || string(bytes.TrimRight(first, "\r")) != delim {
		return "", nil, string(data)
	}

	offset := len(data) - len(rest)
	yamlStart := offset
	for len(rest) > 0 {
		line, next, _ := cutLine(rest)
		if string(bytes.TrimRight(line, "\r")) == delim {
			end := len(data) - len(next)
			return string(data[:end]), data[yamlStart:offset], string(data[end:])
		}
		offset += len(rest) - len(next)
		rest = next
	}
	// No closing delimiter: treat everything as body.
	return "", nil, string(data)
}

// cutLine splits off the first line (without its '\n'). ok is false when
// data has no newline at all.
func cutLine(data []byte) (line, rest []byte, ok bool) {
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		return data, nil, false
	}
	return data[:i], data[i+1:], true
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]interface{}, body string) string {
	if fm != nil {
		if t, ok := fm["title"]; ok {
			if s, ok := t.(string); ok && s != "" {
				return s
			}
		}
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
