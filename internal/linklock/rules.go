package linklock

import (
	"regexp"
	"strings"
)

type rewriteFunc func(e *Encryptor, body string) (string, int, error)

type rule struct {
	name  string
	apply rewriteFunc
}

// rules run in order: markdown links first so that bare-URL matching never
// sees a target the first rule has already locked.
var rules = []rule{
	{name: "markdown links", apply: lockMarkdownLinks},
	{name: "bare urls", apply: lockBareURLs},
}

var (
	markdownLinkRe = regexp.MustCompile(`\[([^\]]*)\]\(([^)]+)\)`)
	linkSpanRe     = regexp.MustCompile(`!?\[[^\]]*\]\([^)]+\)`)
	bareURLRe      = regexp.MustCompile(`(?:https?://|magnet:\?)[^\s<>"'()\[\]{}，。；：！？、（）【】《》“”‘’提取码]+`)
)

// lockMarkdownLinks rewrites [text](url) matches whose url is eligible.
func lockMarkdownLinks(e *Encryptor, body string) (string, int, error) {
	matches := markdownLinkRe.FindAllStringSubmatchIndex(body, -1)
	if len(matches) == 0 {
		return body, 0, nil
	}

	var b strings.Builder
	b.Grow(len(body))
	last, n := 0, 0
	for _, m := range matches {
		start, end := m[0], m[1]
		text := body[m[2]:m[3]]
		target := linkTarget(body[m[4]:m[5]])

		if start > 0 && body[start-1] == '!' {
			continue
		}
		if Classify(target) != KindEligible {
			continue
		}

		locked, err := e.lockedLink(target, ExtractCode(text))
		if err != nil {
			return "", 0, err
		}
		b.WriteString(body[last:start])
		b.WriteString(locked)
		last = end
		n++
	}
	if n == 0 {
		return body, 0, nil
	}
	b.WriteString(body[last:])
	return b.String(), n, nil
}

// linkTarget drops surrounding space and an optional "title" after the url.
func linkTarget(raw string) string {
	t := strings.TrimSpace(raw)
	if i := strings.IndexAny(t, " \t"); i >= 0 {
		t = t[:i]
	}
	return t
}

// lockBareURLs rewrites URLs that appear in plain text, line by line.
func lockBareURLs(e *Encryptor, body string) (string, int, error) {
	if !strings.Contains(body, "http://") && !strings.Contains(body, "https://") && !strings.Contains(body, "magnet:?") {
		return body, 0, nil
	}
	lines := strings.Split(body, "\n")
	total := 0
	for i, line := range lines {
		out, n, err := lockLine(e, line)
		if err != nil {
			return "", 0, err
		}
		lines[i] = out
		total += n
	}
	if total == 0 {
		return body, 0, nil
	}
	return strings.Join(lines, "\n"), total, nil
}

type span struct{ start, end int }

func (s span) overlaps(o span) bool { return s.start < o.end && o.start < s.end }

func lockLine(e *Encryptor, line string) (string, int, error) {
	idx := bareURLRe.FindAllStringIndex(line, -1)
	if len(idx) == 0 {
		return line, 0, nil
	}
	var links []span
	for _, m := range linkSpanRe.FindAllStringIndex(line, -1) {
		links = append(links, span{m[0], m[1]})
	}

	var b strings.Builder
	last, n, prevEnd := 0, 0, 0
	for k, m := range idx {
		s := span{m[0], m[1]}
		s.end = s.start + len(trimURL(line[s.start:s.end]))
		candidate := line[s.start:s.end]

		nextStart := len(line)
		if k+1 < len(idx) {
			nextStart = idx[k+1][0]
		}
		leading, trailing := line[prevEnd:s.start], line[s.end:nextStart]
		prevEnd = s.end

		if insideAny(s, links) || IsImage(candidate) || !hasBody(candidate) {
			continue
		}
		// <url> autolinks are replaced including their brackets.
		repl := s
		if repl.start > 0 && line[repl.start-1] == '<' && repl.end < len(line) && line[repl.end] == '>' {
			repl.start--
			repl.end++
		}

		code := ExtractCode(trailing)
		if code == "" {
			code = ExtractCode(leading)
		}
		locked, err := e.lockedLink(candidate, code)
		if err != nil {
			return "", 0, err
		}
		b.WriteString(line[last:repl.start])
		b.WriteString(locked)
		last = repl.end
		n++
	}
	if n == 0 {
		return line, 0, nil
	}
	b.WriteString(line[last:])
	return b.String(), n, nil
}

func insideAny(s span, spans []span) bool {
	for _, o := range spans {
		if s.overlaps(o) {
			return true
		}
	}
	return false
}

// hasBody reports whether u carries anything after its scheme.
func hasBody(u string) bool {
	for _, p := range []string{"https://", "http://", "magnet:?"} {
		if strings.HasPrefix(u, p) {
			return len(u) > len(p)
		}
	}
	return false
}

// trimURL strips sentence punctuation and the closing Markdown emphasis or
// code delimiters that rarely end a real URL.
func trimURL(u string) string {
	return strings.TrimRight(u, ".,;:!?*`~")
}
