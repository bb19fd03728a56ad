package linklock

import (
	"regexp"
	"strings"
)

// Kind classifies a link target.
type Kind string

// Link target kinds, in the order Classify checks them.
const (
	KindImage     Kind = "image"
	KindEncrypted Kind = "encrypted"
	KindEligible  Kind = "eligible"
	KindOther     Kind = "other"
)

var imageExtensions = []string{".webp", ".jpg", ".jpeg", ".png", ".gif", ".svg"}

// extraction code: label, optional colon, 4-6 alphanumerics not followed by another one.
var codeRe = regexp.MustCompile(`(?i)(?:提取码|extraction code)\s*[：:]\s*([A-Za-z0-9]{4,6})(?:[^A-Za-z0-9]|$)`)

// Classify reports how the encryptor treats target.
func Classify(target string) Kind {
	switch {
	case strings.HasPrefix(target, Prefix):
		return KindEncrypted
	case IsImage(target):
		return KindImage
	case strings.HasPrefix(target, "http://"),
		strings.HasPrefix(target, "https://"),
		strings.HasPrefix(target, "magnet:"):
		return KindEligible
	default:
		return KindOther
	}
}

// IsImage reports whether target ends with a known image extension,
// ignoring case. A query string or fragment after the extension makes the
// target a plain link.
func IsImage(target string) bool {
	lower := strings.ToLower(target)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// ImageExtensions returns the extensions treated as images.
func ImageExtensions() []string {
	out := make([]string, len(imageExtensions))
	copy(out, imageExtensions)
	return out
}

// ExtractCode returns the first extraction code found in text, or "".
func ExtractCode(text string) string {
	m := codeRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}
