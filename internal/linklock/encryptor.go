package linklock

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/starford/postlock/internal/apperr"
)

// Default visible text of a locked link.
const (
	DefaultLabel     = "加密链接点击解密"
	DefaultCodeLabel = "提取码："
	lockGlyph        = "🔒"
)

// Option configures an Encryptor.
type Option func(*Encryptor)

// WithRand sets the nonce source. Tests pass a deterministic reader;
// production code leaves the default crypto/rand.Reader.
func WithRand(r io.Reader) Option {
	return func(e *Encryptor) {
		e.rand = r
	}
}

// WithLabels overrides the locked-link label and the extraction code label.
// Empty values keep the defaults.
func WithLabels(label, codeLabel string) Option {
	return func(e *Encryptor) {
		if label != "" {
			e.label = label
		}
		if codeLabel != "" {
			e.codeLabel = codeLabel
		}
	}
}

// Encryptor is a stateless text transform parameterized by a Key.
// It is safe for concurrent use when its nonce source is.
type Encryptor struct {
	aead      cipher.AEAD
	rand      io.Reader
	label     string
	codeLabel string
}

// New returns an Encryptor using AES-256-GCM under key.
func New(key Key, opts ...Option) (*Encryptor, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("linklock: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("linklock: new gcm: %w", err)
	}
	e := &Encryptor{
		aead:      aead,
		rand:      rand.Reader,
		label:     DefaultLabel,
		codeLabel: DefaultCodeLabel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// EncryptURL seals rawURL under a fresh nonce and returns
// base64url(nonce || ciphertext || tag) with padding.
func (e *Encryptor) EncryptURL(rawURL string) (string, error) {
	nonce := make([]byte, NonceSize, NonceSize+len(rawURL)+TagSize)
	if _, err := io.ReadFull(e.rand, nonce); err != nil {
		return "", fmt.Errorf("linklock: generate nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(rawURL), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// DecryptPayload reverses EncryptURL. The payload may carry the
// "encrypted:" prefix and may omit base64 padding.
func (e *Encryptor) DecryptPayload(payload string) (string, error) {
	payload = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(payload), Prefix))
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(payload, "="))
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrInvalidPayload, err)
	}
	if len(raw) < NonceSize+TagSize {
		return "", fmt.Errorf("%w: payload too short", apperr.ErrInvalidPayload)
	}
	nonce, sealed := raw[:NonceSize], raw[NonceSize:]
	plain, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrInvalidPayload, err)
	}
	return string(plain), nil
}

// Lock applies the markdown-link rule and then the bare-URL rule to body.
// It returns the rewritten body and the number of links locked. On error
// the returned body is empty: a body is never partially locked.
func (e *Encryptor) Lock(body string) (string, int, error) {
	total := 0
	out := body
	for _, r := range rules {
		next, n, err := r.apply(e, out)
		if err != nil {
			return "", 0, fmt.Errorf("linklock: %s: %w", r.name, err)
		}
		out = next
		total += n
	}
	return out, total, nil
}

// lockedLink encrypts rawURL and renders the locked-link construct.
func (e *Encryptor) lockedLink(rawURL, code string) (string, error) {
	payload, err := e.EncryptURL(rawURL)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(lockGlyph)
	b.WriteString(" ")
	b.WriteString(e.label)
	if code != "" {
		b.WriteString(" ")
		b.WriteString(e.codeLabel)
		b.WriteString(code)
	}
	b.WriteString("](")
	b.WriteString(Prefix)
	b.WriteString(payload)
	b.WriteString(")")
	return b.String(), nil
}
