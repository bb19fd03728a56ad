package linklock

import (
	"encoding/base64"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/starford/postlock/internal/apperr"
)

// seqReader yields 0,1,2,... so nonces are reproducible.
type seqReader struct{ n byte }

func (r *seqReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.n
		r.n++
	}
	return len(p), nil
}

type failReader struct{}

func (failReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

var payloadRe = regexp.MustCompile(`\(encrypted:([A-Za-z0-9_=-]+)\)`)

func testKey(t *testing.T) Key {
	t.Helper()
	k, err := DeriveKey("test-passphrase", DefaultSalt, 1000)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	return k
}

func testEncryptor(t *testing.T, opts ...Option) *Encryptor {
	t.Helper()
	e, err := New(testKey(t), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func payloads(t *testing.T, body string) []string {
	t.Helper()
	var out []string
	for _, m := range payloadRe.FindAllStringSubmatch(body, -1) {
		out = append(out, m[1])
	}
	return out
}

func TestDeriveKey_Deterministic(t *testing.T) {
	a, err := DeriveKey("secret", "salt", 1000)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := DeriveKey("secret", "salt", 1000)
	if a != b {
		t.Error("same inputs should derive the same key")
	}
	c, _ := DeriveKey("secret", "other-salt", 1000)
	if a == c {
		t.Error("different salt should derive a different key")
	}
}

func TestDeriveKey_EmptyPassphrase(t *testing.T) {
	if _, err := DeriveKey("", DefaultSalt, 0); err == nil {
		t.Fatal("expected error for empty passphrase")
	}
}

func TestEncryptURL_RoundTrip(t *testing.T) {
	e := testEncryptor(t)
	urls := []string{
		"https://pan.baidu.com/s/1AbCdEf?pwd=ab12",
		"http://example.com/下载/文件.zip",
		"magnet:?xt=urn:btih:c12fe1c06bba254a9dc9f519b335aa7c1367a88a&dn=file",
	}
	for _, u := range urls {
		payload, err := e.EncryptURL(u)
		if err != nil {
			t.Fatalf("EncryptURL(%q): %v", u, err)
		}
		if strings.ContainsAny(payload, "+/") {
			t.Errorf("payload %q is not URL-safe", payload)
		}
		raw, err := base64.URLEncoding.DecodeString(payload)
		if err != nil {
			t.Fatalf("payload not padded base64url: %v", err)
		}
		if len(raw) != NonceSize+len(u)+TagSize {
			t.Errorf("payload length = %d, want %d", len(raw), NonceSize+len(u)+TagSize)
		}
		got, err := e.DecryptPayload(Prefix + payload)
		if err != nil {
			t.Fatalf("DecryptPayload: %v", err)
		}
		if got != u {
			t.Errorf("round trip = %q, want %q", got, u)
		}
	}
}

func TestEncryptURL_FreshNonce(t *testing.T) {
	e := testEncryptor(t)
	a, _ := e.EncryptURL("https://example.com")
	b, _ := e.EncryptURL("https://example.com")
	if a == b {
		t.Error("two encryptions of the same URL should differ")
	}
}

func TestEncryptURL_FixedNonceReproducible(t *testing.T) {
	body := "see [download](https://example.com/file.zip) now"
	a := testEncryptor(t, WithRand(&seqReader{}))
	b := testEncryptor(t, WithRand(&seqReader{}))
	outA, _, err := a.Lock(body)
	if err != nil {
		t.Fatal(err)
	}
	outB, _, _ := b.Lock(body)
	if outA != outB {
		t.Errorf("seeded encryptors diverged:\n%s\n%s", outA, outB)
	}
}

func TestDecryptPayload_Unpadded(t *testing.T) {
	e := testEncryptor(t)
	payload, _ := e.EncryptURL("https://example.com/x")
	got, err := e.DecryptPayload(strings.TrimRight(payload, "="))
	if err != nil {
		t.Fatalf("DecryptPayload: %v", err)
	}
	if got != "https://example.com/x" {
		t.Errorf("got %q", got)
	}
}

func TestDecryptPayload_Invalid(t *testing.T) {
	e := testEncryptor(t)
	other, err := DeriveKey("another-passphrase", DefaultSalt, 1000)
	if err != nil {
		t.Fatal(err)
	}
	foreign, _ := New(other)
	sealed, _ := foreign.EncryptURL("https://example.com")

	cases := map[string]string{
		"not base64": "encrypted:%%%%",
		"too short":  "encrypted:AAAA",
		"wrong key":  sealed,
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.DecryptPayload(p)
			if !errors.Is(err, apperr.ErrInvalidPayload) {
				t.Errorf("err = %v, want ErrInvalidPayload", err)
			}
		})
	}
}

func TestLock_MarkdownLink(t *testing.T) {
	e := testEncryptor(t)
	out, n, err := e.Lock("Download: [the file](https://example.com/file.zip).")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("locked = %d, want 1", n)
	}
	if !strings.HasPrefix(out, "Download: [🔒 "+DefaultLabel+"](encrypted:") || !strings.HasSuffix(out, ").") {
		t.Errorf("unexpected output %q", out)
	}
	ps := payloads(t, out)
	if len(ps) != 1 {
		t.Fatalf("payloads = %v", ps)
	}
	got, err := e.DecryptPayload(ps[0])
	if err != nil || got != "https://example.com/file.zip" {
		t.Errorf("decrypt = %q, %v", got, err)
	}
}

func TestLock_MarkdownLinkTitleDropped(t *testing.T) {
	e := testEncryptor(t)
	out, _, err := e.Lock(`[x](https://example.com/a "Title")`)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := e.DecryptPayload(payloads(t, out)[0])
	if got != "https://example.com/a" {
		t.Errorf("decrypt = %q", got)
	}
}

func TestLock_ImagesUntouched(t *testing.T) {
	e := testEncryptor(t)
	cases := []string{
		"![cover](https://cdn.example.com/cover.png)",
		"[cover](https://cdn.example.com/cover.webp)",
		"[cover](https://cdn.example.com/COVER.JPG)",
		"![remote](https://cdn.example.com/render?id=7)",
		"bare image https://cdn.example.com/pic.gif here",
		"[logo](./logo.svg)",
	}
	for _, in := range cases {
		out, n, err := e.Lock(in)
		if err != nil {
			t.Fatal(err)
		}
		if out != in || n != 0 {
			t.Errorf("Lock(%q) = %q (%d), want unchanged", in, out, n)
		}
	}
}

func TestLock_OtherLinksUntouched(t *testing.T) {
	e := testEncryptor(t)
	in := "[about](/about) [mail](mailto:me@example.com) [anchor](#top) [[wiki]]"
	out, n, err := e.Lock(in)
	if err != nil {
		t.Fatal(err)
	}
	if out != in || n != 0 {
		t.Errorf("Lock = %q (%d), want unchanged", out, n)
	}
}

func TestLock_ExtractionCodeInText(t *testing.T) {
	e := testEncryptor(t)
	cases := []struct {
		in, want string
	}{
		{"[百度网盘 提取码：AB12](https://pan.baidu.com/s/1x)", "提取码：AB12]"},
		{"[网盘 提取码: x9y8z7](https://pan.baidu.com/s/1x)", "提取码：x9y8z7]"},
		{"[mirror extraction code: AB12](https://pan.example.com/s/1x)", "提取码：AB12]"},
	}
	for _, tc := range cases {
		out, _, err := e.Lock(tc.in)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out, tc.want) {
			t.Errorf("Lock(%q) = %q, want it to contain %q", tc.in, out, tc.want)
		}
	}
}

func TestLock_CustomLabels(t *testing.T) {
	e := testEncryptor(t, WithLabels("Locked link", "extraction code: "))
	out, _, err := e.Lock("[disk extraction code: AB12](https://pan.example.com/s/1)")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "[🔒 Locked link extraction code: AB12](encrypted:") {
		t.Errorf("out = %q", out)
	}
}

func TestLock_NoCodeNoSuffix(t *testing.T) {
	e := testEncryptor(t)
	out, _, _ := e.Lock("[drive](https://drive.example.com/f/1)")
	if strings.Contains(out, DefaultCodeLabel) {
		t.Errorf("unexpected code suffix in %q", out)
	}
}

func TestLock_BareURLWithTrailingCode(t *testing.T) {
	e := testEncryptor(t)
	in := "链接：https://pan.baidu.com/s/1abcXYZ 提取码：wxyz"
	out, n, err := e.Lock(in)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("locked = %d, want 1", n)
	}
	if !strings.HasPrefix(out, "链接：[🔒 "+DefaultLabel+" 提取码：wxyz](encrypted:") {
		t.Errorf("out = %q", out)
	}
	if !strings.HasSuffix(out, ") 提取码：wxyz") {
		t.Errorf("surrounding text not preserved: %q", out)
	}
	got, _ := e.DecryptPayload(payloads(t, out)[0])
	if got != "https://pan.baidu.com/s/1abcXYZ" {
		t.Errorf("decrypt = %q", got)
	}
}

func TestLock_BareURLLeadingCode(t *testing.T) {
	e := testEncryptor(t)
	out, _, err := e.Lock("提取码：q1w2 地址 https://pan.example.com/s/9")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "提取码：q1w2](encrypted:") {
		t.Errorf("out = %q", out)
	}
}

func TestLock_BareURLsEachGetOwnCode(t *testing.T) {
	e := testEncryptor(t)
	out, n, err := e.Lock("A https://a.example.com/s/1 提取码：aaaa B https://b.example.com/s/2 提取码：bbbb")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("locked = %d", n)
	}
	ps := payloads(t, out)
	first, _ := e.DecryptPayload(ps[0])
	second, _ := e.DecryptPayload(ps[1])
	if first != "https://a.example.com/s/1" || second != "https://b.example.com/s/2" {
		t.Errorf("decrypted %q, %q", first, second)
	}
	if !strings.Contains(out, "提取码：aaaa](encrypted:") || !strings.Contains(out, "提取码：bbbb](encrypted:") {
		t.Errorf("codes not attached per URL: %q", out)
	}
}

func TestLock_BareURLSentencePunctuation(t *testing.T) {
	e := testEncryptor(t)
	out, _, err := e.Lock("Get it at https://example.com/dl.")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(out, ").") {
		t.Errorf("trailing period should stay outside the link: %q", out)
	}
	got, _ := e.DecryptPayload(payloads(t, out)[0])
	if got != "https://example.com/dl" {
		t.Errorf("decrypt = %q", got)
	}
}

func TestLock_Autolink(t *testing.T) {
	e := testEncryptor(t)
	out, n, err := e.Lock("see <https://example.com/x> please")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || !strings.HasPrefix(out, "see [🔒") || !strings.HasSuffix(out, ") please") {
		t.Errorf("out = %q (%d)", out, n)
	}
}

func TestLock_Magnet(t *testing.T) {
	e := testEncryptor(t)
	in := "[种子](magnet:?xt=urn:btih:abcdef)\nmagnet:?xt=urn:btih:123456"
	out, n, err := e.Lock(in)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || strings.Contains(out, "magnet:") {
		t.Errorf("out = %q (%d)", out, n)
	}
}

func TestLock_MalformedLeftAsIs(t *testing.T) {
	e := testEncryptor(t)
	in := "broken [link](https://example.com and https:// alone"
	out, _, err := e.Lock(in)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "https:// alone") {
		t.Errorf("scheme-only token should be untouched: %q", out)
	}
}

func TestLock_Idempotent(t *testing.T) {
	e := testEncryptor(t)
	in := strings.Join([]string{
		"# Resources",
		"[网盘 提取码：AB12](https://pan.baidu.com/s/1x)",
		"备用：https://mirror.example.com/s/2 提取码：cd34",
		"![shot](./shot.png)",
		"[already](encrypted:AAAA)",
	}, "\n")
	once, _, err := e.Lock(in)
	if err != nil {
		t.Fatal(err)
	}
	twice, n, err := e.Lock(once)
	if err != nil {
		t.Fatal(err)
	}
	if twice != once || n != 0 {
		t.Errorf("second pass changed output (%d links):\n%s\n---\n%s", n, once, twice)
	}
}

func TestLock_NoEligibleLinksIdentity(t *testing.T) {
	e := testEncryptor(t)
	in := "# Title\n\nPlain text, `code`, and [a local link](../other/).\r\n\n"
	out, n, err := e.Lock(in)
	if err != nil {
		t.Fatal(err)
	}
	if out != in || n != 0 {
		t.Errorf("Lock changed input: %q", out)
	}
}

func TestLock_NonceFailureAbortsWholeBody(t *testing.T) {
	e := testEncryptor(t, WithRand(failReader{}))
	out, n, err := e.Lock("[a](https://a.example.com) and https://b.example.com")
	if err == nil {
		t.Fatal("expected error")
	}
	if out != "" || n != 0 {
		t.Errorf("partial result leaked: %q (%d)", out, n)
	}
}

func TestClassify(t *testing.T) {
	cases := map[string]Kind{
		"https://a.com":         KindEligible,
		"http://a.com":          KindEligible,
		"magnet:?xt=urn:btih:1": KindEligible,
		"encrypted:AAAA":        KindEncrypted,
		"https://a.com/b.png":   KindImage,
		"./c.svg":               KindImage,
		"mailto:x@y.z":          KindOther,
		"/about":                KindOther,
	}
	for in, want := range cases {
		if got := Classify(in); got != want {
			t.Errorf("Classify(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestExtractCode(t *testing.T) {
	cases := map[string]string{
		"提取码：AB12":              "AB12",
		"提取码:ab12cd":             "ab12cd",
		"Extraction Code: zz99":  "zz99",
		"提取码：ABCDEFG":           "",
		"提取码：ab":                "",
		"no code here":           "",
		"提取码：wxyz--来自百度网盘的分享": "wxyz",
	}
	for in, want := range cases {
		if got := ExtractCode(in); got != want {
			t.Errorf("ExtractCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLock_ImageExtensionBeforeQueryIsLocked(t *testing.T) {
	e := testEncryptor(t)
	cases := map[string]string{
		"[dl](https://x.example.com/file.png?dl=1)":  "https://x.example.com/file.png?dl=1",
		"get https://x.example.com/file.PNG?dl=1 now": "https://x.example.com/file.PNG?dl=1",
		"[v](https://x.example.com/a.jpg#full)":       "https://x.example.com/a.jpg#full",
	}
	for in, want := range cases {
		out, n, err := e.Lock(in)
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 || strings.Contains(out, "x.example.com") {
			t.Errorf("Lock(%q) = %q (%d), want locked", in, out, n)
			continue
		}
		if got, _ := e.DecryptPayload(payloads(t, out)[0]); got != want {
			t.Errorf("decrypt = %q, want %q", got, want)
		}
	}
}

func TestLock_EmptyLinkText(t *testing.T) {
	e := testEncryptor(t)
	out, n, err := e.Lock("[](https://leak.example.com/a)")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || !strings.HasPrefix(out, "[🔒 ") || strings.Contains(out, "leak.example.com") {
		t.Fatalf("out = %q (%d)", out, n)
	}
	if got, _ := e.DecryptPayload(payloads(t, out)[0]); got != "https://leak.example.com/a" {
		t.Errorf("decrypt = %q", got)
	}
}

func TestLock_BareURLInsideEmphasisAndCode(t *testing.T) {
	e := testEncryptor(t)
	cases := []struct {
		in, url, prefix, suffix string
	}{
		{"see **https://bold.example.com/a** here", "https://bold.example.com/a", "see **[🔒 ", ")** here"},
		{"run `https://tick.example.com/a` now", "https://tick.example.com/a", "run `[🔒 ", ")` now"},
		{"~~https://old.example.com/a~~", "https://old.example.com/a", "~~[🔒 ", ")~~"},
	}
	for _, tc := range cases {
		out, n, err := e.Lock(tc.in)
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 || !strings.HasPrefix(out, tc.prefix) || !strings.HasSuffix(out, tc.suffix) {
			t.Errorf("Lock(%q) = %q (%d)", tc.in, out, n)
			continue
		}
		if got, _ := e.DecryptPayload(payloads(t, out)[0]); got != tc.url {
			t.Errorf("decrypt = %q, want %q", got, tc.url)
		}
	}
}

func TestLock_URLAsTextOfLocalLinkUntouched(t *testing.T) {
	e := testEncryptor(t)
	in := "[https://t.example.com](/local)"
	out, n, err := e.Lock(in)
	if err != nil {
		t.Fatal(err)
	}
	if out != in || n != 0 {
		t.Errorf("Lock = %q (%d), want unchanged", out, n)
	}
}
