package mcpserver

// LockedLinkFormat documents what locked links look like and how to treat
// them when editing posts.
const LockedLinkFormat = `# Locked Link Format

Outbound links in posts are stored encrypted so that crawlers never see
the plaintext URL. A locked link is ordinary Markdown:

` + "```" + `markdown
[🔒 加密链接点击解密 提取码：ab12](encrypted:<payload>)
` + "```" + `

- The visible text is fixed. The extraction code (4 to 6 letters or
  digits) of the original link text is kept at the end, if there was one.
- ` + "`<payload>`" + ` is URL-safe base64 (padded) of a 12-byte nonce followed
  by the AES-256-GCM ciphertext and tag of the URL.
- The key is derived with PBKDF2-HMAC-SHA256 from the blog passphrase.

## Rules

1. Never edit a payload by hand. Use unlock_link to read it and lock_text
   to produce a new one.
2. Images (` + "`![..](..)`" + ` or image file extensions) are never locked.
3. Only http, https and magnet links are locked. Relative links stay as is.
4. A post can opt out with ` + "`encrypt_links: false`" + ` in its front-matter.
5. Locking is idempotent: running a build twice changes nothing the second
   time.
`
