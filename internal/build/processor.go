package build

import (
	"log/slog"

	"github.com/starford/postlock/internal/checksum"
	"github.com/starford/postlock/internal/models"
	"github.com/starford/postlock/internal/parser"
)

// ProcessFile locks the links of one post in place. It never returns an
// error: failures are reported in the result so the caller can continue
// with the next post. Allow-listed posts are not even read. runID tags the
// journal entry.
func (b *Builder) ProcessFile(runID, rel string) models.FileResult {
	res := b.processFile(rel)

	logger := b.logger.With(slog.String("path", rel), slog.String("outcome", string(res.Outcome)))
	switch res.Outcome {
	case models.OutcomeFailed:
		logger.Warn("build: process failed", slog.String("error", res.Error))
	default:
		logger.Debug("build: processed", slog.Int("links", res.Links), slog.String("reason", res.Reason))
	}

	if b.journal != nil {
		if err := b.journal.RecordFile(runID, res); err != nil {
			logger.Warn("build: journal record failed", slog.String("error", err.Error()))
		}
	}
	return res
}

func (b *Builder) processFile(rel string) models.FileResult {
	res := models.FileResult{Path: rel}

	if b.allow.Match(rel) {
		res.Outcome = models.OutcomeSkipped
		res.Reason = "allow-listed"
		return res
	}

	data, err := b.store.Read(rel)
	if err != nil {
		return failed(res, err)
	}
	sum := checksum.Sum(data)
	res.Checksum = sum

	if !b.force && b.journal != nil {
		if prev, err := b.journal.GetChecksum(rel); err == nil && prev == sum {
			res.Outcome = models.OutcomeUnchanged
			res.Reason = "unchanged since last build"
			return res
		}
	}

	doc, err := parser.Parse(data)
	if err != nil {
		return failed(res, err)
	}
	res.Title = doc.Title
	if doc.LockDisabled() {
		res.Outcome = models.OutcomeSkipped
		res.Reason = "encrypt_links disabled in front-matter"
		return res
	}

	body, n, err := b.enc.Lock(doc.Body)
	if err != nil {
		return failed(res, err)
	}
	if n == 0 {
		res.Outcome = models.OutcomeUnchanged
		return res
	}

	out := doc.Bytes(body)
	if err := b.store.Write(rel, out); err != nil {
		return failed(res, err)
	}
	res.Outcome = models.OutcomeLocked
	res.Links = n
	res.Checksum = checksum.Sum(out)
	return res
}

func failed(res models.FileResult, err error) models.FileResult {
	res.Outcome = models.OutcomeFailed
	res.Error = err.Error()
	res.Links = 0
	return res
}
