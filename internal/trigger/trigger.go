// Package trigger opens URL payloads found in QR codes.
package trigger

import (
	"context"
	"log/slog"
)

// Trigger normalizes payloads and hands valid URLs to an Opener. Failures
// are logged, never returned.
type Trigger struct {
	opener Opener
	logger *slog.Logger
}

// New creates a Trigger. A nil opener logs instead of opening; a nil logger
// uses slog.Default.
func New(opener Opener, logger *slog.Logger) *Trigger {
	if logger == nil {
		logger = slog.Default()
	}
	if opener == nil {
		opener = LogOpener{Logger: logger}
	}
	return &Trigger{opener: opener, logger: logger}
}

// Fire opens payload if it is a URL and reports whether the opener accepted it.
func (t *Trigger) Fire(ctx context.Context, payload string) bool {
	target, err := NormalizeURL(payload)
	if err != nil {
		t.logger.Warn("Invalid URL in QR code", "payload", payload, "error", err)
		return false
	}
	if err := t.opener.Open(ctx, target); err != nil {
		t.logger.Warn("Cannot open browser", "url", target, "error", err)
		return false
	}
	t.logger.Info("Opened URL", "url", target)
	return true
}
