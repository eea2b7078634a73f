package safety

import (
	"context"

	"github.com/quartermasterhq/quartermaster/internal/llm"
	"github.com/quartermasterhq/quartermaster/internal/observability"
)

// ModerationResult is the outcome of a moderation check.
type ModerationResult struct {
	Flagged  bool
	Category string
}

// Moderation screens input through a backend moderation endpoint when one
// is available. Moderation API failures fail open: availability of the
// assistant wins over a best-effort secondary check.
type Moderation struct {
	moderator llm.Moderator
	enabled   bool
	metrics   *observability.Metrics
	logger    *observability.Logger
}

// NewModeration creates the moderation screen. provider may or may not
// implement llm.Moderator; when it does not, checks are no-ops.
func NewModeration(provider llm.Provider, enabled bool, metrics *observability.Metrics, logger *observability.Logger) *Moderation {
	m := &Moderation{enabled: enabled, metrics: metrics, logger: logger}
	if mod, ok := provider.(llm.Moderator); ok {
		m.moderator = mod
	}
	return m
}

// Enabled reports whether checks will actually run.
func (m *Moderation) Enabled() bool { return m.enabled && m.moderator != nil }

// Check screens input. A flagged result should be refused with a canned
// message; an API error is logged and treated as clean.
func (m *Moderation) Check(ctx context.Context, input string) ModerationResult {
	if !m.Enabled() {
		return ModerationResult{}
	}

	flagged, category, err := m.moderator.Moderate(ctx, input)
	if err != nil {
		m.logger.Warn(ctx, "moderation check failed, allowing input", "error", err)
		return ModerationResult{}
	}
	if !flagged {
		return ModerationResult{}
	}

	if category == "" {
		category = "other"
	}
	m.metrics.ModerationRejections.WithLabelValues(category).Inc()
	m.logger.Info(ctx, "input blocked by moderation", "category", category)
	return ModerationResult{Flagged: true, Category: category}
}
