package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Generator produces call summaries and handoff messages from a transcript.
// Implementations may fail or time out; the Service wraps every call with a
// deterministic fallback so transfer orchestration never hard-fails on it.
type Generator interface {
	Summarize(ctx context.Context, req SummaryRequest) (string, error)
	HandoffMessage(ctx context.Context, req HandoffRequest) (string, error)
}

type SummaryRequest struct {
	Transcript      string
	CallerName      string
	CallerPhone     string
	CallReason      string
	DurationSeconds int
}

type HandoffRequest struct {
	Summary string
	Reason  string
	Skills  []string
}

// Service degrades to templated text whenever the underlying generator errors
// or is absent, so both methods always return a usable string.
type Service struct {
	gen     Generator
	timeout time.Duration
	logger  *slog.Logger
}

func NewService(gen Generator, timeout time.Duration, logger *slog.Logger) *Service {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{gen: gen, timeout: timeout, logger: logger}
}

func (s *Service) Summarize(ctx context.Context, req SummaryRequest) string {
	if s.gen == nil {
		return fallbackSummary(req)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.gen.Summarize(ctx, req)
	if err != nil || strings.TrimSpace(out) == "" {
		s.logger.Warn("summary generation failed, using fallback", "error", err)
		return fallbackSummary(req)
	}
	return strings.TrimSpace(out)
}

func (s *Service) HandoffMessage(ctx context.Context, req HandoffRequest) string {
	if s.gen == nil {
		return fallbackHandoff(req.Reason)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.gen.HandoffMessage(ctx, req)
	if err != nil || strings.TrimSpace(out) == "" {
		s.logger.Warn("handoff message generation failed, using fallback", "error", err)
		return fallbackHandoff(req.Reason)
	}
	return strings.TrimSpace(out)
}

func fallbackSummary(req SummaryRequest) string {
	callerName := req.CallerName
	if callerName == "" {
		callerName = "Unknown"
	}

	preview := req.Transcript
	if len(preview) > 300 {
		preview = preview[:300] + "..."
	}

	return fmt.Sprintf(`**CALL SUMMARY** (Auto-generated fallback)
- Customer Name: %s
- Issue Category: Requires agent review
- Key Points: Please review full transcript for details
- Customer Sentiment: Requires assessment
- Actions Taken: To be determined by reviewing agent
- Outstanding Items: All items require attention
- Recommended Next Steps: Review complete call transcript and continue assistance
- Priority Level: Medium

**Transcript Preview:**
%s

Note: This is a fallback summary. Please review the complete transcript for full context.`, callerName, preview)
}

func fallbackHandoff(reason string) string {
	if reason == "" {
		reason = "The call needs another agent's expertise"
	}
	return fmt.Sprintf("Hi, I'm transferring a call to you. %s. Please check the call summary for full context.", reason)
}
