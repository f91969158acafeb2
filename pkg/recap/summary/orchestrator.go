// Package summary – orchestrator.go drives a summarize invocation:
// parse result in, auth check, session resolution, store query, chunking,
// one completion call per chunk, and reply assembly.
package summary

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jholhewres/recap/pkg/recap/store"
)

// RecordStore is the storage surface the orchestrator depends on.
type RecordStore interface {
	Query(ctx context.Context, sessionID string, startTS int64, limit int) ([]store.ChatRecord, error)
	DistinctSessions(ctx context.Context) ([]string, error)
}

// Orchestrator assembles multi-part summaries over stored chat windows.
type Orchestrator struct {
	cfg       *Config
	records   RecordStore
	completer Completer
	matcher   *Matcher
	pending   *PendingStore
	logger    *slog.Logger
}

// NewOrchestrator wires the summarization pipeline.
func NewOrchestrator(cfg *Config, records RecordStore, completer Completer, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:       cfg,
		records:   records,
		completer: completer,
		matcher:   NewMatcher(records),
		pending:   NewPendingStore(),
		logger:    logger.With("component", "orchestrator"),
	}
}

// Pending exposes the disambiguation store (pruned by the scheduler).
func (o *Orchestrator) Pending() *PendingStore {
	return o.pending
}

// Summarize runs one invocation for the given requester session.
// fromGroup marks requests originating in a group conversation, which
// may not use cross-session targets. A multi-candidate target match
// returns *AmbiguousError after storing the candidate list for a
// follow-up Select call.
func (o *Orchestrator) Summarize(ctx context.Context, requester string, fromGroup bool, req SummaryRequest) (string, error) {
	target := requester

	if req.Target != nil {
		if err := o.authorize(fromGroup, req.Password); err != nil {
			return "", err
		}

		resolved, err := o.resolveTarget(ctx, requester, req.Target.RawName)
		if err != nil {
			return "", err
		}
		target = resolved
	}

	return o.summarizeSession(ctx, target, req)
}

// Select consumes the requester's pending disambiguation list and
// summarizes the chosen session. index is 1-based.
func (o *Orchestrator) Select(ctx context.Context, requester string, index int, req SummaryRequest) (string, error) {
	target, err := o.pending.Consume(requester, index)
	if err != nil {
		return "", err
	}

	return o.summarizeSession(ctx, target, req)
}

// SummarizeWindow summarizes the session's last window seconds with
// default limits. Used by the scheduler for periodic recaps.
func (o *Orchestrator) SummarizeWindow(ctx context.Context, sessionID string, window int64) (string, error) {
	req := SummaryRequest{
		StartTimestamp: time.Now().Unix() - window,
		Limit:          DefaultLimit,
	}
	return o.summarizeSession(ctx, sessionID, req)
}

// SummarizeText summarizes free-standing text (e.g. a fetched page) with
// the standard prompt template. The text is trimmed to the input budget
// on rune boundaries before the single completion call.
func (o *Orchestrator) SummarizeText(ctx context.Context, text, instruction string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoRecords
	}

	if max := o.cfg.InputTokenBudget * charsPerToken; len(text) > max {
		runes := []rune(text)
		if len(runes) > max {
			runes = runes[:max]
		}
		text = string(runes)
	}

	part, err := o.completer.Complete(ctx, o.buildSystemPrompt(instruction), text)
	if err != nil {
		o.logger.Error("text summarization failed", "error", err)
		return "", ErrUpstream
	}
	return part, nil
}

// authorize gates cross-session targeting. Runs before any store access.
func (o *Orchestrator) authorize(fromGroup bool, password string) error {
	if fromGroup {
		return fmt.Errorf("%w: cross-session summary is not available in group chats", ErrAuth)
	}
	if o.cfg.SummaryPassword == "" {
		return fmt.Errorf("%w: no summary password configured", ErrAuth)
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(o.cfg.SummaryPassword)) != 1 {
		return fmt.Errorf("%w: wrong password", ErrAuth)
	}
	return nil
}

// resolveTarget maps a partial name to exactly one stored session, or
// parks the candidate list for a follow-up selection.
func (o *Orchestrator) resolveTarget(ctx context.Context, requester, pattern string) (string, error) {
	matches, err := o.matcher.Match(ctx, pattern)
	if err != nil {
		return "", fmt.Errorf("matching sessions: %w", err)
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %q", ErrSessionNotFound, pattern)
	case 1:
		return matches[0], nil
	default:
		o.pending.Put(requester, matches)
		return "", &AmbiguousError{Pattern: pattern, Candidates: matches}
	}
}

// summarizeSession queries the window, chunks it and summarizes every
// chunk in order. A chunk failure aborts the remaining chunks; whatever
// succeeded before the failure is still assembled.
func (o *Orchestrator) summarizeSession(ctx context.Context, sessionID string, req SummaryRequest) (string, error) {
	records, err := o.records.Query(ctx, sessionID, req.StartTimestamp, req.Limit)
	if err != nil {
		return "", fmt.Errorf("querying records: %w", err)
	}
	if len(records) == 0 {
		return "", ErrNoRecords
	}

	records = TrimToBudget(records, o.cfg.InputTokenBudget)
	blocks := Partition(records, o.cfg.PerChunkTokenBudget, o.cfg.MaxChunksPerSummary)
	if len(blocks) == 0 {
		return "", ErrNoRecords
	}

	systemPrompt := o.buildSystemPrompt(req.CustomInstruction)

	var parts []string
	for i, block := range blocks {
		part, err := o.completer.Complete(ctx, systemPrompt, block)
		if err != nil {
			o.logger.Error("chunk summarization failed",
				"session", sessionID,
				"chunk", i+1,
				"chunks", len(blocks),
				"error", err,
			)
			break
		}
		parts = append(parts, part)
	}

	if len(parts) == 0 {
		return "", ErrUpstream
	}

	o.logger.Info("summary assembled",
		"session", sessionID,
		"records", len(records),
		"chunks_done", len(parts),
		"chunks_total", len(blocks),
	)

	return strings.Join(parts, "\n\n"), nil
}

// buildSystemPrompt substitutes the user instruction into the template.
func (o *Orchestrator) buildSystemPrompt(instruction string) string {
	if instruction == "" {
		instruction = "无"
	}
	return strings.ReplaceAll(o.cfg.SummaryPrompt, "{custom_prompt}", instruction)
}
