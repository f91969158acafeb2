// Package summary – chunker.go partitions an ordered record window into
// character-budgeted text blocks sized for single completion calls.
package summary

import (
	"fmt"
	"strings"

	"github.com/jholhewres/recap/pkg/recap/store"
)

// charsPerToken is the fixed approximation used to derive character
// budgets from configured token budgets.
const charsPerToken = 4

// entrySeparator joins rendered lines; its length is charged per entry
// when checking the budget.
const entrySeparator = "\n\n"

// FormatRecord renders one record as a chat-log line. Triggered records
// carry a trailing <T> marker so the summarizer can weight them down.
func FormatRecord(rec store.ChatRecord) string {
	line := fmt.Sprintf("[%s] %s: %q", rec.LocalTime(), rec.User, rec.Content)
	if rec.Triggered {
		line += " <T>"
	}
	return line
}

// RenderWindow walks records newest-first, accumulating rendered lines
// while the running total (plus a separator per entry) stays at or under
// charBudget; the first record that would exceed the budget stops the
// walk. The accepted subset is re-joined oldest-first, so a truncated
// window always drops the oldest eligible records.
//
// Returns the rendered block and the number of records consumed from the
// head of the list.
func RenderWindow(records []store.ChatRecord, charBudget int) (string, int) {
	var lines []string
	total := 0

	for _, rec := range records {
		line := FormatRecord(rec)
		if total+len(line)+len(entrySeparator) > charBudget {
			break
		}
		lines = append(lines, line)
		total += len(line) + len(entrySeparator)
	}

	// Selection order was newest-first; presentation is chronological.
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}

	return strings.Join(lines, entrySeparator), len(lines)
}

// Partition splits a newest-first record window into completion-call
// payloads. Each pass renders up to perPassTokens worth of records and
// consumes them from the head of the list; the loop stops when the list
// is exhausted, a pass renders nothing, or maxPasses blocks exist.
func Partition(records []store.ChatRecord, perPassTokens, maxPasses int) []string {
	budget := perPassTokens * charsPerToken

	var blocks []string
	for len(records) > 0 && len(blocks) < maxPasses {
		block, consumed := RenderWindow(records, budget)
		if block == "" || consumed == 0 {
			break
		}
		blocks = append(blocks, block)
		records = records[consumed:]
	}

	return blocks
}

// TrimToBudget drops the oldest records that do not fit within the given
// token budget, keeping the newest-first order of the survivors.
func TrimToBudget(records []store.ChatRecord, tokens int) []store.ChatRecord {
	_, consumed := RenderWindow(records, tokens*charsPerToken)
	return records[:consumed]
}
