// Package summary – command.go parses the tokenized remainder of a
// summarize command into a structured request. Parsing never aborts the
// command: malformed tokens degrade to free-text instruction words.
package summary

import (
	"strconv"
	"strings"
	"time"
)

// DefaultLimit is the sentinel record count meaning "unbounded", subject
// to the other window limits.
const DefaultLimit = 9999

// epochThreshold separates bare integers treated as absolute timestamps
// from ones treated as record-count limits. Inherited heuristic: it
// misclassifies limits above 1000 and near-epoch timestamps.
const epochThreshold = 1000

// TargetKind classifies a cross-session target selector.
type TargetKind string

const (
	TargetGroup TargetKind = "group"
	TargetUser  TargetKind = "user"
)

// TargetSelector names a session other than the requester's own.
type TargetSelector struct {
	Kind    TargetKind
	RawName string
}

// SummaryRequest is the parsed result of a command string.
type SummaryRequest struct {
	// StartTimestamp is the epoch second records must be newer than;
	// 0 means unbounded past.
	StartTimestamp int64

	// Limit is the max record count.
	Limit int

	// CustomInstruction is the free-text instruction, possibly empty.
	CustomInstruction string

	// Target is the optional cross-session selector.
	Target *TargetSelector

	// Password is the shared secret supplied alongside Target.
	Password string
}

// tokenKind tags one classified command token. Making the token stream
// explicit keeps the grammar's ambiguities enumerable instead of implicit
// in string-matching order.
type tokenKind int

const (
	tokenTimeWindow tokenKind = iota
	tokenCountLimit
	tokenTargetSelector
	tokenPassword
	tokenFreeText
)

// token is one classified command token.
type token struct {
	kind tokenKind

	// startTS is set for tokenTimeWindow.
	startTS int64

	// limit is set for tokenCountLimit.
	limit int

	// target is set for tokenTargetSelector.
	target TargetSelector

	// text is set for tokenPassword and tokenFreeText.
	text string
}

// tokenize classifies the raw tokens left to right.
//
// Known ambiguity: a selector is detected purely by its "g"/"u" prefix,
// so a free-text word like "group" parses as a target selector and the
// word after it as a password. The grammar has no delimiter that could
// distinguish the two; callers relying on free text should place it
// after an explicit target.
func tokenize(parts []string, now time.Time) []token {
	tokens := make([]token, 0, len(parts))
	expectPassword := false
	haveTarget := false

	for _, part := range parts {
		if part == "" {
			continue
		}

		// The token following a target selector is always its password.
		if expectPassword {
			tokens = append(tokens, token{kind: tokenPassword, text: part})
			expectPassword = false
			continue
		}

		// -2h / -7200: relative window start.
		if strings.HasPrefix(part, "-") && len(part) > 1 {
			num := part[1:]
			hours := false
			if strings.HasSuffix(num, "h") {
				num = strings.TrimSuffix(num, "h")
				hours = true
			}
			if n, err := strconv.ParseInt(num, 10, 64); err == nil && n >= 0 {
				start := now.Unix() - n
				if hours {
					start = now.Unix() - n*3600
				}
				tokens = append(tokens, token{kind: tokenTimeWindow, startTS: start})
				continue
			}
		}

		// Bare non-negative integer: epoch timestamp or count limit.
		if n, err := strconv.ParseInt(part, 10, 64); err == nil && n >= 0 {
			if n > epochThreshold {
				tokens = append(tokens, token{kind: tokenTimeWindow, startTS: n})
			} else {
				tokens = append(tokens, token{kind: tokenCountLimit, limit: int(n)})
			}
			continue
		}

		// g<name> / u<name>: cross-session target. Only the first wins;
		// later lookalikes stay free text.
		if !haveTarget && len(part) > 1 {
			switch part[0] {
			case 'g':
				tokens = append(tokens, token{kind: tokenTargetSelector,
					target: TargetSelector{Kind: TargetGroup, RawName: part[1:]}})
				haveTarget = true
				expectPassword = true
				continue
			case 'u':
				tokens = append(tokens, token{kind: tokenTargetSelector,
					target: TargetSelector{Kind: TargetUser, RawName: part[1:]}})
				haveTarget = true
				expectPassword = true
				continue
			}
		}

		tokens = append(tokens, token{kind: tokenFreeText, text: part})
	}

	return tokens
}

// ParseSummaryCommand folds the classified tokens into a SummaryRequest.
// parts is the whitespace-split remainder after the command keyword.
func ParseSummaryCommand(parts []string, now time.Time) SummaryRequest {
	req := SummaryRequest{Limit: DefaultLimit}

	var instruction []string
	for _, tok := range tokenize(parts, now) {
		switch tok.kind {
		case tokenTimeWindow:
			req.StartTimestamp = tok.startTS
		case tokenCountLimit:
			req.Limit = tok.limit
		case tokenTargetSelector:
			t := tok.target
			req.Target = &t
		case tokenPassword:
			req.Password = tok.text
		case tokenFreeText:
			instruction = append(instruction, tok.text)
		}
	}

	req.CustomInstruction = strings.TrimSpace(strings.Join(instruction, " "))
	return req
}
