// Package summary – trigger.go classifies whether an inbound message is
// explicitly directed at the bot. The result only tags the stored record
// (rendered as a <T> marker in chunks); it never decides whether the
// message is summarized.
package summary

import (
	"strings"

	"github.com/jholhewres/recap/pkg/recap/channels"
)

// Classifier decides whether a message counts as a direct bot invocation.
type Classifier struct {
	cfg *Config
}

// NewClassifier creates a trigger classifier from config.
func NewClassifier(cfg *Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// Triggered reports whether the message is directed at the bot:
// a configured prefix, a group keyword, or an @-mention (unless mentions
// are switched off).
func (c *Classifier) Triggered(msg *channels.IncomingMessage) bool {
	content := msg.Content

	if msg.IsGroup {
		if matchPrefix(content, c.cfg.GroupChatPrefix) {
			return true
		}
		if matchContain(content, c.cfg.GroupChatKeyword) {
			return true
		}
		if msg.IsAtMe && !c.cfg.GroupAtOff {
			return true
		}
		return false
	}

	return matchPrefix(content, c.cfg.SingleChatPrefix)
}

// matchPrefix reports whether content starts with any non-empty prefix.
func matchPrefix(content string, prefixes []string) bool {
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		if strings.HasPrefix(content, p) {
			return true
		}
	}
	return false
}

// matchContain reports whether content contains any non-empty keyword.
func matchContain(content string, keywords []string) bool {
	for _, k := range keywords {
		if k == "" {
			continue
		}
		if strings.Contains(content, k) {
			return true
		}
	}
	return false
}
