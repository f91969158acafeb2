// Package summary – resolver.go maps inbound channel events to canonical
// session and participant identities, normalizes structured payloads to
// plain-text placeholders, and applies the recording allow-list.
package summary

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jholhewres/recap/pkg/recap/channels"
	"github.com/jholhewres/recap/pkg/recap/store"
)

// noiseMaxLen is the length under which messages containing control
// symbols are treated as other plugins' command syntax and not recorded.
const noiseMaxLen = 50

// cardTitlePattern and cardDesPattern pull a human-readable description
// out of forwarded-card XML payloads.
var (
	cardTitlePattern = regexp.MustCompile(`<title>(.*?)</title>`)
	cardDesPattern   = regexp.MustCompile(`(?s)<des>(.*?)</des>`)
)

// Resolver derives session identity and normalizes inbound events.
type Resolver struct {
	cfg    *Config
	logger *slog.Logger
}

// NewResolver creates a resolver from config.
func NewResolver(cfg *Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		cfg:    cfg,
		logger: logger.With("component", "resolver"),
	}
}

// SessionID derives the canonical session identity for an event: the
// group identity for group chats, the counterpart identity for DMs.
// On "wx"-flavored channels the nickname is preferred over the raw id.
func (r *Resolver) SessionID(msg *channels.IncomingMessage) string {
	if r.cfg.ChannelType == "wx" && msg.ChatName != "" {
		return msg.ChatName
	}
	return msg.ChatID
}

// UserName derives the actor display name, falling back to the raw
// participant id when no nickname is available.
func (r *Resolver) UserName(msg *channels.IncomingMessage) string {
	if msg.FromName != "" {
		return msg.FromName
	}
	return msg.From
}

// Resolve converts an inbound event into a storable record. The second
// return value is false when the event must not be persisted (allow-list
// miss or command-looking noise).
func (r *Resolver) Resolve(msg *channels.IncomingMessage, triggered bool) (store.ChatRecord, bool) {
	sessionID := r.SessionID(msg)
	if sessionID == "" {
		return store.ChatRecord{}, false
	}

	if !r.Admitted(sessionID, msg.IsGroup) {
		r.logger.Debug("session not on allow-list", "session", sessionID)
		return store.ChatRecord{}, false
	}

	content := NormalizeContent(msg.Type, msg.Content)
	if isCommandNoise(content) {
		r.logger.Debug("dropping command-looking noise", "session", sessionID)
		return store.ChatRecord{}, false
	}

	return store.ChatRecord{
		SessionID: sessionID,
		MessageID: msg.ID,
		User:      r.UserName(msg),
		Content:   content,
		Kind:      string(msg.Type),
		Timestamp: msg.Timestamp.Unix(),
		Triggered: triggered,
	}, true
}

// Admitted applies the allow-list policy to a session.
func (r *Resolver) Admitted(sessionID string, isGroup bool) bool {
	if r.cfg.RecordAll {
		return true
	}

	list := r.cfg.WhitelistUsers
	if isGroup {
		list = r.cfg.WhitelistGroups
	}

	for _, name := range list {
		if r.cfg.UseFuzzyMatching {
			if containsEither(name, sessionID) {
				return true
			}
		} else if name == sessionID {
			return true
		}
	}
	return false
}

// containsEither reports whether either string contains the other, after
// escaping regex metacharacters in both so the containment check stays a
// literal substring test even for names like "C++ group".
func containsEither(a, b string) bool {
	ea := regexp.QuoteMeta(a)
	eb := regexp.QuoteMeta(b)
	return strings.Contains(ea, eb) || strings.Contains(eb, ea)
}

// NormalizeContent reduces structured payloads to short placeholders so
// summarization never has to parse raw markup.
func NormalizeContent(kind channels.MessageType, content string) string {
	switch kind {
	case channels.MessageVoice:
		return "[语音]"
	case channels.MessageImage:
		return "[图片]"
	case channels.MessageSharing:
		return normalizeCard(content)
	}

	// Emoji stickers arrive as text events carrying sticker XML.
	if strings.Contains(content, "<emoji") {
		return "[表情]"
	}
	return content
}

// normalizeCard extracts a readable description from a forwarded-card
// XML payload, falling back to a generic placeholder.
func normalizeCard(content string) string {
	title := ""
	if m := cardTitlePattern.FindStringSubmatch(content); m != nil {
		title = strings.TrimSpace(m[1])
	}
	des := ""
	if m := cardDesPattern.FindStringSubmatch(content); m != nil {
		des = strings.TrimSpace(m[1])
	}

	switch {
	case title != "" && des != "":
		return "[分享]" + title + ": " + des
	case title != "":
		return "[分享]" + title
	case des != "":
		return "[分享]" + des
	default:
		return "[分享]"
	}
}

// isCommandNoise reports whether a message looks like another plugin's
// control syntax: short and carrying a # or $ symbol. Length is measured
// in runes so CJK text is held to the same threshold as ASCII.
func isCommandNoise(content string) bool {
	if utf8.RuneCountInString(content) >= noiseMaxLen {
		return false
	}
	return strings.ContainsAny(content, "#$")
}
