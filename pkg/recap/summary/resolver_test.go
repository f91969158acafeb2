package summary

import (
	"testing"
	"time"

	"github.com/jholhewres/recap/pkg/recap/channels"
)

func TestSessionID(t *testing.T) {
	tests := []struct {
		name        string
		channelType string
		msg         channels.IncomingMessage
		want        string
	}{
		{
			name:        "wx prefers chat nickname",
			channelType: "wx",
			msg:         channels.IncomingMessage{ChatID: "wxid_123", ChatName: "花园爱好群"},
			want:        "花园爱好群",
		},
		{
			name:        "wx falls back to raw id without nickname",
			channelType: "wx",
			msg:         channels.IncomingMessage{ChatID: "wxid_123"},
			want:        "wxid_123",
		},
		{
			name:        "other channels use the raw id",
			channelType: "",
			msg:         channels.IncomingMessage{ChatID: "chat-9", ChatName: "Gardening"},
			want:        "chat-9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.ChannelType = tt.channelType
			r := NewResolver(cfg, nil)

			if got := r.SessionID(&tt.msg); got != tt.want {
				t.Errorf("SessionID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAdmitted(t *testing.T) {
	tests := []struct {
		name      string
		recordAll bool
		fuzzy     bool
		groups    []string
		users     []string
		sessionID string
		isGroup   bool
		want      bool
	}{
		{"record all bypasses lists", true, false, nil, nil, "anything", true, true},
		{"exact group match", false, false, []string{"花园爱好群"}, nil, "花园爱好群", true, true},
		{"exact miss", false, false, []string{"花园爱好群"}, nil, "花园群", true, false},
		{"fuzzy partial group name", false, true, []string{"花园"}, nil, "花园爱好群", true, true},
		{"fuzzy works both directions", false, true, []string{"花园爱好群总部"}, nil, "花园爱好群", true, true},
		{"group list never admits users", false, false, []string{"张三"}, nil, "张三", false, false},
		{"user list admits users", false, false, nil, []string{"张三"}, "张三", false, true},
		{"empty lists admit nothing", false, true, nil, nil, "花园爱好群", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.RecordAll = tt.recordAll
			cfg.UseFuzzyMatching = tt.fuzzy
			cfg.WhitelistGroups = tt.groups
			cfg.WhitelistUsers = tt.users
			r := NewResolver(cfg, nil)

			if got := r.Admitted(tt.sessionID, tt.isGroup); got != tt.want {
				t.Errorf("Admitted(%q, %v) = %v, want %v", tt.sessionID, tt.isGroup, got, tt.want)
			}
		})
	}
}

func TestNormalizeContent(t *testing.T) {
	tests := []struct {
		name    string
		kind    channels.MessageType
		content string
		want    string
	}{
		{"plain text passes through", channels.MessageText, "吃了吗", "吃了吗"},
		{"voice placeholder", channels.MessageVoice, "opus-bytes", "[语音]"},
		{"image placeholder", channels.MessageImage, "jpeg-bytes", "[图片]"},
		{"emoji sticker xml", channels.MessageText, `<msg><emoji md5="x"/></msg>`, "[表情]"},
		{
			"card with title and description",
			channels.MessageSharing,
			"<msg><title>周末活动</title><des>周六下午三点集合</des></msg>",
			"[分享]周末活动: 周六下午三点集合",
		},
		{
			"card with title only",
			channels.MessageSharing,
			"<msg><title>周末活动</title></msg>",
			"[分享]周末活动",
		},
		{"unparseable card", channels.MessageSharing, "garbage", "[分享]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeContent(tt.kind, tt.content); got != tt.want {
				t.Errorf("NormalizeContent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveDropsNoise(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RecordAll = true
	r := NewResolver(cfg, nil)

	base := channels.IncomingMessage{
		ID:        7,
		ChatID:    "G1",
		From:      "wxid_a",
		FromName:  "alice",
		IsGroup:   true,
		Type:      channels.MessageText,
		Timestamp: time.Unix(1_700_000_000, 0),
	}

	t.Run("short command-looking text is dropped", func(t *testing.T) {
		msg := base
		msg.Content = "#天气 北京"
		if _, ok := r.Resolve(&msg, false); ok {
			t.Error("Resolve() admitted command-looking noise")
		}
	})

	t.Run("threshold counts runes not bytes", func(t *testing.T) {
		// 18 runes but 50 bytes; still well under the 50-character cutoff.
		msg := base
		msg.Content = "$天气 今天北京的天气怎么样呢朋友们"
		if _, ok := r.Resolve(&msg, false); ok {
			t.Error("Resolve() admitted short CJK command text")
		}
	})

	t.Run("long text with symbols is kept", func(t *testing.T) {
		msg := base
		msg.Content = "今天讨论的预算是 $4000，明细如下：场地一千五，餐饮一千五，布置五百，杂项五百，大家看看有没有问题"
		rec, ok := r.Resolve(&msg, false)
		if !ok {
			t.Fatal("Resolve() dropped a long substantive message")
		}
		if rec.User != "alice" {
			t.Errorf("User = %q, want display name", rec.User)
		}
		if rec.Timestamp != 1_700_000_000 {
			t.Errorf("Timestamp = %d, want source timestamp", rec.Timestamp)
		}
	})

	t.Run("triggered flag is carried", func(t *testing.T) {
		msg := base
		msg.Content = "帮我总结一下昨天大家聊的活动安排细节好吗"
		rec, ok := r.Resolve(&msg, true)
		if !ok {
			t.Fatal("Resolve() dropped the message")
		}
		if !rec.Triggered {
			t.Error("Triggered = false, want true")
		}
	})
}

func TestTriggered(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GroupChatPrefix = []string{"@bot"}
	cfg.GroupChatKeyword = []string{"总结一下"}
	cfg.SingleChatPrefix = []string{"bot"}
	c := NewClassifier(cfg)

	tests := []struct {
		name string
		msg  channels.IncomingMessage
		want bool
	}{
		{"group prefix", channels.IncomingMessage{IsGroup: true, Content: "@bot 在吗"}, true},
		{"group keyword anywhere", channels.IncomingMessage{IsGroup: true, Content: "谁来总结一下"}, true},
		{"group at-mention", channels.IncomingMessage{IsGroup: true, Content: "看看这个", IsAtMe: true}, true},
		{"group plain chatter", channels.IncomingMessage{IsGroup: true, Content: "吃了吗"}, false},
		{"dm prefix", channels.IncomingMessage{Content: "bot 帮个忙"}, true},
		{"dm without prefix", channels.IncomingMessage{Content: "帮个忙"}, false},
		{"dm ignores group keyword", channels.IncomingMessage{Content: "总结一下"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Triggered(&tt.msg); got != tt.want {
				t.Errorf("Triggered() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("at-mention suppressed when switched off", func(t *testing.T) {
		off := DefaultConfig()
		off.GroupAtOff = true
		msg := channels.IncomingMessage{IsGroup: true, Content: "看看这个", IsAtMe: true}
		if NewClassifier(off).Triggered(&msg) {
			t.Error("Triggered() = true with group_at_off set")
		}
	})
}
