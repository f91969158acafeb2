// Package summary implements the Recap chat-summary service.
// Message flow: receive → trigger classification → allow-list/normalize →
// persist → (image side channel) → command dispatch → reply.
package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jholhewres/recap/pkg/recap/channels"
	"github.com/jholhewres/recap/pkg/recap/reader"
	"github.com/jholhewres/recap/pkg/recap/store"
)

// Command keywords, matched after the configured trigger prefix.
const (
	cmdSummarize = "总结"
	cmdSelect    = "总结选择"
	cmdLink      = "总结链接"
)

// Assistant is the top-level service wiring channels, storage, the
// summarization orchestrator and the captioning side channel.
type Assistant struct {
	cfg *Config

	channelMgr   *channels.Manager
	records      *store.Store
	resolver     *Resolver
	classifier   *Classifier
	orchestrator *Orchestrator
	captions     *CaptionWorker
	pages        *reader.Client

	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an assistant with all dependencies wired from config.
func New(cfg *Config, records *store.Store, logger *slog.Logger) (*Assistant, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &Assistant{
		cfg:          cfg,
		channelMgr:   channels.NewManager(logger.With("component", "channels")),
		records:      records,
		resolver:     NewResolver(cfg, logger),
		classifier:   NewClassifier(cfg),
		orchestrator: NewOrchestrator(cfg, records, NewLLMClient(cfg.API, logger), logger),
		pages:        reader.NewClient(cfg.ReaderEndpoint, logger),
		logger:       logger,
	}

	if cfg.Multimodal.Enabled() {
		captioner := NewVisionClient(cfg.Multimodal, logger)
		worker, err := NewCaptionWorker(cfg, captioner, records, logger)
		if err != nil {
			return nil, err
		}
		a.captions = worker
	}

	return a, nil
}

// ChannelManager returns the channel manager for adapter registration.
func (a *Assistant) ChannelManager() *channels.Manager {
	return a.channelMgr
}

// Orchestrator returns the summarization orchestrator (used by the
// scheduler for periodic recaps).
func (a *Assistant) Orchestrator() *Orchestrator {
	return a.orchestrator
}

// Start connects channels and begins processing messages.
func (a *Assistant) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	a.logger.Info("starting Recap",
		"trigger_prefix", a.cfg.TriggerPrefix,
		"record_all", a.cfg.RecordAll,
		"fuzzy_matching", a.cfg.UseFuzzyMatching,
		"multimodal", a.cfg.Multimodal.Enabled(),
	)

	if err := a.channelMgr.Start(a.ctx); err != nil {
		return fmt.Errorf("failed to start channels: %w", err)
	}

	go a.messageLoop()

	a.logger.Info("Recap started")
	return nil
}

// Stop gracefully shuts down all subsystems.
func (a *Assistant) Stop() {
	a.logger.Info("stopping Recap...")

	if a.cancel != nil {
		a.cancel()
	}
	a.channelMgr.Stop()
	if a.captions != nil {
		a.captions.Close()
	}

	a.logger.Info("Recap stopped")
}

// messageLoop processes messages from all channels.
func (a *Assistant) messageLoop() {
	for {
		select {
		case msg, ok := <-a.channelMgr.Messages():
			if !ok {
				return
			}
			go a.handleMessage(msg)

		case <-a.ctx.Done():
			return
		}
	}
}

// handleMessage ingests one inbound event and dispatches commands.
func (a *Assistant) handleMessage(msg *channels.IncomingMessage) {
	logger := a.logger.With(
		"channel", msg.Channel,
		"chat_id", msg.ChatID,
		"msg_id", msg.ID,
	)

	// ── Step 1: Trigger classification ──
	triggered := a.classifier.Triggered(msg)

	// ── Step 2: Resolve + persist ──
	rec, ok := a.resolver.Resolve(msg, triggered)
	if ok {
		if err := a.records.Upsert(a.ctx, rec); err != nil {
			logger.Error("failed to persist record", "error", err)
		}
	}

	// ── Step 3: Image side channel ──
	// The handler returns immediately; the caption is inserted whenever
	// the worker finishes, with no ordering guarantee against queries.
	if msg.Type == channels.MessageImage && a.captions != nil && ok {
		a.captions.Submit(a.ctx, rec.SessionID, rec.MessageID, rec.User, msg.Content, rec.Timestamp)
	}

	// ── Step 4: Command dispatch ──
	if reply, handled := a.handleCommand(msg); handled {
		a.sendReply(msg, reply)
	}
}

// handleCommand routes summarize commands. Returns handled=false for
// ordinary chatter.
func (a *Assistant) handleCommand(msg *channels.IncomingMessage) (*channels.OutgoingMessage, bool) {
	fields := strings.Fields(msg.Content)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], a.cfg.TriggerPrefix) {
		return nil, false
	}

	requester := a.resolver.SessionID(msg)
	now := time.Now()

	switch strings.TrimPrefix(fields[0], a.cfg.TriggerPrefix) {
	case cmdSummarize:
		req := ParseSummaryCommand(fields[1:], now)
		result, err := a.orchestrator.Summarize(a.ctx, requester, msg.IsGroup, req)
		return a.buildReply(result, err), true

	case cmdSelect:
		if len(fields) < 2 {
			return errorReply("选择已过期或无效"), true
		}
		index, err := strconv.Atoi(fields[1])
		if err != nil {
			return errorReply("选择已过期或无效"), true
		}
		req := ParseSummaryCommand(fields[2:], now)
		result, err := a.orchestrator.Select(a.ctx, requester, index, req)
		return a.buildReply(result, err), true

	case cmdLink:
		if len(fields) < 2 {
			return errorReply("请提供要总结的链接"), true
		}
		instruction := strings.TrimSpace(strings.Join(fields[2:], " "))
		page, err := a.pages.Fetch(a.ctx, fields[1])
		if err != nil {
			a.logger.Error("page fetch failed", "url", fields[1], "error", err)
			return errorReply("链接获取失败，请检查链接后重试"), true
		}
		result, err := a.orchestrator.SummarizeText(a.ctx, page, instruction)
		return a.buildReply(result, err), true

	case "总结帮助":
		return textReply(HelpText(a.cfg.TriggerPrefix)), true
	}

	return nil, false
}

// buildReply maps an orchestrator result onto the outgoing reply,
// surfacing auth/not-found/ambiguity verbatim and hiding internal
// detail for storage and upstream failures.
func (a *Assistant) buildReply(result string, err error) *channels.OutgoingMessage {
	if err == nil {
		return textReply(result)
	}

	var ambiguous *AmbiguousError
	switch {
	case errors.As(err, &ambiguous):
		var b strings.Builder
		fmt.Fprintf(&b, "找到多个匹配的会话，请发送 %s%s <序号> 继续：\n",
			a.cfg.TriggerPrefix, cmdSelect)
		for i, name := range ambiguous.Candidates {
			fmt.Fprintf(&b, "%d. %s\n", i+1, name)
		}
		return textReply(strings.TrimRight(b.String(), "\n"))

	case errors.Is(err, ErrAuth):
		return errorReply("鉴权失败：密码错误或当前会话不允许跨会话总结")

	case errors.Is(err, ErrSessionNotFound):
		return errorReply("没有找到匹配的会话")

	case errors.Is(err, ErrNoRecords):
		return errorReply("没有找到聊天记录")

	case errors.Is(err, ErrSelectionExpired):
		return errorReply("选择已过期或无效")

	case errors.Is(err, ErrUpstream):
		return errorReply("总结失败，请稍后再试")

	default:
		a.logger.Error("summarize command failed", "error", err)
		return errorReply("出错了，请稍后再试")
	}
}

// sendReply sends a reply back to the chat the message came from.
func (a *Assistant) sendReply(msg *channels.IncomingMessage, out *channels.OutgoingMessage) {
	if out == nil {
		return
	}
	if err := a.channelMgr.Send(a.ctx, msg.Channel, msg.ChatID, out); err != nil {
		a.logger.Error("failed to send reply",
			"channel", msg.Channel,
			"chat_id", msg.ChatID,
			"error", err,
		)
	}
}

func textReply(content string) *channels.OutgoingMessage {
	return &channels.OutgoingMessage{Kind: channels.ReplyText, Content: content}
}

func errorReply(content string) *channels.OutgoingMessage {
	return &channels.OutgoingMessage{Kind: channels.ReplyError, Content: content}
}

// HelpText describes the command surface.
func HelpText(prefix string) string {
	return fmt.Sprintf(`聊天记录总结助手。
用法：
  %[1]s总结 <数量>              总结最近 N 条消息，例如 %[1]s总结 100
  %[1]s总结 -2h                 总结过去 2 小时的消息
  %[1]s总结 -7200 100           总结过去 2 小时内最多 100 条
  %[1]s总结 100 自定义指令       按自定义指令总结最近 100 条
  %[1]s总结 g<群名> <密码>       跨会话总结指定群（仅私聊可用）
  %[1]s总结选择 <序号>           在多个匹配会话中选择
  %[1]s总结链接 <链接>           总结网页内容`, prefix)
}
