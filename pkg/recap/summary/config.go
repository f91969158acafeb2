// Package summary – config.go defines all configuration structures for
// the Recap summarization service.
package summary

// Config holds the full service configuration.
type Config struct {
	// TriggerPrefix is the command prefix that activates Recap (e.g. "$").
	TriggerPrefix string `yaml:"plugin_trigger_prefix"`

	// GroupChatPrefix lists prefixes that mark a group message as
	// directed at the bot.
	GroupChatPrefix []string `yaml:"group_chat_prefix"`

	// GroupChatKeyword lists keywords whose presence marks a group
	// message as directed at the bot.
	GroupChatKeyword []string `yaml:"group_chat_keyword"`

	// GroupAtOff disables treating @-mentions as bot invocations.
	GroupAtOff bool `yaml:"group_at_off"`

	// SingleChatPrefix lists prefixes that mark a direct message as
	// directed at the bot.
	SingleChatPrefix []string `yaml:"single_chat_prefix"`

	// RecordAll bypasses the allow-list and persists every session.
	RecordAll bool `yaml:"record_all"`

	// WhitelistGroups lists group sessions whose messages are persisted.
	WhitelistGroups []string `yaml:"whitelist_groups"`

	// WhitelistUsers lists one-to-one sessions whose messages are persisted.
	WhitelistUsers []string `yaml:"whitelist_users"`

	// UseFuzzyMatching admits a session when its name and a whitelist
	// entry contain each other; exact equality otherwise.
	UseFuzzyMatching bool `yaml:"use_fuzzy_matching"`

	// SummaryPassword is the shared secret gating cross-session summaries.
	// Empty means cross-session queries are disabled entirely.
	SummaryPassword string `yaml:"summary_password"`

	// ChannelType selects the host platform flavor; "wx" prefers
	// nicknames over raw ids when deriving session identity.
	ChannelType string `yaml:"channel_type"`

	// InputTokenBudget caps the tokens rendered into a single window.
	InputTokenBudget int `yaml:"input_token_budget"`

	// PerChunkTokenBudget caps the tokens consumed by one summarization
	// pass when the window is split into multiple chunks.
	PerChunkTokenBudget int `yaml:"per_chunk_token_budget"`

	// MaxChunksPerSummary caps the number of completion calls per command.
	MaxChunksPerSummary int `yaml:"max_chunks_per_summary"`

	// SummaryPrompt is the system instruction template; the literal
	// "{custom_prompt}" is replaced with the user instruction.
	SummaryPrompt string `yaml:"summary_prompt"`

	// ImagePrompt is the instruction sent with image captioning requests.
	ImagePrompt string `yaml:"image_prompt"`

	// ReaderEndpoint is the plain-text reader service prefix used by the
	// link summary command. Empty fetches the page directly.
	ReaderEndpoint string `yaml:"reader_endpoint"`

	// API configures the text completion endpoint.
	API APIConfig `yaml:"api"`

	// Multimodal configures the vision completion endpoint. Captioning
	// is disabled unless base_url, model and api_key are all set.
	Multimodal MultimodalConfig `yaml:"multimodal"`

	// Storage configures the record database.
	Storage StorageConfig `yaml:"storage"`

	// Scheduler configures optional periodic recaps.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig configures the OpenAI-compatible text completion endpoint.
type APIConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// MultimodalConfig configures the vision completion endpoint.
type MultimodalConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// StorageConfig configures the record database.
type StorageConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path"`
}

// SchedulerConfig configures periodic recaps.
type SchedulerConfig struct {
	// Enabled turns the scheduler on/off.
	Enabled bool `yaml:"enabled"`

	// Jobs lists the periodic recap definitions.
	Jobs []RecapJobConfig `yaml:"jobs"`
}

// RecapJobConfig is one scheduled recap entry.
type RecapJobConfig struct {
	// Schedule is a cron expression (e.g. "0 22 * * *").
	Schedule string `yaml:"schedule"`

	// Session is the session id to summarize.
	Session string `yaml:"session"`

	// Window is the look-back window in seconds (default 24h).
	Window int64 `yaml:"window"`

	// Channel and ChatID address the chat the recap is posted to.
	Channel string `yaml:"channel"`
	ChatID  string `yaml:"chat_id"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the log format ("json", "text").
	Format string `yaml:"format"`
}

// Enabled reports whether vision captioning is fully configured.
func (m MultimodalConfig) Enabled() bool {
	return m.BaseURL != "" && m.Model != "" && m.APIKey != ""
}

// DefaultSummaryPrompt is the system instruction used when the config
// does not override it. The chat log format note tells the model how to
// read the <T> marker and placeholder lines.
const DefaultSummaryPrompt = `**核心规则：**
1. **指令优先级：**
    *   **最高优先级：** 用户特定指令:{custom_prompt} **，如果涉及总结可以参考总结的规则，否则只遵循用户特定指令执行。
    *   **次优先级：** 在指令为无时，执行默认的总结操作。

2.  **默认总结规则（仅在满足次优先级条件时执行）：**
    *   做群聊总结和摘要，主次层次分明；
    *   尽量突出重要内容以及关键信息（重要的关键字/数据/观点/结论等），避免过于简略而丢失信息量；
    *   允许有多个主题/话题，分开描述；
    *   弱化非关键发言人的对话内容。
    *   格式：
        1️⃣[Topic][热度(用1-5个🔥表示)]
        • 时间：月-日 时:分 - -日 时:分(不显示年)
        • 参与者：
        • 内容：
        • 结论：

聊天记录格式：
[x]是emoji表情或者是对图片和声音文件的说明，消息最后出现<T>表示消息触发了群聊机器人的回复，内容通常是提问，可降低这些消息的权重。请不要在回复中包含聊天记录格式中出现的符号。
`

// DefaultImagePrompt is the caption instruction used when the config
// does not override it.
const DefaultImagePrompt = `尽可能简单简要描述这张图片的客观内容，抓住整体和关键信息，但不做概述，不做评论，限制在100字以内。
如果是文字截图，只关注文字内容；如果图中有划线、画圈等，要注意这可能是表达的重点信息。`

// DefaultConfig returns the default service configuration.
func DefaultConfig() *Config {
	return &Config{
		TriggerPrefix:       "$",
		SingleChatPrefix:    []string{""},
		ChannelType:         "wx",
		InputTokenBudget:    8000,
		PerChunkTokenBudget: 3600,
		MaxChunksPerSummary: 10,
		SummaryPrompt:       DefaultSummaryPrompt,
		ImagePrompt:         DefaultImagePrompt,
		API: APIConfig{
			BaseURL:   "https://api.openai.com/v1",
			Model:     "gpt-4o-mini",
			MaxTokens: 2000,
		},
		Storage: StorageConfig{
			Path: "./data/recap.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
