package models

import (
	"encoding/json"
	"time"
)

// ChannelType represents a messaging platform.
type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelDiscord  ChannelType = "discord"
	ChannelSlack    ChannelType = "slack"
	ChannelAPI      ChannelType = "api"
)

// Direction indicates if a message is inbound or outbound.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is the unified message format across all channels.
type Message struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"session_id"`
	Channel     ChannelType       `json:"channel"`
	ChannelID   string            `json:"channel_id"`   // Platform-specific message ID
	Direction   Direction         `json:"direction"`
	Role        Role              `json:"role"`
	Content     string            `json:"content"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	ToolCalls   []ToolCall        `json:"tool_calls,omitempty"`
	ToolResults []ToolResult      `json:"tool_results,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Attachment represents a file or media attachment.
type Attachment struct {
	ID       string `json:"id"`
	Type     string `json:"type"` // image, audio, video, document
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// ToolCall represents an LLM's request to execute a tool.
type ToolCall struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Input    json.RawMessage `json:"input"`
}

// ToolResult represents the output of a tool execution.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// RetryConfig holds a session's transient-failure retry policy.
type RetryConfig struct {
	MaxAttempts    int           `json:"max_attempts"`
	InitialBackoff time.Duration `json:"initial_backoff"`
	MaxBackoff     time.Duration `json:"max_backoff"`
}

// Session represents a conversation thread, and doubles as the spec's
// Session entity: team/agent/user ownership, extension override state,
// and the is_processing execution gate.
type Session struct {
	ID        string         `json:"id"`
	TeamID    string         `json:"team_id,omitempty"`
	AgentID   string         `json:"agent_id"`
	UserID    string         `json:"user_id,omitempty"`
	Channel   ChannelType    `json:"channel"`
	ChannelID string         `json:"channel_id"`
	Key       string         `json:"key"`
	Title     string         `json:"title,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	WorkspacePath string `json:"workspace_path,omitempty"`

	MessageCount int64 `json:"message_count"`
	TotalTokens  int64 `json:"total_tokens"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`

	CompactionCount    int    `json:"compaction_count"`
	CompactionStrategy string `json:"compaction_strategy,omitempty"`

	DisabledExtensions []string `json:"disabled_extensions,omitempty"`
	EnabledExtensions  []string `json:"enabled_extensions,omitempty"`
	AllowedExtensions  []string `json:"allowed_extensions,omitempty"`
	AllowedSkillIDs    []string `json:"allowed_skill_ids,omitempty"`

	RetryConfig          *RetryConfig `json:"retry_config,omitempty"`
	MaxTurns             int          `json:"max_turns,omitempty"`
	ToolTimeoutSeconds   int          `json:"tool_timeout_seconds,omitempty"`
	MaxPortalRetryRounds int          `json:"max_portal_retry_rounds,omitempty"`

	RequireFinalReport bool `json:"require_final_report,omitempty"`
	PortalRestricted   bool `json:"portal_restricted,omitempty"`
	IsProcessing       bool `json:"is_processing"`

	PortalID             string   `json:"portal_id,omitempty"`
	PortalSlug           string   `json:"portal_slug,omitempty"`
	VisitorID            string   `json:"visitor_id,omitempty"`
	ExtraInstructions    string   `json:"extra_instructions,omitempty"`
	AttachedDocumentIDs  []string `json:"attached_document_ids,omitempty"`

	IsDeleted bool `json:"is_deleted,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ETag derives an optimistic-concurrency token from UpdatedAt, per the
// document store's optimistic-locking scheme.
func (s *Session) ETag() string {
	return s.UpdatedAt.UTC().Format(time.RFC3339Nano)
}

// User represents an authenticated user.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Role        string    `json:"role,omitempty"` // owner|admin|member
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CustomExtensionConfig describes a non-built-in tool extension: either a
// stdio subprocess command or a remote SSE endpoint.
type CustomExtensionConfig struct {
	Name    string   `json:"name"`
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
	Env     []string `json:"env,omitempty"`
	SSEURL  string   `json:"sse_url,omitempty"`
}

// Agent represents a configured AI agent. ProviderFormat is one of
// openai|anthropic|local per the spec's data model.
type Agent struct {
	ID           string         `json:"id"`
	TeamID       string         `json:"team_id,omitempty"`
	UserID       string         `json:"user_id"`
	Name         string         `json:"name"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	Model        string         `json:"model"`
	Provider     string         `json:"provider"`
	Credential   string         `json:"-"`

	BuiltinExtensions []string                 `json:"builtin_extensions,omitempty"`
	CustomExtensions  []CustomExtensionConfig  `json:"custom_extensions,omitempty"`
	AllowedSkillIDs   []string                 `json:"allowed_skill_ids,omitempty"`
	SkillPolicy       string                   `json:"skill_policy,omitempty"` // all|reviewed_only|none

	Tools     []string       `json:"tools,omitempty"`
	Config    map[string]any `json:"config,omitempty"`
	// ConfigSchema optionally constrains Config to a JSON Schema document,
	// checked on registration.
	ConfigSchema string    `json:"config_schema,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// APIKey represents an API key for programmatic access. The secret itself
// is never stored: Hash is an Argon2id digest and Prefix is a 32-bit
// clear-text prefix used for O(1) candidate lookup.
type APIKey struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	Prefix     uint32    `json:"prefix"`
	Hash       string    `json:"-"`
	Scopes     []string  `json:"scopes,omitempty"`
	LastUsedAt time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
