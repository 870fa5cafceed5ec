// Package domain defines the runtime's entities: User, Character,
// ChatSession, Message, SystemConfig, UserPointsConsumption, UserReferral,
// AuditLog, and the in-memory-only Prompt/EmbeddingMessage/GraphEntity/
// GraphRelation types consumed by the memory pipeline.
package domain

import "time"

// Role is a User's access level.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User is the identity and credit-ledger anchor.
type User struct {
	ID          string
	ExternalID  string
	DisplayName string
	Role        Role
	Provider    string

	Claimed   int64
	Purchased int64
	Misc      int64

	BalanceUsage           int64
	FreeBalanceClaimedAt   time.Time
	LastBalanceDeductionAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Total is the sum of the three buckets.
func (u User) Total() int64 { return u.Claimed + u.Purchased + u.Misc }

// CharacterStatus is a Character's moderation state.
type CharacterStatus string

const (
	CharacterDraft     CharacterStatus = "draft"
	CharacterReviewing CharacterStatus = "reviewing"
	CharacterRejected  CharacterStatus = "rejected"
	CharacterPublished CharacterStatus = "published"
	CharacterArchived  CharacterStatus = "archived"
)

// CharacterFeature selects which RoleplayAgent handles a session for this
// character.
type CharacterFeature string

const (
	FeatureRoleplay          CharacterFeature = "roleplay"
	FeatureCharacterCreation CharacterFeature = "character_creation"
)

// Character is an immutable-by-version description plus mutable prompt
// fields; published-state edits append a CharacterHistory snapshot.
type Character struct {
	ID      string
	Version int

	Name         string
	Description  string
	Language     string
	Gender       string
	Features     []string // feature set tags, distinct from CharacterFeature dispatch key
	Status       CharacterStatus
	StatusReason string // populated for Rejected/Archived

	Personality       string
	Scenario          string
	ExampleDialogue   string
	FirstMessage      string // may be a serialized send_message tool call
	BackgroundStories []string
	BehaviorTraits    []string
	Relationships     []string
	SkillsInterests   []string
	AdditionalInfo    string
	Tags              []string
	AvatarURL         string

	Feature CharacterFeature

	CreatorID string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CharacterHistory is an append-only snapshot of a Character at the moment
// of a published-state modification.
type CharacterHistory struct {
	ID          string
	CharacterID string
	Version     int
	Snapshot    Character
	CreatedAt   time.Time
}

// AuditLog records a Character moderation state transition.
type AuditLog struct {
	ID          string
	CharacterID string
	AuthorID    string
	PrevStatus  CharacterStatus
	NewStatus   CharacterStatus
	Notes       string
	CreatedAt   time.Time
}

// SystemConfig is the named, versioned bundle driving one Agent.
type SystemConfig struct {
	ID           string
	Name         string // UNIQUE
	Version      int
	SystemPrompt string
	Model        string
	Temperature  float64
	MaxTokens    int
	BaseURL      string
	Functions    []string // tool schema names bound to this config
	UpdatedAt    time.Time
}

// Diff reports whether other differs in any of the fields the upsert policy
// tracks.
func (c SystemConfig) Diff(other SystemConfig) bool {
	if c.SystemPrompt != other.SystemPrompt || c.Model != other.Model ||
		c.Temperature != other.Temperature || c.MaxTokens != other.MaxTokens {
		return true
	}
	if len(c.Functions) != len(other.Functions) {
		return true
	}
	for i := range c.Functions {
		if c.Functions[i] != other.Functions[i] {
			return true
		}
	}
	return false
}

// ChatSession is a Session entity.
type ChatSession struct {
	ID                 string
	OwnerID            string
	CharacterID        string
	UseCharacterMemory bool
	Hidden             bool
	History            []string // ordered Message ids, commit-order
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ContentType is the media kind of a Prompt or Message side.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentAudio ContentType = "audio"
)

// ToolCallPayload is the decoded structured output attached to one side of a
// Message (or a Prompt, pre-persistence).
type ToolCallPayload struct {
	Name string
	Args map[string]any
}

// MessageSide is one half of a turn: either the user's input or the
// assistant's structured reply.
type MessageSide struct {
	Content     string
	ContentType ContentType
	ToolCall    *ToolCallPayload
}

// ConsumptionKind enumerates UserPointsConsumption.Kind.
type ConsumptionKind string

const (
	KindLLMCall              ConsumptionKind = "llm_call"
	KindLLMCallRegenerate    ConsumptionKind = "llm_call_regenerate"
	KindLLMCharacterCreation ConsumptionKind = "llm_character_creation"
	KindMemoryUpdate         ConsumptionKind = "memory_update"
	KindFactExtraction       ConsumptionKind = "fact_extraction"
	KindOther                ConsumptionKind = "other"
)

// Message is one user<->assistant exchange within a ChatSession.
type Message struct {
	ID             string
	OwnerID        string
	SessionID      string
	SystemConfigID string

	UserMessage      MessageSide
	AssistantMessage MessageSide

	ModelName       string
	UsagePrompt     int
	UsageCompletion int
	FinishReason    string

	Summary        string
	IsStale        bool
	IsMemorizeable bool
	IsInMemory     bool

	CreatedAt time.Time
}

// UserPointsConsumption is an append-only ledger row.
type UserPointsConsumption struct {
	ID             string
	UserID         string
	Kind           ConsumptionKind
	CharacterID    string // populated for kinds scoped to a character; "" for FactExtraction/Other
	OtherLabel     string // populated for ConsumptionKind=Other
	FromClaimed    int64
	FromPurchased  int64
	FromMisc       int64
	RewardedTo     string
	RewardedPoints int64
	CreatedAt      time.Time
}

// UserReferral is one issued referral code.
type UserReferral struct {
	ID        string
	UserID    string
	Code      string
	CreatedAt time.Time
}

// PromptRole mirrors the LLM-facing roles composed by the Prompt Composer.
type PromptRole string

const (
	RoleSystem    PromptRole = "system"
	RoleUserMsg   PromptRole = "user"
	RoleAssistant PromptRole = "assistant"
	RoleToolCall  PromptRole = "tool_call"
)

// Prompt is the in-memory-only composed message unit.
type Prompt struct {
	Role        PromptRole
	ContentType ContentType
	Content     string
	ToolCall    *ToolCallPayload
}

// EmbeddingMessage is one row of the vector memory store.
type EmbeddingMessage struct {
	ID        string
	UserID    string
	AgentID   string // character id scope, or "" for session-only scope
	SessionID string // nullable session scope
	Embedding []float32
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GraphEntity is a knowledge-graph node.
type GraphEntity struct {
	ID        string
	Name      string
	UserID    string
	AgentID   string
	Embedding []float32
	Mentions  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GraphRelation is a typed knowledge-graph edge.
type GraphRelation struct {
	ID            string
	UserID        string
	SourceID      string
	DestinationID string
	Relationship  string
	Mentions      int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
