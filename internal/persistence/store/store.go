// Package store is the Session/Message Store: the relational
// entities User, Character, ChatSession, Message, SystemConfig,
// UserPointsConsumption, UserReferral and their transactional access. A
// Postgres implementation rides on pgx; an in-memory implementation with
// snapshot-rollback transactions backs the tests.
package store

import (
	"context"
	"errors"

	"github.com/metastable-lab/roleplay/internal/domain"
)

// ErrNotFound is returned for any missing row; callers map it onto the
// taxonomy's NotFound kind.
var ErrNotFound = errors.New("store: not found")

// Tx is one open transaction. All mutations of a turn happen through a
// single Tx so that failure before commit leaves no observable side
// effect.
type Tx interface {
	// GetUserForUpdate loads a user and locks the row for the duration of
	// the transaction; balance mutations only happen under this lock.
	GetUserForUpdate(ctx context.Context, id string) (domain.User, error)
	GetUser(ctx context.Context, id string) (domain.User, error)
	InsertUser(ctx context.Context, u domain.User) error
	// UpdateUserBalances persists the three buckets, balance_usage, and the
	// claim/deduction timestamps.
	UpdateUserBalances(ctx context.Context, u domain.User) error

	GetCharacter(ctx context.Context, id string) (domain.Character, error)
	InsertCharacter(ctx context.Context, c domain.Character) error
	UpdateCharacter(ctx context.Context, c domain.Character) error
	InsertCharacterHistory(ctx context.Context, h domain.CharacterHistory) error
	InsertAuditLog(ctx context.Context, a domain.AuditLog) error

	GetSession(ctx context.Context, id string) (domain.ChatSession, error)
	InsertSession(ctx context.Context, s domain.ChatSession) error
	// AppendSessionHistory appends messageID to the session's history column
	// in one store-side statement (array_append); read-modify-write is
	// forbidden.
	AppendSessionHistory(ctx context.Context, sessionID, messageID string) error

	GetMessage(ctx context.Context, id string) (domain.Message, error)
	InsertMessage(ctx context.Context, m domain.Message) error
	MarkMessageStale(ctx context.Context, id string) error
	// MarkMessagesInMemory flips is_in_memory on every id in one statement
	// (WHERE id = ANY($1)).
	MarkMessagesInMemory(ctx context.Context, ids []string) error
	// ListSessionMessages returns the session's non-stale messages in
	// created_at ascending order, the history window C2 composes from.
	ListSessionMessages(ctx context.Context, sessionID string) ([]domain.Message, error)
	// ListMemorizeableMessages returns the session's messages with
	// is_memorizeable and is_in_memory both set, created_at descending
	//.
	ListMemorizeableMessages(ctx context.Context, sessionID string) ([]domain.Message, error)

	GetSystemConfigByName(ctx context.Context, name string) (domain.SystemConfig, error)
	InsertSystemConfig(ctx context.Context, c domain.SystemConfig) error
	UpdateSystemConfig(ctx context.Context, c domain.SystemConfig) error
	ListSystemConfigs(ctx context.Context) ([]domain.SystemConfig, error)
	DeleteSystemConfig(ctx context.Context, id string) error

	InsertConsumption(ctx context.Context, c domain.UserPointsConsumption) error
	InsertReferral(ctx context.Context, r domain.UserReferral) error
	ListReferrals(ctx context.Context, userID string) ([]domain.UserReferral, error)
}

// Store opens transactions. WithTx commits when fn returns nil and rolls
// back otherwise (or when ctx is cancelled mid-flight).
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
