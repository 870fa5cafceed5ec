package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/metastable-lab/roleplay/internal/domain"
)

type pgStore struct {
	pool *pgxpool.Pool
}

// NewPostgres returns a pgx-backed Store over the relational layout:
// users, roleplay_characters, chat_sessions, messages, system_configs,
// user_points_consumptions, user_referrals and the character history and
// audit tables.
func NewPostgres(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

// Migrate creates the tables if absent. Production migrations are a separate
// concern; this covers dev and test bootstrap.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  external_id TEXT NOT NULL DEFAULT '',
  display_name TEXT NOT NULL DEFAULT '',
  role TEXT NOT NULL DEFAULT 'user',
  provider TEXT NOT NULL DEFAULT '',
  claimed BIGINT NOT NULL DEFAULT 0,
  purchased BIGINT NOT NULL DEFAULT 0,
  misc BIGINT NOT NULL DEFAULT 0,
  balance_usage BIGINT NOT NULL DEFAULT 0,
  free_balance_claimed_at TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
  last_balance_deduction_at TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE TABLE IF NOT EXISTS roleplay_characters (
  id TEXT PRIMARY KEY,
  version INT NOT NULL DEFAULT 1,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  language TEXT NOT NULL DEFAULT '',
  gender TEXT NOT NULL DEFAULT '',
  features TEXT[] NOT NULL DEFAULT '{}',
  status TEXT NOT NULL DEFAULT 'draft',
  status_reason TEXT NOT NULL DEFAULT '',
  personality TEXT NOT NULL DEFAULT '',
  scenario TEXT NOT NULL DEFAULT '',
  example_dialogue TEXT NOT NULL DEFAULT '',
  first_message TEXT NOT NULL DEFAULT '',
  background_stories TEXT[] NOT NULL DEFAULT '{}',
  behavior_traits TEXT[] NOT NULL DEFAULT '{}',
  relationships TEXT[] NOT NULL DEFAULT '{}',
  skills_interests TEXT[] NOT NULL DEFAULT '{}',
  additional_info TEXT NOT NULL DEFAULT '',
  tags TEXT[] NOT NULL DEFAULT '{}',
  avatar_url TEXT NOT NULL DEFAULT '',
  feature TEXT NOT NULL DEFAULT 'roleplay',
  creator_id TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE TABLE IF NOT EXISTS roleplay_characters_history (
  id TEXT PRIMARY KEY,
  character_id TEXT NOT NULL REFERENCES roleplay_characters(id),
  version INT NOT NULL,
  snapshot JSONB NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE TABLE IF NOT EXISTS roleplay_character_audit_logs (
  id TEXT PRIMARY KEY,
  character_id TEXT NOT NULL REFERENCES roleplay_characters(id),
  author_id TEXT NOT NULL,
  prev_status TEXT NOT NULL,
  new_status TEXT NOT NULL,
  notes TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE TABLE IF NOT EXISTS chat_sessions (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL REFERENCES users(id),
  character_id TEXT NOT NULL REFERENCES roleplay_characters(id),
  use_character_memory BOOLEAN NOT NULL DEFAULT true,
  hidden BOOLEAN NOT NULL DEFAULT false,
  history TEXT[] NOT NULL DEFAULT '{}',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE TABLE IF NOT EXISTS messages (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL REFERENCES users(id),
  session_id TEXT NOT NULL REFERENCES chat_sessions(id),
  system_config_id TEXT NOT NULL DEFAULT '',
  user_message_content TEXT NOT NULL DEFAULT '',
  user_message_content_type TEXT NOT NULL DEFAULT 'text',
  user_message_toolcall JSONB,
  assistant_message_content TEXT NOT NULL DEFAULT '',
  assistant_message_content_type TEXT NOT NULL DEFAULT 'text',
  assistant_message_toolcall JSONB,
  model_name TEXT NOT NULL DEFAULT '',
  usage_prompt INT NOT NULL DEFAULT 0,
  usage_completion INT NOT NULL DEFAULT 0,
  finish_reason TEXT NOT NULL DEFAULT '',
  summary TEXT NOT NULL DEFAULT '',
  is_stale BOOLEAN NOT NULL DEFAULT false,
  is_memorizeable BOOLEAN NOT NULL DEFAULT true,
  is_in_memory BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS messages_session_created ON messages(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS system_configs (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  version INT NOT NULL DEFAULT 1,
  system_prompt TEXT NOT NULL DEFAULT '',
  model TEXT NOT NULL DEFAULT '',
  temperature DOUBLE PRECISION NOT NULL DEFAULT 0,
  max_tokens INT NOT NULL DEFAULT 0,
  base_url TEXT NOT NULL DEFAULT '',
  functions TEXT[] NOT NULL DEFAULT '{}',
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE TABLE IF NOT EXISTS user_points_consumptions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id),
  kind TEXT NOT NULL,
  character_id TEXT NOT NULL DEFAULT '',
  other_label TEXT NOT NULL DEFAULT '',
  from_claimed BIGINT NOT NULL DEFAULT 0,
  from_purchased BIGINT NOT NULL DEFAULT 0,
  from_misc BIGINT NOT NULL DEFAULT 0,
  rewarded_to TEXT NOT NULL DEFAULT '',
  rewarded_points BIGINT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE TABLE IF NOT EXISTS user_referrals (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id),
  code TEXT NOT NULL UNIQUE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *pgStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	ptx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	t := &pgTx{tx: ptx}
	if err := fn(t); err != nil {
		_ = ptx.Rollback(ctx)
		return err
	}
	if err := ptx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

const userColumns = `id, external_id, display_name, role, provider, claimed, purchased, misc,
balance_usage, free_balance_claimed_at, last_balance_deduction_at, created_at, updated_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.ExternalID, &u.DisplayName, &u.Role, &u.Provider,
		&u.Claimed, &u.Purchased, &u.Misc, &u.BalanceUsage,
		&u.FreeBalanceClaimedAt, &u.LastBalanceDeductionAt, &u.CreatedAt, &u.UpdatedAt)
	return u, notFound(err)
}

func (t *pgTx) GetUserForUpdate(ctx context.Context, id string) (domain.User, error) {
	return scanUser(t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1 FOR UPDATE`, id))
}

func (t *pgTx) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (t *pgTx) InsertUser(ctx context.Context, u domain.User) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO users(`+userColumns+`)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		u.ID, u.ExternalID, u.DisplayName, u.Role, u.Provider,
		u.Claimed, u.Purchased, u.Misc, u.BalanceUsage,
		u.FreeBalanceClaimedAt, u.LastBalanceDeductionAt, u.CreatedAt, u.UpdatedAt)
	return err
}

func (t *pgTx) UpdateUserBalances(ctx context.Context, u domain.User) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE users SET claimed=$2, purchased=$3, misc=$4, balance_usage=$5,
  free_balance_claimed_at=$6, last_balance_deduction_at=$7, updated_at=now()
WHERE id=$1`,
		u.ID, u.Claimed, u.Purchased, u.Misc, u.BalanceUsage,
		u.FreeBalanceClaimedAt, u.LastBalanceDeductionAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const characterColumns = `id, version, name, description, language, gender, features, status, status_reason,
personality, scenario, example_dialogue, first_message, background_stories, behavior_traits,
relationships, skills_interests, additional_info, tags, avatar_url, feature, creator_id, created_at, updated_at`

func scanCharacter(row pgx.Row) (domain.Character, error) {
	var c domain.Character
	err := row.Scan(&c.ID, &c.Version, &c.Name, &c.Description, &c.Language, &c.Gender,
		&c.Features, &c.Status, &c.StatusReason, &c.Personality, &c.Scenario,
		&c.ExampleDialogue, &c.FirstMessage, &c.BackgroundStories, &c.BehaviorTraits,
		&c.Relationships, &c.SkillsInterests, &c.AdditionalInfo, &c.Tags,
		&c.AvatarURL, &c.Feature, &c.CreatorID, &c.CreatedAt, &c.UpdatedAt)
	return c, notFound(err)
}

func (t *pgTx) GetCharacter(ctx context.Context, id string) (domain.Character, error) {
	return scanCharacter(t.tx.QueryRow(ctx, `SELECT `+characterColumns+` FROM roleplay_characters WHERE id=$1`, id))
}

func (t *pgTx) InsertCharacter(ctx context.Context, c domain.Character) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO roleplay_characters(`+characterColumns+`)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)`,
		c.ID, c.Version, c.Name, c.Description, c.Language, c.Gender, c.Features,
		c.Status, c.StatusReason, c.Personality, c.Scenario, c.ExampleDialogue,
		c.FirstMessage, c.BackgroundStories, c.BehaviorTraits, c.Relationships,
		c.SkillsInterests, c.AdditionalInfo, c.Tags, c.AvatarURL, c.Feature,
		c.CreatorID, c.CreatedAt, c.UpdatedAt)
	return err
}

func (t *pgTx) UpdateCharacter(ctx context.Context, c domain.Character) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE roleplay_characters SET version=$2, name=$3, description=$4, language=$5, gender=$6,
  features=$7, status=$8, status_reason=$9, personality=$10, scenario=$11,
  example_dialogue=$12, first_message=$13, background_stories=$14, behavior_traits=$15,
  relationships=$16, skills_interests=$17, additional_info=$18, tags=$19, avatar_url=$20,
  feature=$21, updated_at=now()
WHERE id=$1`,
		c.ID, c.Version, c.Name, c.Description, c.Language, c.Gender, c.Features,
		c.Status, c.StatusReason, c.Personality, c.Scenario, c.ExampleDialogue,
		c.FirstMessage, c.BackgroundStories, c.BehaviorTraits, c.Relationships,
		c.SkillsInterests, c.AdditionalInfo, c.Tags, c.AvatarURL, c.Feature)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) InsertCharacterHistory(ctx context.Context, h domain.CharacterHistory) error {
	snapshot, err := json.Marshal(h.Snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
INSERT INTO roleplay_characters_history(id, character_id, version, snapshot, created_at)
VALUES($1,$2,$3,$4,$5)`, h.ID, h.CharacterID, h.Version, snapshot, h.CreatedAt)
	return err
}

func (t *pgTx) InsertAuditLog(ctx context.Context, a domain.AuditLog) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO roleplay_character_audit_logs(id, character_id, author_id, prev_status, new_status, notes, created_at)
VALUES($1,$2,$3,$4,$5,$6,$7)`, a.ID, a.CharacterID, a.AuthorID, a.PrevStatus, a.NewStatus, a.Notes, a.CreatedAt)
	return err
}

func (t *pgTx) GetSession(ctx context.Context, id string) (domain.ChatSession, error) {
	var s domain.ChatSession
	err := t.tx.QueryRow(ctx, `
SELECT id, owner_id, character_id, use_character_memory, hidden, history, created_at, updated_at
FROM chat_sessions WHERE id=$1`, id).Scan(
		&s.ID, &s.OwnerID, &s.CharacterID, &s.UseCharacterMemory, &s.Hidden,
		&s.History, &s.CreatedAt, &s.UpdatedAt)
	return s, notFound(err)
}

func (t *pgTx) InsertSession(ctx context.Context, s domain.ChatSession) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO chat_sessions(id, owner_id, character_id, use_character_memory, hidden, history, created_at, updated_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		s.ID, s.OwnerID, s.CharacterID, s.UseCharacterMemory, s.Hidden, s.History, s.CreatedAt, s.UpdatedAt)
	return err
}

func (t *pgTx) AppendSessionHistory(ctx context.Context, sessionID, messageID string) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE chat_sessions SET history = array_append(history, $2), updated_at = now() WHERE id=$1`,
		sessionID, messageID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const messageColumns = `id, owner_id, session_id, system_config_id,
user_message_content, user_message_content_type, user_message_toolcall,
assistant_message_content, assistant_message_content_type, assistant_message_toolcall,
model_name, usage_prompt, usage_completion, finish_reason, summary,
is_stale, is_memorizeable, is_in_memory, created_at`

func encodeToolCall(tc *domain.ToolCallPayload) (any, error) {
	if tc == nil {
		return nil, nil
	}
	raw, err := json.Marshal(tc)
	if err != nil {
		return nil, fmt.Errorf("encode toolcall: %w", err)
	}
	return raw, nil
}

func scanMessage(row pgx.Row) (domain.Message, error) {
	var (
		m                domain.Message
		userTC, assistTC []byte
	)
	err := row.Scan(&m.ID, &m.OwnerID, &m.SessionID, &m.SystemConfigID,
		&m.UserMessage.Content, &m.UserMessage.ContentType, &userTC,
		&m.AssistantMessage.Content, &m.AssistantMessage.ContentType, &assistTC,
		&m.ModelName, &m.UsagePrompt, &m.UsageCompletion, &m.FinishReason, &m.Summary,
		&m.IsStale, &m.IsMemorizeable, &m.IsInMemory, &m.CreatedAt)
	if err != nil {
		return m, notFound(err)
	}
	if len(userTC) > 0 {
		m.UserMessage.ToolCall = &domain.ToolCallPayload{}
		if err := json.Unmarshal(userTC, m.UserMessage.ToolCall); err != nil {
			return m, fmt.Errorf("decode user toolcall: %w", err)
		}
	}
	if len(assistTC) > 0 {
		m.AssistantMessage.ToolCall = &domain.ToolCallPayload{}
		if err := json.Unmarshal(assistTC, m.AssistantMessage.ToolCall); err != nil {
			return m, fmt.Errorf("decode assistant toolcall: %w", err)
		}
	}
	return m, nil
}

func (t *pgTx) GetMessage(ctx context.Context, id string) (domain.Message, error) {
	return scanMessage(t.tx.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, id))
}

func (t *pgTx) InsertMessage(ctx context.Context, m domain.Message) error {
	userTC, err := encodeToolCall(m.UserMessage.ToolCall)
	if err != nil {
		return err
	}
	assistTC, err := encodeToolCall(m.AssistantMessage.ToolCall)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
INSERT INTO messages(`+messageColumns+`)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		m.ID, m.OwnerID, m.SessionID, m.SystemConfigID,
		m.UserMessage.Content, m.UserMessage.ContentType, userTC,
		m.AssistantMessage.Content, m.AssistantMessage.ContentType, assistTC,
		m.ModelName, m.UsagePrompt, m.UsageCompletion, m.FinishReason, m.Summary,
		m.IsStale, m.IsMemorizeable, m.IsInMemory, m.CreatedAt)
	return err
}

func (t *pgTx) MarkMessageStale(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE messages SET is_stale=true WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) MarkMessagesInMemory(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := t.tx.Exec(ctx, `UPDATE messages SET is_in_memory=true WHERE id = ANY($1)`, ids)
	return err
}

func (t *pgTx) listMessages(ctx context.Context, query string, args ...any) ([]domain.Message, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (t *pgTx) ListSessionMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	return t.listMessages(ctx, `
SELECT `+messageColumns+` FROM messages
WHERE session_id=$1 AND is_stale=false
ORDER BY created_at ASC`, sessionID)
}

func (t *pgTx) ListMemorizeableMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	return t.listMessages(ctx, `
SELECT `+messageColumns+` FROM messages
WHERE session_id=$1 AND is_memorizeable=true AND is_in_memory=true
ORDER BY created_at DESC`, sessionID)
}

const systemConfigColumns = `id, name, version, system_prompt, model, temperature, max_tokens, base_url, functions, updated_at`

func scanSystemConfig(row pgx.Row) (domain.SystemConfig, error) {
	var c domain.SystemConfig
	err := row.Scan(&c.ID, &c.Name, &c.Version, &c.SystemPrompt, &c.Model,
		&c.Temperature, &c.MaxTokens, &c.BaseURL, &c.Functions, &c.UpdatedAt)
	return c, notFound(err)
}

func (t *pgTx) GetSystemConfigByName(ctx context.Context, name string) (domain.SystemConfig, error) {
	return scanSystemConfig(t.tx.QueryRow(ctx, `SELECT `+systemConfigColumns+` FROM system_configs WHERE name=$1`, name))
}

func (t *pgTx) InsertSystemConfig(ctx context.Context, c domain.SystemConfig) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO system_configs(`+systemConfigColumns+`)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		c.ID, c.Name, c.Version, c.SystemPrompt, c.Model, c.Temperature,
		c.MaxTokens, c.BaseURL, c.Functions, c.UpdatedAt)
	return err
}

func (t *pgTx) UpdateSystemConfig(ctx context.Context, c domain.SystemConfig) error {
	tag, err := t.tx.Exec(ctx, `
UPDATE system_configs SET version=$2, system_prompt=$3, model=$4, temperature=$5,
  max_tokens=$6, base_url=$7, functions=$8, updated_at=$9
WHERE id=$1`,
		c.ID, c.Version, c.SystemPrompt, c.Model, c.Temperature, c.MaxTokens,
		c.BaseURL, c.Functions, c.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) ListSystemConfigs(ctx context.Context) ([]domain.SystemConfig, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+systemConfigColumns+` FROM system_configs ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.SystemConfig
	for rows.Next() {
		c, err := scanSystemConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *pgTx) DeleteSystemConfig(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM system_configs WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) InsertConsumption(ctx context.Context, c domain.UserPointsConsumption) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO user_points_consumptions(id, user_id, kind, character_id, other_label,
  from_claimed, from_purchased, from_misc, rewarded_to, rewarded_points, created_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		c.ID, c.UserID, c.Kind, c.CharacterID, c.OtherLabel,
		c.FromClaimed, c.FromPurchased, c.FromMisc, c.RewardedTo, c.RewardedPoints, c.CreatedAt)
	return err
}

func (t *pgTx) InsertReferral(ctx context.Context, r domain.UserReferral) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO user_referrals(id, user_id, code, created_at)
VALUES($1,$2,$3,$4)`, r.ID, r.UserID, r.Code, r.CreatedAt)
	return err
}

func (t *pgTx) ListReferrals(ctx context.Context, userID string) ([]domain.UserReferral, error) {
	rows, err := t.tx.Query(ctx, `
SELECT id, user_id, code, created_at FROM user_referrals WHERE user_id=$1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.UserReferral
	for rows.Next() {
		var r domain.UserReferral
		if err := rows.Scan(&r.ID, &r.UserID, &r.Code, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
