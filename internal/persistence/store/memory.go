package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/metastable-lab/roleplay/internal/domain"
)

// MemoryStore is the constructor-injected fake for tests: a map-backed Store
// whose WithTx clones the whole state up front and restores it when fn
// fails, giving real rollback semantics. Transactions serialize on one
// mutex, which also makes the history append atomic under concurrent turns.
type MemoryStore struct {
	mu sync.Mutex
	st memState
}

type memState struct {
	users         map[string]domain.User
	characters    map[string]domain.Character
	charHistory   []domain.CharacterHistory
	auditLogs     []domain.AuditLog
	sessions      map[string]domain.ChatSession
	messages      map[string]domain.Message
	systemConfigs map[string]domain.SystemConfig // by id
	consumptions  []domain.UserPointsConsumption
	referrals     []domain.UserReferral
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{st: memState{
		users:         map[string]domain.User{},
		characters:    map[string]domain.Character{},
		sessions:      map[string]domain.ChatSession{},
		messages:      map[string]domain.Message{},
		systemConfigs: map[string]domain.SystemConfig{},
	}}
}

func (s *memState) clone() memState {
	cp := memState{
		users:         make(map[string]domain.User, len(s.users)),
		characters:    make(map[string]domain.Character, len(s.characters)),
		sessions:      make(map[string]domain.ChatSession, len(s.sessions)),
		messages:      make(map[string]domain.Message, len(s.messages)),
		systemConfigs: make(map[string]domain.SystemConfig, len(s.systemConfigs)),
		charHistory:   append([]domain.CharacterHistory(nil), s.charHistory...),
		auditLogs:     append([]domain.AuditLog(nil), s.auditLogs...),
		consumptions:  append([]domain.UserPointsConsumption(nil), s.consumptions...),
		referrals:     append([]domain.UserReferral(nil), s.referrals...),
	}
	for k, v := range s.users {
		cp.users[k] = v
	}
	for k, v := range s.characters {
		cp.characters[k] = v
	}
	for k, v := range s.sessions {
		v.History = append([]string(nil), v.History...)
		cp.sessions[k] = v
	}
	for k, v := range s.messages {
		cp.messages[k] = v
	}
	for k, v := range s.systemConfigs {
		cp.systemConfigs[k] = v
	}
	return cp
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	if err := fn(&memTx{st: &s.st}); err != nil {
		s.st = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// Seed runs fn against the live state without transaction bookkeeping, for
// test fixtures.
func (s *MemoryStore) Seed(fn func(tx Tx)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&memTx{st: &s.st})
}

type memTx struct {
	st *memState
}

func (t *memTx) GetUserForUpdate(ctx context.Context, id string) (domain.User, error) {
	return t.GetUser(ctx, id)
}

func (t *memTx) GetUser(_ context.Context, id string) (domain.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return u, nil
}

func (t *memTx) InsertUser(_ context.Context, u domain.User) error {
	if _, exists := t.st.users[u.ID]; exists {
		return fmt.Errorf("insert user %s: duplicate id", u.ID)
	}
	t.st.users[u.ID] = u
	return nil
}

func (t *memTx) UpdateUserBalances(_ context.Context, u domain.User) error {
	existing, ok := t.st.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Claimed = u.Claimed
	existing.Purchased = u.Purchased
	existing.Misc = u.Misc
	existing.BalanceUsage = u.BalanceUsage
	existing.FreeBalanceClaimedAt = u.FreeBalanceClaimedAt
	existing.LastBalanceDeductionAt = u.LastBalanceDeductionAt
	t.st.users[u.ID] = existing
	return nil
}

func (t *memTx) GetCharacter(_ context.Context, id string) (domain.Character, error) {
	c, ok := t.st.characters[id]
	if !ok {
		return domain.Character{}, ErrNotFound
	}
	return c, nil
}

func (t *memTx) InsertCharacter(_ context.Context, c domain.Character) error {
	if _, exists := t.st.characters[c.ID]; exists {
		return fmt.Errorf("insert character %s: duplicate id", c.ID)
	}
	t.st.characters[c.ID] = c
	return nil
}

func (t *memTx) UpdateCharacter(_ context.Context, c domain.Character) error {
	if _, ok := t.st.characters[c.ID]; !ok {
		return ErrNotFound
	}
	t.st.characters[c.ID] = c
	return nil
}

func (t *memTx) InsertCharacterHistory(_ context.Context, h domain.CharacterHistory) error {
	t.st.charHistory = append(t.st.charHistory, h)
	return nil
}

func (t *memTx) InsertAuditLog(_ context.Context, a domain.AuditLog) error {
	t.st.auditLogs = append(t.st.auditLogs, a)
	return nil
}

func (t *memTx) GetSession(_ context.Context, id string) (domain.ChatSession, error) {
	s, ok := t.st.sessions[id]
	if !ok {
		return domain.ChatSession{}, ErrNotFound
	}
	s.History = append([]string(nil), s.History...)
	return s, nil
}

func (t *memTx) InsertSession(_ context.Context, s domain.ChatSession) error {
	if _, exists := t.st.sessions[s.ID]; exists {
		return fmt.Errorf("insert session %s: duplicate id", s.ID)
	}
	s.History = append([]string(nil), s.History...)
	t.st.sessions[s.ID] = s
	return nil
}

func (t *memTx) AppendSessionHistory(_ context.Context, sessionID, messageID string) error {
	s, ok := t.st.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.History = append(s.History, messageID)
	t.st.sessions[sessionID] = s
	return nil
}

func (t *memTx) GetMessage(_ context.Context, id string) (domain.Message, error) {
	m, ok := t.st.messages[id]
	if !ok {
		return domain.Message{}, ErrNotFound
	}
	return m, nil
}

func (t *memTx) InsertMessage(_ context.Context, m domain.Message) error {
	if _, exists := t.st.messages[m.ID]; exists {
		return fmt.Errorf("insert message %s: duplicate id", m.ID)
	}
	t.st.messages[m.ID] = m
	return nil
}

func (t *memTx) MarkMessageStale(_ context.Context, id string) error {
	m, ok := t.st.messages[id]
	if !ok {
		return ErrNotFound
	}
	m.IsStale = true
	t.st.messages[id] = m
	return nil
}

func (t *memTx) MarkMessagesInMemory(_ context.Context, ids []string) error {
	for _, id := range ids {
		if m, ok := t.st.messages[id]; ok {
			m.IsInMemory = true
			t.st.messages[id] = m
		}
	}
	return nil
}

func (t *memTx) ListSessionMessages(_ context.Context, sessionID string) ([]domain.Message, error) {
	var out []domain.Message
	for _, m := range t.st.messages {
		if m.SessionID == sessionID && !m.IsStale {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) ListMemorizeableMessages(_ context.Context, sessionID string) ([]domain.Message, error) {
	var out []domain.Message
	for _, m := range t.st.messages {
		if m.SessionID == sessionID && m.IsMemorizeable && m.IsInMemory {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) GetSystemConfigByName(_ context.Context, name string) (domain.SystemConfig, error) {
	for _, c := range t.st.systemConfigs {
		if c.Name == name {
			return c, nil
		}
	}
	return domain.SystemConfig{}, ErrNotFound
}

func (t *memTx) InsertSystemConfig(_ context.Context, c domain.SystemConfig) error {
	for _, existing := range t.st.systemConfigs {
		if existing.Name == c.Name {
			return fmt.Errorf("insert system config %q: duplicate name", c.Name)
		}
	}
	t.st.systemConfigs[c.ID] = c
	return nil
}

func (t *memTx) UpdateSystemConfig(_ context.Context, c domain.SystemConfig) error {
	if _, ok := t.st.systemConfigs[c.ID]; !ok {
		return ErrNotFound
	}
	t.st.systemConfigs[c.ID] = c
	return nil
}

func (t *memTx) ListSystemConfigs(_ context.Context) ([]domain.SystemConfig, error) {
	out := make([]domain.SystemConfig, 0, len(t.st.systemConfigs))
	for _, c := range t.st.systemConfigs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (t *memTx) DeleteSystemConfig(_ context.Context, id string) error {
	if _, ok := t.st.systemConfigs[id]; !ok {
		return ErrNotFound
	}
	delete(t.st.systemConfigs, id)
	return nil
}

func (t *memTx) InsertConsumption(_ context.Context, c domain.UserPointsConsumption) error {
	t.st.consumptions = append(t.st.consumptions, c)
	return nil
}

func (t *memTx) InsertReferral(_ context.Context, r domain.UserReferral) error {
	for _, existing := range t.st.referrals {
		if existing.Code == r.Code {
			return fmt.Errorf("insert referral: duplicate code %s", r.Code)
		}
	}
	t.st.referrals = append(t.st.referrals, r)
	return nil
}

func (t *memTx) ListReferrals(_ context.Context, userID string) ([]domain.UserReferral, error) {
	var out []domain.UserReferral
	for _, r := range t.st.referrals {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Consumptions returns a copy of the append-only ledger, for assertions.
func (s *MemoryStore) Consumptions() []domain.UserPointsConsumption {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.UserPointsConsumption(nil), s.st.consumptions...)
}

// AuditLogs returns a copy of the moderation audit trail, for assertions.
func (s *MemoryStore) AuditLogs() []domain.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditLog(nil), s.st.auditLogs...)
}

// CharacterHistory returns a copy of the snapshot log, for assertions.
func (s *MemoryStore) CharacterHistory() []domain.CharacterHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CharacterHistory(nil), s.st.charHistory...)
}
