package roleplay

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/metastable-lab/roleplay/internal/domain"
	"github.com/metastable-lab/roleplay/internal/persistence/store"
	"github.com/metastable-lab/roleplay/internal/rpcerr"
)

// allowedTransitions is the moderation state machine:
// Draft -> Reviewing -> {Published, Rejected}; Published -> Archived.
var allowedTransitions = map[domain.CharacterStatus][]domain.CharacterStatus{
	domain.CharacterDraft:     {domain.CharacterReviewing},
	domain.CharacterReviewing: {domain.CharacterPublished, domain.CharacterRejected},
	domain.CharacterPublished: {domain.CharacterArchived},
}

func transitionAllowed(from, to domain.CharacterStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionCharacter moves a character through moderation, appending the
// audit row in the same transaction.
func (e *Engine) TransitionCharacter(ctx context.Context, characterID, authorID string, newStatus domain.CharacterStatus, notes string) error {
	return e.store.WithTx(ctx, func(tx store.Tx) error {
		c, err := tx.GetCharacter(ctx, characterID)
		if err != nil {
			return mapNotFound("roleplay.TransitionCharacter", err)
		}
		if !transitionAllowed(c.Status, newStatus) {
			return rpcerr.New(rpcerr.Fatal, "roleplay.TransitionCharacter",
				fmt.Errorf("illegal transition %s -> %s", c.Status, newStatus))
		}
		prev := c.Status
		c.Status = newStatus
		switch newStatus {
		case domain.CharacterRejected, domain.CharacterArchived:
			c.StatusReason = notes
		default:
			c.StatusReason = ""
		}
		if err := tx.UpdateCharacter(ctx, c); err != nil {
			return err
		}
		return tx.InsertAuditLog(ctx, domain.AuditLog{
			ID:          uuid.NewString(),
			CharacterID: c.ID,
			AuthorID:    authorID,
			PrevStatus:  prev,
			NewStatus:   newStatus,
			Notes:       notes,
			CreatedAt:   e.now(),
		})
	})
}

// UpdateCharacter persists an edit. Modifying a published character bumps
// the version and appends an append-only CharacterHistory snapshot of the
// pre-edit state.
func (e *Engine) UpdateCharacter(ctx context.Context, edited domain.Character) error {
	return e.store.WithTx(ctx, func(tx store.Tx) error {
		current, err := tx.GetCharacter(ctx, edited.ID)
		if err != nil {
			return mapNotFound("roleplay.UpdateCharacter", err)
		}
		edited.Status = current.Status
		edited.Version = current.Version
		if current.Status == domain.CharacterPublished {
			if err := tx.InsertCharacterHistory(ctx, domain.CharacterHistory{
				ID:          uuid.NewString(),
				CharacterID: current.ID,
				Version:     current.Version,
				Snapshot:    current,
				CreatedAt:   e.now(),
			}); err != nil {
				return err
			}
			edited.Version = current.Version + 1
		}
		return tx.UpdateCharacter(ctx, edited)
	})
}
