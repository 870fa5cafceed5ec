// Package systemconfig implements the System-Config Store: the
// named, versioned bundle of (prompt, model, temperature, max_tokens,
// functions) each Agent runs under, with upsert-on-drift semantics. Agents
// carry the in-code authoritative definition and reconcile to the store at
// boot via Preload.
package systemconfig

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/metastable-lab/roleplay/internal/domain"
	"github.com/metastable-lab/roleplay/internal/persistence/store"
	"github.com/metastable-lab/roleplay/internal/rlog"
	"github.com/metastable-lab/roleplay/internal/rpcerr"
)

// UpsertByName reconciles the stored row named def.Name with the in-code
// definition def. Missing row: insert at version 1. Any drift in
// system_prompt, model, temperature, max_tokens, or functions: bump version
// and overwrite. The resolved row is returned either way.
func UpsertByName(ctx context.Context, tx store.Tx, def domain.SystemConfig) (domain.SystemConfig, error) {
	existing, err := tx.GetSystemConfigByName(ctx, def.Name)
	if errors.Is(err, store.ErrNotFound) {
		def.ID = uuid.NewString()
		if def.Version == 0 {
			def.Version = 1
		}
		def.UpdatedAt = time.Now().UTC()
		if err := tx.InsertSystemConfig(ctx, def); err != nil {
			return domain.SystemConfig{}, fmt.Errorf("insert %q: %w", def.Name, err)
		}
		return def, nil
	}
	if err != nil {
		return domain.SystemConfig{}, fmt.Errorf("load %q: %w", def.Name, err)
	}
	if !existing.Diff(def) {
		return existing, nil
	}
	existing.Version++
	existing.SystemPrompt = def.SystemPrompt
	existing.Model = def.Model
	existing.Temperature = def.Temperature
	existing.MaxTokens = def.MaxTokens
	existing.BaseURL = def.BaseURL
	existing.Functions = def.Functions
	existing.UpdatedAt = time.Now().UTC()
	if err := tx.UpdateSystemConfig(ctx, existing); err != nil {
		return domain.SystemConfig{}, fmt.Errorf("update %q: %w", def.Name, err)
	}
	rlog.LoggerWithTrace(ctx).Info().
		Str("component", "systemconfig").
		Str("name", existing.Name).
		Int("version", existing.Version).
		Msg("system config drifted, version bumped")
	return existing, nil
}

// PreloadAll reconciles every definition in one transaction and returns the
// resolved configs keyed by name. A failure here is fatal at boot.
func PreloadAll(ctx context.Context, st store.Store, defs []domain.SystemConfig) (map[string]domain.SystemConfig, error) {
	out := make(map[string]domain.SystemConfig, len(defs))
	err := st.WithTx(ctx, func(tx store.Tx) error {
		for _, def := range defs {
			resolved, err := UpsertByName(ctx, tx, def)
			if err != nil {
				return rpcerr.New(rpcerr.SchemaDrift, "systemconfig.PreloadAll", err)
			}
			out[resolved.Name] = resolved
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// List returns all stored configs.
func List(ctx context.Context, st store.Store) ([]domain.SystemConfig, error) {
	var out []domain.SystemConfig
	err := st.WithTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListSystemConfigs(ctx)
		return err
	})
	return out, err
}

// Delete removes a config by id.
func Delete(ctx context.Context, st store.Store, id string) error {
	return st.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.DeleteSystemConfig(ctx, id); errors.Is(err, store.ErrNotFound) {
			return rpcerr.New(rpcerr.NotFound, "systemconfig.Delete", err)
		} else if err != nil {
			return err
		}
		return nil
	})
}

// Update overwrites a stored config wholesale (admin payload path); version
// management is the caller's concern here, unlike UpsertByName.
func Update(ctx context.Context, st store.Store, payload domain.SystemConfig) error {
	return st.WithTx(ctx, func(tx store.Tx) error {
		payload.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateSystemConfig(ctx, payload); errors.Is(err, store.ErrNotFound) {
			return rpcerr.New(rpcerr.NotFound, "systemconfig.Update", err)
		} else if err != nil {
			return err
		}
		return nil
	})
}
