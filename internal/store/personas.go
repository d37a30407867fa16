package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PersonaProfile is a user's generated advisor persona row. The JSON-valued
// columns (key traits, cultural profile, source taste data) are stored as
// text and decoded by callers that need structure.
type PersonaProfile struct {
	ID                  uuid.UUID
	UserID              uuid.UUID
	PersonaName         string
	PersonaDescription  string
	KeyTraits           string
	LifestyleSummary    string
	FinancialTendencies string
	CulturalProfile     string
	AdviceStyle         string
	SourceTasteData     string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

const personaColumns = `id, user_id, persona_name, persona_description, key_traits,
	lifestyle_summary, financial_tendencies, cultural_profile, advice_style,
	source_taste_data, created_at, updated_at`

// UpsertPersona inserts a persona for the user or replaces the existing one
func (s *Store) UpsertPersona(ctx context.Context, p *PersonaProfile) (*PersonaProfile, error) {
	now := time.Now().UTC()
	stored := *p
	stored.UpdatedAt = now

	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO persona_profiles (id, user_id, persona_name, persona_description, key_traits,
			lifestyle_summary, financial_tendencies, cultural_profile, advice_style,
			source_taste_data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			persona_name = excluded.persona_name,
			persona_description = excluded.persona_description,
			key_traits = excluded.key_traits,
			lifestyle_summary = excluded.lifestyle_summary,
			financial_tendencies = excluded.financial_tendencies,
			cultural_profile = excluded.cultural_profile,
			advice_style = excluded.advice_style,
			source_taste_data = excluded.source_taste_data,
			updated_at = excluded.updated_at`,
		stored.ID.String(), stored.UserID.String(), stored.PersonaName, stored.PersonaDescription,
		stored.KeyTraits, stored.LifestyleSummary, stored.FinancialTendencies,
		stored.CulturalProfile, stored.AdviceStyle, stored.SourceTasteData,
		stored.CreatedAt, stored.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert persona: %w", err)
	}

	// Re-read so callers see the surviving row's id and created_at when the
	// upsert hit an existing profile.
	return s.GetPersonaByUserID(ctx, stored.UserID)
}

// GetPersonaByUserID returns the user's persona or ErrNotFound
func (s *Store) GetPersonaByUserID(ctx context.Context, userID uuid.UUID) (*PersonaProfile, error) {
	return getPersonaByUserID(ctx, s.db, userID)
}

func getPersonaByUserID(ctx context.Context, q querier, userID uuid.UUID) (*PersonaProfile, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+personaColumns+` FROM persona_profiles WHERE user_id = ?`,
		userID.String())

	var p PersonaProfile
	var id, uid string
	err := row.Scan(&id, &uid, &p.PersonaName, &p.PersonaDescription, &p.KeyTraits,
		&p.LifestyleSummary, &p.FinancialTendencies, &p.CulturalProfile, &p.AdviceStyle,
		&p.SourceTasteData, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load persona: %w", err)
	}

	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid persona id %q: %w", id, err)
	}
	if p.UserID, err = uuid.Parse(uid); err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", uid, err)
	}

	return &p, nil
}

// DeletePersona removes the user's persona if present
func (s *Store) DeletePersona(ctx context.Context, userID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM persona_profiles WHERE user_id = ?`, userID.String())
	if err != nil {
		return fmt.Errorf("failed to delete persona: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete persona: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}
