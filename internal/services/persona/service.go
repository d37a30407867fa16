package persona

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	openailib "github.com/sashabaranov/go-openai"

	"github.com/savvyfin/advisor/internal/config"
	"github.com/savvyfin/advisor/internal/infrastructure/openai"
	"github.com/savvyfin/advisor/internal/infrastructure/qloo"
	"github.com/savvyfin/advisor/internal/services/advisor/models"
	"github.com/savvyfin/advisor/internal/services/cache"
	"github.com/savvyfin/advisor/internal/store"
)

var (
	// ErrNoSignals is returned when a user has no transaction history to
	// mine persona entities from
	ErrNoSignals = errors.New("persona: not enough transaction history")
	// ErrGeneratorUnavailable is returned when the language model client is
	// not configured
	ErrGeneratorUnavailable = errors.New("persona: narrative generator unavailable")
)

const (
	transactionSample = 100
	maxEntities       = 20
)

type Service struct {
	store         *store.Store
	qlooService   *qloo.Service
	openaiService *openai.Service
	cacheService  *cache.Service
}

func NewService(st *store.Store, qlooService *qloo.Service, openaiService *openai.Service, cacheService *cache.Service) *Service {
	return &Service{
		store:         st,
		qlooService:   qlooService,
		openaiService: openaiService,
		cacheService:  cacheService,
	}
}

// ExtractEntities mines brand-like tokens from transaction descriptions.
// Fully capitalized words longer than two letters are treated as brand names
// and normalized to title case, deduplicated in first-seen order.
func ExtractEntities(descriptions []string) []string {
	seen := make(map[string]struct{})
	entities := make([]string, 0)

	for _, description := range descriptions {
		for _, word := range strings.Fields(description) {
			if !isBrandToken(word) {
				continue
			}

			normalized := capitalize(strings.ToLower(word))
			if _, ok := seen[normalized]; ok {
				continue
			}
			seen[normalized] = struct{}{}
			entities = append(entities, normalized)

			if len(entities) == maxEntities {
				return entities
			}
		}
	}

	return entities
}

func isBrandToken(word string) bool {
	runes := []rune(word)
	if len(runes) <= 2 {
		return false
	}
	for _, r := range runes {
		if !unicode.IsUpper(r) || !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func capitalize(word string) string {
	if word == "" {
		return word
	}
	runes := []rune(word)
	return string(unicode.ToUpper(runes[0])) + string(runes[1:])
}

const narrativePrompt = `You are "Persona," a sophisticated AI financial wellness expert who understands lifestyle and culture.
Your task is to analyze the following user taste profile data, which is derived from their spending habits and enriched by a cultural taste AI.
Based on this data, you will create a warm, insightful, and empowering "Persona" profile for the user.

Follow these instructions precisely:
1. Analyze the Data: Review the JSON data below to understand the user's core tastes across different domains like music, film, fashion, and dining.
2. Create a Persona Name: Synthesize the findings into a catchy, evocative persona name. Examples: "The Urban Explorer," "The Mindful Creative," "The Classic Connoisseur," "The Trendsetting Futurist." The name should be enclosed in double quotes.
3. Write the Description: Write a 2-paragraph description of this persona. The tone should be positive, insightful, and slightly aspirational. It should feel like a personalized reading that makes the user feel understood.
4. Format the Output: Your final output MUST be a JSON object with two keys: "persona_name" and "persona_description". Do not add any other text or explanation outside of this JSON object.

Here is the user's taste profile data:
` + "```json\n%s\n```" + `

Now, generate the JSON output.`

type narrative struct {
	PersonaName        string `json:"persona_name"`
	PersonaDescription string `json:"persona_description"`
}

// Generate runs the full persona pipeline for a user: transaction entity
// extraction, taste correlation, narrative generation, then upsert. Fields
// the narrative step does not produce survive from any existing profile.
func (s *Service) Generate(ctx context.Context, userID uuid.UUID) (*models.PersonaSnapshot, error) {
	descriptions, err := s.store.RecentTransactionDescriptions(ctx, userID, transactionSample)
	if err != nil {
		return nil, err
	}

	entities := ExtractEntities(descriptions)
	if len(entities) == 0 {
		log.Warn().Str("user_id", userID.String()).Msg("No transaction entities found for persona")
		return nil, ErrNoSignals
	}
	log.Info().
		Str("user_id", userID.String()).
		Int("entities", len(entities)).
		Msg("Extracted transaction entities")

	taste := s.tasteProfile(ctx, entities)

	generated, err := s.generateNarrative(ctx, taste)
	if err != nil {
		return nil, err
	}

	tasteJSON, err := json.Marshal(taste)
	if err != nil {
		return nil, fmt.Errorf("failed to encode taste data: %w", err)
	}

	row := &store.PersonaProfile{
		UserID:             userID,
		PersonaName:        generated.PersonaName,
		PersonaDescription: generated.PersonaDescription,
		SourceTasteData:    string(tasteJSON),
	}

	// Regeneration keeps the trait fields a previous profile carried
	if existing, err := s.store.GetPersonaByUserID(ctx, userID); err == nil {
		row.KeyTraits = existing.KeyTraits
		row.LifestyleSummary = existing.LifestyleSummary
		row.FinancialTendencies = existing.FinancialTendencies
		row.CulturalProfile = existing.CulturalProfile
		row.AdviceStyle = existing.AdviceStyle
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	stored, err := s.store.UpsertPersona(ctx, row)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("persona_name", stored.PersonaName).
		Msg("Persona profile saved")

	snapshot, err := SnapshotFromRow(stored)
	if err != nil {
		return nil, err
	}
	s.cacheSnapshot(ctx, userID, snapshot)

	return snapshot, nil
}

// Get returns the user's stored persona, preferring the cached snapshot
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*models.PersonaSnapshot, error) {
	if cached, found, err := s.cacheService.Get(ctx, personaCacheKey(userID)); err == nil && found {
		var snapshot models.PersonaSnapshot
		if err := json.Unmarshal([]byte(cached), &snapshot); err == nil {
			return &snapshot, nil
		}
	}

	row, err := s.store.GetPersonaByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	snapshot, err := SnapshotFromRow(row)
	if err != nil {
		return nil, err
	}
	s.cacheSnapshot(ctx, userID, snapshot)

	return snapshot, nil
}

func personaCacheKey(userID uuid.UUID) string {
	return "persona:" + userID.String()
}

func (s *Service) cacheSnapshot(ctx context.Context, userID uuid.UUID, snapshot *models.PersonaSnapshot) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if err := s.cacheService.Set(ctx, personaCacheKey(userID), string(data), config.GetPersonaCacheTTL()); err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to cache persona snapshot")
	}
}

func (s *Service) tasteProfile(ctx context.Context, entities []string) map[string]interface{} {
	if s.qlooService != nil {
		taste, err := s.qlooService.TasteProfile(ctx, entities)
		if err == nil {
			return taste
		}
		log.Warn().Err(err).Msg("Qloo taste correlation failed, using mock data")
	}
	return qloo.MockTasteProfile(entities)
}

func (s *Service) generateNarrative(ctx context.Context, taste map[string]interface{}) (*narrative, error) {
	if s.openaiService == nil {
		return nil, ErrGeneratorUnavailable
	}

	tasteJSON, err := json.MarshalIndent(taste, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode taste data: %w", err)
	}

	resp, err := s.openaiService.CreateCompletion(ctx, openailib.ChatCompletionRequest{
		Model: config.GetChatModel(),
		Messages: []openailib.ChatCompletionMessage{
			{Role: openailib.ChatMessageRoleUser, Content: fmt.Sprintf(narrativePrompt, tasteJSON)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("narrative generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("narrative generation returned no choices")
	}

	return parseNarrative(resp.Choices[0].Message.Content)
}

// parseNarrative decodes the model's JSON output, tolerating code fences
func parseNarrative(text string) (*narrative, error) {
	cleaned := strings.ReplaceAll(text, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	var n narrative
	if err := json.Unmarshal([]byte(cleaned), &n); err != nil {
		return nil, fmt.Errorf("narrative output is not valid JSON: %w", err)
	}
	if n.PersonaName == "" || n.PersonaDescription == "" {
		return nil, errors.New("narrative output missing persona_name or persona_description")
	}

	return &n, nil
}

// SnapshotFromRow decodes a stored persona row into its in-memory form
func SnapshotFromRow(row *store.PersonaProfile) (*models.PersonaSnapshot, error) {
	snapshot := &models.PersonaSnapshot{
		Name:                row.PersonaName,
		Description:         row.PersonaDescription,
		LifestyleSummary:    row.LifestyleSummary,
		FinancialTendencies: row.FinancialTendencies,
		AdviceStyle:         row.AdviceStyle,
	}

	if row.KeyTraits != "" {
		if err := json.Unmarshal([]byte(row.KeyTraits), &snapshot.KeyTraits); err != nil {
			return nil, fmt.Errorf("invalid key traits for persona %s: %w", row.ID, err)
		}
	}
	if row.CulturalProfile != "" {
		if err := json.Unmarshal([]byte(row.CulturalProfile), &snapshot.CulturalProfile); err != nil {
			return nil, fmt.Errorf("invalid cultural profile for persona %s: %w", row.ID, err)
		}
	}

	return snapshot, nil
}
