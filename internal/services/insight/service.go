package insight

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/savvyfin/advisor/internal/infrastructure/finagg"
	"github.com/savvyfin/advisor/internal/services/cache"
	"github.com/savvyfin/advisor/internal/store"
)

var (
	// ErrNotConfigured is returned when no financial aggregator is wired up
	ErrNotConfigured = errors.New("insight: financial aggregator not configured")
	// ErrNoPhoneNumber is returned when the user has no phone number linked
	ErrNoPhoneNumber = errors.New("insight: no phone number on profile")
)

const summaryTTL = 15 * time.Minute

type Service struct {
	store         *store.Store
	finaggService *finagg.Service
	cacheService  *cache.Service
}

type NetWorthAnalysis struct {
	Total       string                  `json:"total"`
	Currency    string                  `json:"currency"`
	Assets      []finagg.AttributeValue `json:"assets"`
	Liabilities []finagg.AttributeValue `json:"liabilities"`
}

type CreditHealth struct {
	Score  string `json:"score"`
	Rating string `json:"rating"`
}

type Recommendation struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type Insights struct {
	NetWorthAnalysis NetWorthAnalysis `json:"net_worth_analysis"`
	CreditHealth     CreditHealth     `json:"credit_health"`
	Recommendations  []Recommendation `json:"recommendations"`
}

// Status reports whether aggregator-backed insights are available for a user
type Status struct {
	Enabled           bool     `json:"enabled"`
	Reason            string   `json:"reason,omitempty"`
	Message           string   `json:"message"`
	PhoneNumber       string   `json:"phone_number,omitempty"`
	SetupRequired     bool     `json:"setup_required,omitempty"`
	FeaturesAvailable []string `json:"features_available,omitempty"`
}

func NewService(st *store.Store, finaggService *finagg.Service, cacheService *cache.Service) *Service {
	return &Service{
		store:         st,
		finaggService: finaggService,
		cacheService:  cacheService,
	}
}

func (s *Service) phoneNumber(ctx context.Context, userID uuid.UUID) (string, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.PhoneNumber == "" {
		return "", ErrNoPhoneNumber
	}
	return user.PhoneNumber, nil
}

// Summary returns the prompt-ready financial context for a user
func (s *Service) Summary(ctx context.Context, userID uuid.UUID) (string, error) {
	if s.finaggService == nil {
		return "", ErrNotConfigured
	}

	phone, err := s.phoneNumber(ctx, userID)
	if err != nil {
		return "", err
	}

	cacheKey := "finsummary:" + userID.String()
	if cached, found, err := s.cacheService.Get(ctx, cacheKey); err == nil && found {
		return cached, nil
	}

	summary, err := s.finaggService.FinancialSummaryContext(ctx, phone)
	if err != nil {
		return "", err
	}

	if err := s.cacheService.Set(ctx, cacheKey, summary, summaryTTL); err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to cache financial summary")
	}

	return summary, nil
}

// PromptContext is the best-effort form of Summary used while assembling
// chat prompts: any failure degrades to an empty string so the conversation
// proceeds without financial data.
func (s *Service) PromptContext(ctx context.Context, userID uuid.UUID) string {
	summary, err := s.Summary(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrNotConfigured) && !errors.Is(err, ErrNoPhoneNumber) {
			log.Warn().Err(err).Str("user_id", userID.String()).Msg("Unable to retrieve financial context")
		}
		return ""
	}
	return summary
}

// Insights builds the structured analysis served by the insights endpoint
func (s *Service) Insights(ctx context.Context, userID uuid.UUID) (*Insights, error) {
	if s.finaggService == nil {
		return nil, ErrNotConfigured
	}

	phone, err := s.phoneNumber(ctx, userID)
	if err != nil {
		return nil, err
	}

	profile, err := s.finaggService.FetchProfile(ctx, phone)
	if err != nil {
		return nil, err
	}

	insights := &Insights{
		Recommendations: make([]Recommendation, 0),
	}

	if nw := profile.NetWorth; nw != nil {
		insights.NetWorthAnalysis = NetWorthAnalysis{
			Total:       nw.TotalNetWorth.Units,
			Currency:    nw.TotalNetWorth.CurrencyCode,
			Assets:      nw.AssetValues,
			Liabilities: nw.LiabilityValues,
		}
	}

	if cr := profile.CreditReport; cr != nil {
		rating := "good"
		if score, err := strconv.Atoi(cr.CreditScore.Score); err == nil && score > 750 {
			rating = "excellent"
		}
		insights.CreditHealth = CreditHealth{
			Score:  cr.CreditScore.Score,
			Rating: rating,
		}
	}

	if total, err := strconv.Atoi(insights.NetWorthAnalysis.Total); err == nil && total > 0 {
		insights.Recommendations = append(insights.Recommendations, Recommendation{
			Type:        "investment",
			Title:       "Diversification Opportunity",
			Description: "Consider diversifying your investment portfolio based on your current net worth.",
		})
	}

	if score, err := strconv.Atoi(insights.CreditHealth.Score); err == nil && score < 700 {
		insights.Recommendations = append(insights.Recommendations, Recommendation{
			Type:        "credit",
			Title:       "Credit Score Improvement",
			Description: fmt.Sprintf("Your credit score of %d can be improved with strategic credit management.", score),
		})
	}

	return insights, nil
}

// Setup links a phone number to the user's profile and verifies it against
// the aggregator. The boolean reports whether authentication succeeded; the
// phone number is saved either way.
func (s *Service) Setup(ctx context.Context, userID uuid.UUID, phone string) (bool, error) {
	if s.finaggService == nil {
		return false, ErrNotConfigured
	}

	if _, err := s.store.UpdateUserProfile(ctx, userID, store.ProfileUpdate{PhoneNumber: &phone}); err != nil {
		return false, err
	}

	if err := s.finaggService.Authenticate(ctx, phone); err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("Aggregator authentication failed during setup")
		return false, nil
	}

	return true, nil
}

// Status probes aggregator availability for the user
func (s *Service) Status(ctx context.Context, userID uuid.UUID) (*Status, error) {
	if s.finaggService == nil {
		return &Status{
			Enabled: false,
			Reason:  "not_configured",
			Message: "Financial aggregator integration is not configured",
		}, nil
	}

	phone, err := s.phoneNumber(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNoPhoneNumber) {
			return &Status{
				Enabled:       false,
				Reason:        "no_phone_number",
				Message:       "Phone number required for financial data integration",
				SetupRequired: true,
			}, nil
		}
		return nil, err
	}

	if err := s.finaggService.Authenticate(ctx, phone); err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("Aggregator authentication failed")
		return &Status{
			Enabled:     false,
			Reason:      "authentication_failed",
			Message:     "Unable to authenticate with the financial aggregator",
			PhoneNumber: phone,
		}, nil
	}

	return &Status{
		Enabled:     true,
		PhoneNumber: phone,
		Message:     "Financial data integration active and working",
		FeaturesAvailable: []string{
			"Real-time net worth data",
			"Credit score monitoring",
			"Investment portfolio analysis",
			"EPF account details",
			"Bank transaction analysis",
		},
	}, nil
}
