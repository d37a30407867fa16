package models

import (
	"github.com/google/uuid"
)

// UserProfile is the slice of account data that shapes advisory responses
type UserProfile struct {
	DisplayName      string
	Email            string
	MonthlyIncome    float64
	EmploymentStatus string
	FinancialGoal    string
	RiskTolerance    string
}

// PersonaSnapshot is a generated spending persona attached to a user
type PersonaSnapshot struct {
	Name                string            `json:"persona_name"`
	Description         string            `json:"persona_description"`
	KeyTraits           []string          `json:"key_traits"`
	LifestyleSummary    string            `json:"lifestyle_summary"`
	FinancialTendencies string            `json:"financial_tendencies"`
	CulturalProfile     map[string]string `json:"cultural_profile"`
	AdviceStyle         string            `json:"advice_style"`
}

// ConversationContext is an immutable snapshot of everything response
// generation needs. It is assembled in a single pass against the store and
// carries no live database state, so it can outlive the connection that
// produced it.
type ConversationContext struct {
	ConversationID   uuid.UUID
	UserID           uuid.UUID
	Profile          UserProfile
	History          []Message // oldest first, capped at the memory limit
	Persona          *PersonaSnapshot
	FinancialSummary string
}
