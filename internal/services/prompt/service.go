package prompt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/savvyfin/advisor/internal/services/advisor/models"
)

// Conversation intents recognized from the latest user message
const (
	IntentInvestment = "investment_advice"
	IntentBudget     = "budget_planning"
	IntentCredit     = "credit_management"
	IntentInsurance  = "insurance_planning"
	IntentTax        = "tax_planning"
	IntentGeneral    = "general_financial_advice"
)

var intentKeywords = []struct {
	intent   string
	keywords []string
}{
	{IntentInvestment, []string{"invest", "investment", "stocks", "portfolio"}},
	{IntentBudget, []string{"budget", "spending", "expense", "save"}},
	{IntentCredit, []string{"credit", "loan", "debt", "score"}},
	{IntentInsurance, []string{"insurance", "protect", "coverage"}},
	{IntentTax, []string{"tax", "filing", "deduction"}},
}

var focusInstructions = map[string]string{
	IntentInvestment: "Focus on investment strategies, portfolio analysis, and market insights.",
	IntentBudget:     "Emphasize budgeting techniques, expense tracking, and saving strategies.",
	IntentCredit:     "Provide guidance on credit scores, debt management, and loan options.",
	IntentInsurance:  "Discuss insurance needs, coverage options, and risk management.",
	IntentTax:        "Offer tax optimization strategies and filing guidance.",
	IntentGeneral:    "Provide comprehensive financial guidance tailored to the user's situation.",
}

// DetectIntent classifies a user message by keyword
func DetectIntent(message string) string {
	lower := strings.ToLower(message)
	for _, group := range intentKeywords {
		for _, keyword := range group.keywords {
			if strings.Contains(lower, keyword) {
				return group.intent
			}
		}
	}
	return IntentGeneral
}

// FocusInstruction returns the steering line for a detected intent
func FocusInstruction(intent string) string {
	if instruction, ok := focusInstructions[intent]; ok {
		return instruction
	}
	return focusInstructions[IntentGeneral]
}

// DisplayName resolves the name the advisor addresses the user by. Falls back
// to a title-cased email local part when no name is on file.
func DisplayName(fullName, email string) string {
	if fullName != "" {
		return fullName
	}

	if email != "" {
		local := email
		if at := strings.Index(email, "@"); at >= 0 {
			local = email[:at]
		}
		local = strings.ReplaceAll(local, ".", " ")
		local = strings.ReplaceAll(local, "_", " ")

		words := strings.Fields(local)
		for i, word := range words {
			words[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
		}
		return strings.Join(words, " ")
	}

	return ""
}

// ProfileContext renders the USER PROFILE block. Optional fields are omitted
// when unset.
func ProfileContext(profile models.UserProfile) string {
	name := DisplayName(profile.DisplayName, profile.Email)
	if name == "" {
		name = "User"
	}

	var b strings.Builder
	b.WriteString("USER PROFILE:\n")
	b.WriteString(fmt.Sprintf("- Name: %s\n", name))
	b.WriteString(fmt.Sprintf("- Email: %s", profile.Email))

	if profile.MonthlyIncome > 0 {
		b.WriteString(fmt.Sprintf("\n- Monthly Income: %s", strconv.FormatFloat(profile.MonthlyIncome, 'f', -1, 64)))
	}
	if profile.EmploymentStatus != "" {
		b.WriteString(fmt.Sprintf("\n- Employment Status: %s", profile.EmploymentStatus))
	}
	if profile.FinancialGoal != "" {
		b.WriteString(fmt.Sprintf("\n- Primary Financial Goal: %s", profile.FinancialGoal))
	}
	if profile.RiskTolerance != "" {
		b.WriteString(fmt.Sprintf("\n- Risk Tolerance: %s", profile.RiskTolerance))
	}

	return b.String()
}

const basicTemplate = `You are a helpful AI financial advisor for %s. Use their name naturally in conversation.

%s

INSTRUCTIONS:
1. Address the user by name (%s) naturally in conversation
2. Provide personalized financial advice based on their profile information
3. Be supportive, understanding, and professional
4. Ask clarifying questions when you need more information
5. Tailor your advice to their financial goals and risk tolerance`

const personaTemplate = `You are a deeply personalized AI financial advisor responding to %s. Use their name naturally in conversation.

%s

PERSONA: %s

DESCRIPTION: %s

KEY TRAITS: %s

LIFESTYLE: %s

FINANCIAL TENDENCIES: %s
%s
%s

IMPORTANT INSTRUCTIONS:
1. Address the user by name (%s) naturally in conversation
2. Respond as if you truly understand this person's values, lifestyle, and cultural preferences
3. Reference their specific traits and interests when relevant to financial advice
4. Use language and examples that resonate with their cultural context
5. Make recommendations that align with their lifestyle and values
6. Acknowledge their unique perspective on money and spending
7. Be supportive and understanding of their financial journey

When providing advice, consider how their cultural interests and lifestyle choices influence their financial priorities. Make connections between their spending patterns and their identity when appropriate.`

func culturalContext(profile map[string]string) string {
	if len(profile) == 0 {
		return ""
	}

	lookup := func(key string) string {
		if value := profile[key]; value != "" {
			return value
		}
		return "Not specified"
	}

	return fmt.Sprintf(`
Cultural Context:
- Music Taste: %s
- Entertainment Style: %s
- Fashion Sensibility: %s
- Dining Philosophy: %s`,
		lookup("music_taste"),
		lookup("entertainment_style"),
		lookup("fashion_sensibility"),
		lookup("dining_philosophy"))
}

// BuildSystemPrompt assembles the system message for a conversation turn.
// The persona template takes over when a persona is attached; the financial
// summary and intent focus are appended to either form when present.
func BuildSystemPrompt(profile models.UserProfile, persona *models.PersonaSnapshot, financialSummary, intent string) string {
	name := DisplayName(profile.DisplayName, profile.Email)
	if name == "" {
		name = "the user"
	}
	profileContext := ProfileContext(profile)

	var systemPrompt string
	if persona != nil {
		adviceStyle := ""
		if persona.AdviceStyle != "" {
			adviceStyle = fmt.Sprintf("\nAdvice Style: %s", persona.AdviceStyle)
		}

		systemPrompt = fmt.Sprintf(personaTemplate,
			name,
			profileContext,
			persona.Name,
			persona.Description,
			strings.Join(persona.KeyTraits, ", "),
			persona.LifestyleSummary,
			persona.FinancialTendencies,
			culturalContext(persona.CulturalProfile),
			adviceStyle,
			name)
	} else {
		systemPrompt = fmt.Sprintf(basicTemplate, name, profileContext, name)
	}

	parts := []string{systemPrompt}
	if financialSummary != "" {
		parts = append(parts, fmt.Sprintf("REAL-TIME FINANCIAL DATA:\n%s", financialSummary))
		parts = append(parts, "Use this real-time financial data to provide specific, personalized advice based on the user's actual financial situation.")
	}
	if intent != "" {
		parts = append(parts, fmt.Sprintf("FOCUS AREA: %s", FocusInstruction(intent)))
	}

	return strings.Join(parts, "\n\n")
}

// BuildMessages produces the full message list for the model: system prompt,
// prior history oldest first, then the new user message.
func BuildMessages(cc *models.ConversationContext, userMessage string) []models.Message {
	intent := DetectIntent(userMessage)
	systemPrompt := BuildSystemPrompt(cc.Profile, cc.Persona, cc.FinancialSummary, intent)

	messages := make([]models.Message, 0, len(cc.History)+2)
	messages = append(messages, models.Message{Role: models.RoleSystem, Content: systemPrompt})
	messages = append(messages, cc.History...)
	messages = append(messages, models.Message{Role: models.RoleUser, Content: userMessage})

	return messages
}
