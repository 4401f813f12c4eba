package categorize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"google.golang.org/genai"

	"github.com/maltewinckler/kontobuch/internal/domain"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.0-flash"

// GeminiProvider implements Provider on top of the Gemini API. Credentials
// come from the environment (GEMINI_API_KEY), the same way the genai client
// resolves them elsewhere.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates the provider. An empty model selects
// DefaultModelName.
func NewGeminiProvider(ctx context.Context, model string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiProvider: create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiProvider{client: client, model: model}, nil
}

// Resolve asks the model to pick one of the candidate accounts for the
// transaction. It expects a STRICT JSON object (or null) back and cleans up
// markdown fences if the model ignores the instructions.
func (p *GeminiProvider) Resolve(ctx context.Context, tx domain.BankTransaction, options []Option) (*Suggestion, error) {
	prompt, err := buildResolutionPrompt(tx, options)
	if err != nil {
		return nil, fmt.Errorf("GeminiProvider.Resolve: building prompt: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
			},
		},
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("GeminiProvider.Resolve: generate content: %w", err)
	}
	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("GeminiProvider.Resolve: empty response from model")
	}

	clean := cleanModelJSON(rawText)
	if clean == "null" {
		return nil, nil
	}

	var parsed struct {
		AccountID  string  `json:"account_id"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return nil, fmt.Errorf("GeminiProvider.Resolve: unmarshal JSON: %w\nraw response: %s", err, rawText)
	}
	if parsed.AccountID == "" {
		return nil, nil
	}
	accountID, err := uuid.Parse(parsed.AccountID)
	if err != nil {
		return nil, fmt.Errorf("GeminiProvider.Resolve: model returned invalid account id %q: %w", parsed.AccountID, err)
	}
	return &Suggestion{
		AccountID:  accountID,
		Confidence: parsed.Confidence,
		Reasoning:  parsed.Reasoning,
	}, nil
}

// HealthCheck reports whether the model answers at all.
func (p *GeminiProvider) HealthCheck(ctx context.Context) bool {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: "Reply with the single word OK."}},
		},
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, nil)
	if err != nil {
		return false
	}
	return resp.Text() != ""
}

func buildResolutionPrompt(tx domain.BankTransaction, options []Option) (string, error) {
	optionsJSON, err := json.MarshalIndent(options, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You are a bookkeeping assistant categorizing one bank transaction.\n\n")
	b.WriteString("Transaction:\n")
	b.WriteString("- booking_date: " + tx.BookingDate.Format("2006-01-02") + "\n")
	b.WriteString("- amount: " + tx.Amount.String() + " " + tx.Currency + " (negative = money out)\n")
	b.WriteString("- purpose: " + tx.Purpose + "\n")
	b.WriteString("- counterparty: " + tx.ApplicantName + "\n\n")
	b.WriteString("Candidate category accounts (JSON):\n")
	b.Write(optionsJSON)
	b.WriteString("\n\nTask:\n")
	b.WriteString("- Pick the single best matching account for this transaction.\n")
	b.WriteString("- Output STRICT JSON only (no comments, no extra text).\n")
	b.WriteString("- Output exactly one JSON object with these fields:\n")
	b.WriteString("  - \"account_id\": string, one of the candidate account_id values\n")
	b.WriteString("  - \"confidence\": number between 0 and 1\n")
	b.WriteString("  - \"reasoning\": short string\n")
	b.WriteString("- If no candidate fits, output the literal null.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	b.WriteString("Do NOT use ```json or any Markdown.\n")
	return b.String(), nil
}

// cleanModelJSON strips markdown fences and surrounding junk so the payload
// can be unmarshalled even when the model ignores the formatting rules.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if s == "null" || s == "" {
		return "null"
	}

	// Keep only from the first '{' to the last '}' if junk surrounds the
	// object.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
