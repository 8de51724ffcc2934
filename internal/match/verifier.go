package match

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"erasure/internal/vault"
)

// Evidence is the redacted view of a profile sent to an external verifier.
// It deliberately carries no date of birth, addresses beyond city/state,
// phone numbers, emails, or relative names.
type Evidence struct {
	Candidate     Candidate   `json:"candidate"`
	FullName      string      `json:"full_name"`
	Aliases       []string    `json:"aliases,omitempty"`
	Locations     []CityState `json:"locations,omitempty"`
	HasDOB        bool        `json:"has_dob"`
	RelativeCount int         `json:"relative_count"`
}

type CityState struct {
	City  string `json:"city"`
	State string `json:"state"`
}

// BuildEvidence redacts a profile down to what a verifier may see.
func BuildEvidence(c Candidate, p vault.ProfileData) Evidence {
	ev := Evidence{
		Candidate:     c,
		FullName:      p.FullName,
		Aliases:       p.Aliases,
		HasDOB:        p.DateOfBirth != "",
		RelativeCount: len(p.Relatives),
	}
	for _, a := range p.Addresses {
		ev.Locations = append(ev.Locations, CityState{City: a.City, State: a.State})
	}
	return ev
}

// Judgement is a verifier's call on an ambiguous candidate.
type Judgement struct {
	Match      bool    `json:"match"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// Verifier resolves candidates whose heuristic score falls in the ambiguous
// band.
type Verifier interface {
	Verify(ctx context.Context, ev Evidence) (Judgement, error)
}

const verifierSystemPrompt = `You decide whether a data-broker listing refers to a specific person.
You receive the listing and a redacted summary of the person: name, aliases,
city/state history, whether a birth date is on file, and a relative count.
Respond with JSON only: {"match": bool, "confidence": number 0..1, "reason": string}.
Be conservative: when the evidence is thin, answer match=false.`

// OpenAIVerifier asks a chat model to adjudicate ambiguous candidates.
type OpenAIVerifier struct {
	client *openai.Client
	model  string
}

// NewOpenAIVerifier builds a verifier against the OpenAI API or any
// compatible endpoint via baseURL.
func NewOpenAIVerifier(apiKey, model, baseURL string) *OpenAIVerifier {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIVerifier{client: openai.NewClientWithConfig(cfg), model: model}
}

func (v *OpenAIVerifier) Verify(ctx context.Context, ev Evidence) (Judgement, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Judgement{}, err
	}
	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       v.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: verifierSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: string(payload)},
		},
	})
	if err != nil {
		return Judgement{}, fmt.Errorf("verifier request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Judgement{}, fmt.Errorf("verifier returned no choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	var j Judgement
	if err := json.Unmarshal([]byte(content), &j); err != nil {
		return Judgement{}, fmt.Errorf("verifier returned non-JSON judgement: %w", err)
	}
	if j.Confidence < 0 || j.Confidence > 1 {
		return Judgement{}, fmt.Errorf("verifier confidence %v out of range", j.Confidence)
	}
	return j, nil
}

// StaticVerifier returns a fixed judgement; used when no LLM is configured
// and in tests. The zero value denies everything, which keeps ambiguous
// candidates out of automated removal.
type StaticVerifier struct {
	Judgement Judgement
	Err       error
	// Seen records the evidence passed in, for assertions.
	Seen []Evidence
}

func (s *StaticVerifier) Verify(_ context.Context, ev Evidence) (Judgement, error) {
	s.Seen = append(s.Seen, ev)
	if s.Err != nil {
		return Judgement{}, s.Err
	}
	return s.Judgement, nil
}
