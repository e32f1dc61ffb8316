// Package gemini implements translation.Translator with the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash"

// generator is the subset of genai.Models used here.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Translator translates one utterance per request.
type Translator struct {
	models generator
	model  string
}

// New creates a Gemini client for the given API key.
func New(ctx context.Context, apiKey, model string) (*Translator, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newTranslator(client.Models, model), nil
}

func newTranslator(g generator, model string) *Translator {
	if model == "" {
		model = DefaultModel
	}
	return &Translator{models: g, model: model}
}

// Translate returns text rendered in targetLang.
func (t *Translator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt(sourceLang, targetLang), genai.RoleUser),
		Temperature:       genai.Ptr[float32](0),
	}
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	resp, err := t.models.GenerateContent(ctx, t.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini translate: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini translate: no candidates")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", errors.New("gemini translate: empty response")
	}
	return out, nil
}

func systemPrompt(sourceLang, targetLang string) string {
	from := sourceLang
	if from == "" {
		from = "the detected language"
	}
	return fmt.Sprintf(
		"You translate interview transcripts from %s to %s. "+
			"Reply with the translation only, without quotes, notes or explanations. "+
			"Keep names, numbers and dates unchanged.",
		from, targetLang)
}
