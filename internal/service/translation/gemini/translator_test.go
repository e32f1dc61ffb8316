package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"google.golang.org/genai"
)

type fakeGenerator struct {
	resp   *genai.GenerateContentResponse
	err    error
	model  string
	text   string
	system string
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.text = contents[0].Parts[0].Text
	}
	if config != nil && config.SystemInstruction != nil {
		f.system = config.SystemInstruction.Parts[0].Text
	}
	return f.resp, f.err
}

func response(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: string(genai.RoleModel)}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

func TestTranslator_Translate(t *testing.T) {
	g := &fakeGenerator{resp: response("مرحبا", " ")}
	tr := newTranslator(g, "")

	got, err := tr.Translate(context.Background(), "Hello", "en-US", "ar-SA")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "مرحبا" {
		t.Errorf("expected trimmed translation, got %q", got)
	}
	if g.model != DefaultModel {
		t.Errorf("expected default model, got %s", g.model)
	}
	if g.text != "Hello" {
		t.Errorf("expected utterance as content, got %q", g.text)
	}
	if !strings.Contains(g.system, "en-US") || !strings.Contains(g.system, "ar-SA") {
		t.Errorf("expected both languages in the instruction, got %q", g.system)
	}
}

func TestTranslator_Failures(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
	}{
		{"service error", &fakeGenerator{err: errors.New("quota exceeded")}},
		{"no candidates", &fakeGenerator{resp: &genai.GenerateContentResponse{}}},
		{"empty text", &fakeGenerator{resp: response("  ")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := newTranslator(tt.gen, "m").Translate(context.Background(), "Hi", "en", "fr"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(context.Background(), "", ""); err == nil {
		t.Error("expected error without API key")
	}
}

func TestSystemPrompt_AutoSource(t *testing.T) {
	if p := systemPrompt("", "en-US"); !strings.Contains(p, "detected language") {
		t.Errorf("unexpected prompt %q", p)
	}
}
