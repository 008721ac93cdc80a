package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"socratic/services/prompt"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	categories := c.Categories()
	expectedCounts := map[string]int{
		"Generative AI":            9,
		"Professional Development": 7,
		"Critical Thinking":        8,
		"LeetPrompt":               5,
	}
	for name, count := range expectedCounts {
		if got := len(categories[name]); got != count {
			t.Errorf("category %q has %d topics, expected %d", name, got, count)
		}
	}

	names := c.Names()
	if names[0] != "Generative AI" || names[len(names)-1] != "LeetPrompt" {
		t.Errorf("Names() order = %v", names)
	}
}

func TestLookup(t *testing.T) {
	c := Default()

	tests := []struct {
		name        string
		category    string
		topic       string
		wantVariant prompt.Variant
		wantOpening prompt.Opening
		wantProblem bool
		wantErr     bool
	}{
		{
			name:        "generative ai topic",
			category:    "Generative AI",
			topic:       "Hallucinations in LLMs",
			wantVariant: prompt.VariantEncouraging,
			wantOpening: prompt.OpeningStatic,
		},
		{
			name:        "critical thinking uses strict mentor",
			category:    "Critical Thinking",
			topic:       "Model Testing",
			wantVariant: prompt.VariantStrict,
			wantOpening: prompt.OpeningUseCase,
		},
		{
			name:        "leetprompt problem",
			category:    "LeetPrompt",
			topic:       "Few-Shot Greeting Variations",
			wantVariant: prompt.VariantPromptCoach,
			wantOpening: prompt.OpeningProblem,
			wantProblem: true,
		},
		{
			name:     "unknown category",
			category: "Cooking",
			topic:    "Soups",
			wantErr:  true,
		},
		{
			name:     "topic from another category",
			category: "Generative AI",
			topic:    "Data Cleaning",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := c.Lookup(tt.category, tt.topic)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSelection) {
					t.Fatalf("Lookup() error = %v, expected ErrInvalidSelection", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Lookup() failed: %v", err)
			}
			if entry.Persona.Variant != tt.wantVariant {
				t.Errorf("Variant = %q, expected %q", entry.Persona.Variant, tt.wantVariant)
			}
			if entry.Persona.Opening != tt.wantOpening {
				t.Errorf("Opening = %q, expected %q", entry.Persona.Opening, tt.wantOpening)
			}
			if (entry.Problem != nil) != tt.wantProblem {
				t.Errorf("Problem = %v, wantProblem %v", entry.Problem, tt.wantProblem)
			}
		})
	}
}

func TestLookupSuggestsCloseMatches(t *testing.T) {
	c := Default()

	_, err := c.Lookup("Generative AI", "Hallucinations")
	if err == nil {
		t.Fatal("Lookup() expected an error for a partial topic")
	}
	if !strings.Contains(err.Error(), "did you mean: Hallucinations in LLMs") {
		t.Errorf("error %q does not suggest the full topic", err)
	}

	_, err = c.Lookup("Critcal Thinking", "Validation")
	if !strings.Contains(err.Error(), "Critical Thinking") {
		t.Errorf("error %q does not suggest the misspelled category", err)
	}
}

func TestSuggestEmpty(t *testing.T) {
	if got := Suggest("  ", []string{"a", "b"}); got != nil {
		t.Errorf("Suggest(blank) = %v, expected nil", got)
	}
	if got := Suggest("zzzzzzzzzzzz", []string{"Validation"}); len(got) != 0 {
		t.Errorf("Suggest(unrelated) = %v, expected none", got)
	}
}

func TestLookupResolvesProblem(t *testing.T) {
	c := Default()

	entry, err := c.Lookup("LeetPrompt", "One-Shot Fact-Based Query")
	if err != nil {
		t.Fatalf("Lookup() failed: %v", err)
	}
	if entry.Problem == nil {
		t.Fatal("Lookup() did not attach the problem")
	}
	if !strings.Contains(entry.Problem.Statement, "fact-based question") {
		t.Errorf("Statement = %q", entry.Problem.Statement)
	}
	if entry.Problem.SocraticQuery == "" {
		t.Error("SocraticQuery is empty")
	}

	entry, err = c.Lookup("Generative AI", "Hallucinations in LLMs")
	if err != nil {
		t.Fatalf("Lookup() failed: %v", err)
	}
	if entry.Problem != nil {
		t.Errorf("Lookup() attached problem %q to a plain topic", entry.Problem.Title)
	}
}

func TestParseRejectsBadCatalogs(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "version: 1\ncategories: []\n"},
		{"bad variant", "categories:\n  - name: A\n    persona: {variant: pirate}\n    topics: [x]\n"},
		{"problem opening without problems", "categories:\n  - name: A\n    persona: {variant: prompt_coach, opening: problem}\n    topics: [x]\n"},
		{"no topics", "categories:\n  - name: A\n    persona: {variant: strict_mentor}\n"},
		{"duplicate", "categories:\n  - name: A\n    persona: {variant: strict_mentor}\n    topics: [x]\n  - name: A\n    persona: {variant: strict_mentor}\n    topics: [y]\n"},
		{"not yaml", "categories: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("Parse() expected an error")
			}
		})
	}
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := "categories:\n  - name: Systems\n    persona: {variant: strict_mentor, opening: static}\n    topics: [Consensus]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	entry, err := c.Lookup("Systems", "Consensus")
	if err != nil {
		t.Fatalf("Lookup() failed: %v", err)
	}
	if entry.Persona.Variant != prompt.VariantStrict {
		t.Errorf("Variant = %q, expected %q", entry.Persona.Variant, prompt.VariantStrict)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() expected an error for a missing file")
	}
}
