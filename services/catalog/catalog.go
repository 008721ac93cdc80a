package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"socratic/services/prompt"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// ErrInvalidSelection is returned when a category or topic is not in the catalog.
var ErrInvalidSelection = errors.New("invalid selection")

const maxSuggestions = 3

type categoryDef struct {
	Name     string           `yaml:"name"`
	Persona  prompt.Persona   `yaml:"persona"`
	Topics   []string         `yaml:"topics"`
	Problems []prompt.Problem `yaml:"problems"`
}

type catalogFile struct {
	Version    int           `yaml:"version"`
	Categories []categoryDef `yaml:"categories"`
}

// Entry is a resolved category/topic selection.
type Entry struct {
	Category string
	Topic    string
	Persona  prompt.Persona
	Problem  *prompt.Problem
}

type Catalog struct {
	categories []categoryDef
	byName     map[string]int
}

// Load reads the catalog from path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Parse(defaultCatalog)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog %s: %w", path, err)
	}
	log.Printf("[INFO] Loaded catalog from %s with %d categories", path, len(c.categories))
	return c, nil
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}

func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog yaml: %w", err)
	}

	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("catalog has no categories")
	}

	c := &Catalog{byName: make(map[string]int, len(file.Categories))}
	for i, def := range file.Categories {
		if err := validateCategory(&def); err != nil {
			return nil, fmt.Errorf("category %d: %w", i, err)
		}
		if _, exists := c.byName[def.Name]; exists {
			return nil, fmt.Errorf("duplicate category %q", def.Name)
		}

		// Problem titles double as the topic list.
		for _, p := range def.Problems {
			if !lo.Contains(def.Topics, p.Title) {
				def.Topics = append(def.Topics, p.Title)
			}
		}

		c.byName[def.Name] = len(c.categories)
		c.categories = append(c.categories, def)
	}

	return c, nil
}

func validateCategory(def *categoryDef) error {
	if strings.TrimSpace(def.Name) == "" {
		return fmt.Errorf("name cannot be empty")
	}

	variant, err := prompt.ParseVariant(string(def.Persona.Variant))
	if err != nil {
		return fmt.Errorf("%s: %w", def.Name, err)
	}
	opening, err := prompt.ParseOpening(string(def.Persona.Opening))
	if err != nil {
		return fmt.Errorf("%s: %w", def.Name, err)
	}
	def.Persona = prompt.Persona{Variant: variant, Opening: opening}

	if opening == prompt.OpeningProblem && len(def.Problems) == 0 {
		return fmt.Errorf("%s: opening %q requires problems", def.Name, opening)
	}
	if len(def.Topics) == 0 && len(def.Problems) == 0 {
		return fmt.Errorf("%s: no topics", def.Name)
	}

	for _, p := range def.Problems {
		if p.Title == "" || strings.TrimSpace(p.Statement) == "" {
			return fmt.Errorf("%s: problem must have a title and statement", def.Name)
		}
	}
	return nil
}

// Categories maps each category to its ordered topics.
func (c *Catalog) Categories() map[string][]string {
	out := make(map[string][]string, len(c.categories))
	for _, def := range c.categories {
		out[def.Name] = append([]string(nil), def.Topics...)
	}
	return out
}

// Names returns category names in catalog order.
func (c *Catalog) Names() []string {
	return lo.Map(c.categories, func(def categoryDef, _ int) string {
		return def.Name
	})
}

// Lookup resolves a category/topic pair. Unknown values wrap ErrInvalidSelection
// and carry close matches when there are any.
func (c *Catalog) Lookup(category, topic string) (Entry, error) {
	idx, ok := c.byName[category]
	if !ok {
		return Entry{}, selectionError("category", category, c.Names())
	}

	def := c.categories[idx]
	if !lo.Contains(def.Topics, topic) {
		return Entry{}, selectionError(fmt.Sprintf("topic for category %q", category), topic, def.Topics)
	}

	entry := Entry{
		Category: def.Name,
		Topic:    topic,
		Persona:  def.Persona,
	}
	if p, found := lo.Find(def.Problems, func(p prompt.Problem) bool { return p.Title == topic }); found {
		entry.Problem = &p
	}
	return entry, nil
}

func selectionError(what, value string, candidates []string) error {
	suggestions := Suggest(value, candidates)
	if len(suggestions) == 0 {
		return fmt.Errorf("%w: unknown %s %q", ErrInvalidSelection, what, value)
	}
	return fmt.Errorf("%w: unknown %s %q (did you mean: %s)", ErrInvalidSelection, what, value, strings.Join(suggestions, ", "))
}

// Suggest ranks candidates that look like value. Subsequence matches win; small
// edit distances are the fallback for typos.
func Suggest(value string, candidates []string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	ranks := fuzzy.RankFindNormalizedFold(value, candidates)
	sort.Sort(ranks)
	suggestions := lo.Map(ranks, func(r fuzzy.Rank, _ int) string { return r.Target })

	if len(suggestions) == 0 {
		lower := strings.ToLower(value)
		threshold := len(lower)/3 + 1
		suggestions = lo.Filter(candidates, func(candidate string, _ int) bool {
			return fuzzy.LevenshteinDistance(lower, strings.ToLower(candidate)) <= threshold
		})
	}

	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	return suggestions
}
