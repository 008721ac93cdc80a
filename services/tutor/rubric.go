package tutor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"socratic/models"
)

// rubricLine matches "{Criterion}: {n}/5 - {feedback}". Markdown emphasis and
// list markers are stripped before matching.
var rubricLine = regexp.MustCompile(`^\s*(?:[-#>]+\s*|\d+[.)]\s*)?([A-Za-z][A-Za-z ]*?)\s*:\s*(\d+)\s*/\s*5\s*(?:[-:\x{2013}\x{2014}]\s*)?(.*)$`)

// ParseRubric extracts one score per criterion from evaluation text. The first
// line for a criterion wins. A missing criterion or an out-of-range score fails
// the whole parse.
func ParseRubric(text string, criteria []string) ([]models.CriterionScore, error) {
	found := make(map[string]models.CriterionScore, len(criteria))

	for _, line := range strings.Split(text, "\n") {
		line = strings.ReplaceAll(line, "*", "")
		m := rubricLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		name, ok := matchCriterion(m[1], criteria)
		if !ok {
			continue
		}
		if _, seen := found[name]; seen {
			continue
		}

		score, err := strconv.Atoi(m[2])
		if err != nil || score < 1 || score > 5 {
			return nil, fmt.Errorf("%w: %s score %q out of range", ErrParseFailure, name, m[2])
		}

		found[name] = models.CriterionScore{
			Criterion: name,
			Score:     score,
			Feedback:  strings.TrimSpace(m[3]),
		}
	}

	scores := make([]models.CriterionScore, 0, len(criteria))
	for _, c := range criteria {
		score, ok := found[c]
		if !ok {
			return nil, fmt.Errorf("%w: missing criterion %s", ErrParseFailure, c)
		}
		scores = append(scores, score)
	}
	return scores, nil
}

func matchCriterion(label string, criteria []string) (string, bool) {
	label = strings.TrimSpace(label)
	for _, c := range criteria {
		if strings.EqualFold(label, c) {
			return c, true
		}
	}
	return "", false
}
