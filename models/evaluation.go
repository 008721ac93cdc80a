package models

import "time"

// RubricCriteria is the fixed, ordered set of criteria the evaluator scores.
var RubricCriteria = []string{
	"Clarity",
	"Depth",
	"Application",
	"Critical Thinking",
	"Progression",
	"Relevance",
	"Creativity",
}

type CriterionScore struct {
	Criterion string `json:"criterion" bson:"criterion"`
	Score     int    `json:"score" bson:"score" jsonschema:"minimum=1,maximum=5"`
	Feedback  string `json:"feedback" bson:"feedback"`
}

type EvaluationResult struct {
	Text        string           `json:"text" bson:"text"`
	Topic       string           `json:"topic" bson:"topic"`
	Scores      []CriterionScore `json:"scores,omitempty" bson:"scores,omitempty"`
	EvaluatedAt time.Time        `json:"evaluated_at" bson:"evaluated_at"`
}
