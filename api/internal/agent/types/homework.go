package types

import (
	"math"

	"github.com/tidwall/gjson"
)

const (
	StatusVerified = "verified"
	StatusWarning  = "warning"

	// RefineBelow: records scoring under this confidence go through refinement.
	RefineBelow = 80

	BoxScale = 1000
)

// BoundingBox: 0..1000 normalized, origin top-left. All four coordinates
// travel together.
type BoundingBox struct {
	Ymin int `json:"ymin" jsonschema:"minimum=0,maximum=1000"`
	Xmin int `json:"xmin" jsonschema:"minimum=0,maximum=1000"`
	Ymax int `json:"ymax" jsonschema:"minimum=0,maximum=1000"`
	Xmax int `json:"xmax" jsonschema:"minimum=0,maximum=1000"`

	// set when decoded input had a missing, fractional or out-of-range coordinate
	malformed bool
}

var boxKeys = [4]string{"ymin", "xmin", "ymax", "xmax"}

// UnmarshalJSON accepts only a box with all four coordinates present as
// integers in 0..1000. Anything else decodes into a box that is not Valid,
// so one bad box never fails the whole record set.
func (b *BoundingBox) UnmarshalJSON(data []byte) error {
	*b = BoundingBox{}
	coords := [4]*int{&b.Ymin, &b.Xmin, &b.Ymax, &b.Xmax}
	for i, key := range boxKeys {
		v := gjson.GetBytes(data, key)
		if v.Type != gjson.Number || v.Num != math.Trunc(v.Num) || v.Num < 0 || v.Num > BoxScale {
			b.malformed = true
			return nil
		}
		*coords[i] = int(v.Num)
	}
	return nil
}

// Valid reports 0 <= min <= max <= 1000 on both axes.
func (b BoundingBox) Valid() bool {
	return !b.malformed &&
		0 <= b.Xmin && b.Xmin <= b.Xmax && b.Xmax <= BoxScale &&
		0 <= b.Ymin && b.Ymin <= b.Ymax && b.Ymax <= BoxScale
}

type Validation struct {
	Status          string `json:"status" jsonschema:"enum=verified,enum=warning"`
	ConfidenceScore int    `json:"confidence_score" jsonschema:"minimum=0,maximum=100"`
	RenderingNote   string `json:"rendering_note,omitempty"`
}

// ProblemRecord: one graded item.
type ProblemRecord struct {
	ID               string       `json:"id,omitempty" jsonschema:"description=echo the id you were given unchanged"`
	ProblemStatement string       `json:"problem_statement"`
	Subject          string       `json:"subject,omitempty"`
	Topic            string       `json:"topic,omitempty"`
	IsCorrect        *bool        `json:"is_correct,omitempty" jsonschema:"description=null when the item is a task without a student answer"`
	BoundingBox      *BoundingBox `json:"bounding_box,omitempty" jsonschema:"description=required when is_correct is false; region of the mistake"`
	Explanation      string       `json:"explanation"`
	Steps            []string     `json:"steps"`
	KeyConcepts      []string     `json:"key_concepts"`
	StudentAnswer    string       `json:"student_answer,omitempty"`
	CorrectAnswer    string       `json:"correct_answer,omitempty"`
	Validation       Validation   `json:"validation"`
}

// NeedsRefinement: warning status or low confidence.
func (p ProblemRecord) NeedsRefinement() bool {
	return p.Validation.Status == StatusWarning || p.Validation.ConfidenceScore < RefineBelow
}

type ProblemSet struct {
	Problems []ProblemRecord `json:"problems"`
}

type TuningResult struct {
	Subject      string   `json:"subject"`
	Topic        string   `json:"topic"`
	GradingRules []string `json:"grading_rules"`
	GradeLevel   string   `json:"grade_level,omitempty"`
	Language     string   `json:"language,omitempty"`
}

type Strictness string

const (
	Lenient  Strictness = "lenient"
	Standard Strictness = "standard"
	Strict   Strictness = "strict"
)

type HomeworkOptions struct {
	Strictness Strictness `json:"strictness,omitempty"`
	Subject    string     `json:"subject,omitempty"`
	GradeLevel string     `json:"grade_level,omitempty"`
}

type Score struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

type HomeworkReport struct {
	Subject      string          `json:"subject"`
	Topic        string          `json:"topic"`
	GradingRules []string        `json:"grading_rules"`
	Problems     []ProblemRecord `json:"problems"`
	Score        Score           `json:"score"`
	RefinedCount int             `json:"refined_count"`
	ModelUsed    string          `json:"model_used"`
	TuningModel  string          `json:"tuning_model"`
}
