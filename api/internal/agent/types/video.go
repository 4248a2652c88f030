package types

type VideoOptions struct {
	NumQuestions int    `json:"num_questions,omitempty"`
	Focus        string `json:"focus,omitempty"`
}

type KeyMoment struct {
	Timestamp   string `json:"timestamp" jsonschema:"description=mm:ss"`
	Description string `json:"description"`
}

type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type VideoAnalysis struct {
	Summary    string      `json:"summary"`
	KeyMoments []KeyMoment `json:"key_moments"`
	Concepts   []string    `json:"concepts"`
	Questions  []QA        `json:"questions"`
	ModelUsed  string      `json:"model_used,omitempty" jsonschema:"-"`
}
