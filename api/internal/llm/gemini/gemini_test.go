package gemini

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	ggenai "google.golang.org/genai"

	"study-agents/api/internal/llm"
)

type box struct {
	Ymin int `json:"ymin"`
	Xmin int `json:"xmin"`
}

type item struct {
	Status  string `json:"status" jsonschema:"enum=verified,enum=warning,enum=error"`
	Correct *bool  `json:"is_correct,omitempty"`
	Box     *box   `json:"box,omitempty"`
}

type report struct {
	Topic string   `json:"topic" jsonschema:"description=main topic"`
	Items []item   `json:"items"`
	Tags  []string `json:"tags,omitempty"`
	Score float64  `json:"score"`
}

func TestToSchema(t *testing.T) {
	s := toSchema(llm.SchemaFor[report]())

	require.NotNil(t, s)
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.ElementsMatch(t, []string{"topic", "items", "score"}, s.Required)
	assert.Equal(t, "main topic", s.Properties["topic"].Description)
	assert.Equal(t, genai.TypeNumber, s.Properties["score"].Type)
	assert.True(t, s.Properties["tags"].Nullable)
	assert.False(t, s.Properties["topic"].Nullable)

	items := s.Properties["items"]
	require.Equal(t, genai.TypeArray, items.Type)
	require.NotNil(t, items.Items)
	el := items.Items
	assert.Equal(t, genai.TypeObject, el.Type)
	assert.Equal(t, "enum", el.Properties["status"].Format)
	assert.Equal(t, []string{"verified", "warning", "error"}, el.Properties["status"].Enum)
	assert.Equal(t, genai.TypeBoolean, el.Properties["is_correct"].Type)
	assert.True(t, el.Properties["is_correct"].Nullable)
	assert.Equal(t, genai.TypeInteger, el.Properties["box"].Properties["ymin"].Type)
}

func TestToSchema_Nil(t *testing.T) {
	assert.Nil(t, toSchema(nil))
}

type codeErr struct{ code int }

func (e codeErr) Error() string { return fmt.Sprintf("rpc failed with %d", e.code) }
func (e codeErr) HTTPCode() int { return e.code }

func TestWrapErr_Status(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		quota  bool
	}{
		{name: "googleapi 429", err: &googleapi.Error{Code: 429, Message: "Resource has been exhausted"}, status: 429, quota: true},
		{name: "googleapi 500", err: fmt.Errorf("call: %w", &googleapi.Error{Code: 500, Message: "internal"}), status: 500},
		{name: "http coder", err: codeErr{code: 503}, status: 503},
		{name: "no status", err: codeErr{code: -1}, status: 0},
		{name: "message only", err: errors.New("You exceeded your current quota"), quota: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := wrapErr("op", tc.err)
			var le *llm.Error
			require.ErrorAs(t, err, &le)
			assert.Equal(t, tc.status, le.Status)
			assert.Equal(t, tc.quota, llm.IsQuota(err))
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestGroundingSources(t *testing.T) {
	resp := &ggenai.GenerateContentResponse{
		Candidates: []*ggenai.Candidate{{
			GroundingMetadata: &ggenai.GroundingMetadata{
				GroundingChunks: []*ggenai.GroundingChunk{
					{Web: &ggenai.GroundingChunkWeb{URI: "https://a.example", Title: "A"}},
					{Web: &ggenai.GroundingChunkWeb{URI: "https://a.example", Title: "A again"}},
					{Web: nil},
					{Web: &ggenai.GroundingChunkWeb{URI: "https://b.example", Title: "B"}},
				},
			},
		}},
	}

	got := groundingSources(resp)
	assert.Equal(t, []llm.Source{
		{URI: "https://a.example", Title: "A"},
		{URI: "https://b.example", Title: "B"},
	}, got)
	assert.Nil(t, groundingSources(nil))
}

func TestToParts(t *testing.T) {
	parts := toParts([]llm.Part{llm.Text("hi"), llm.Blob("image/png", []byte{1, 2})})
	require.Len(t, parts, 2)
	assert.Equal(t, genai.Text("hi"), parts[0])
	assert.Equal(t, genai.Blob{MIMEType: "image/png", Data: []byte{1, 2}}, parts[1])
}
