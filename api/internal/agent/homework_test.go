package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"study-agents/api/internal/agent/types"
	"study-agents/api/internal/llm"
	"study-agents/api/internal/llm/llmtest"
)

func boolPtr(b bool) *bool { return &b }

func threeRecords() []types.ProblemRecord {
	return []types.ProblemRecord{
		{
			ID: "a", ProblemStatement: "2+2", StudentAnswer: "4", IsCorrect: boolPtr(true),
			Explanation: "ok", Steps: []string{"add"}, KeyConcepts: []string{"addition"},
			Validation: types.Validation{Status: types.StatusVerified, ConfidenceScore: 95},
		},
		{
			ID: "b", ProblemStatement: "3*3", StudentAnswer: "6", IsCorrect: boolPtr(true),
			Explanation: "looks right", Steps: []string{"multiply"}, KeyConcepts: []string{"multiplication"},
			Validation: types.Validation{Status: types.StatusVerified, ConfidenceScore: 60},
		},
		{
			ID: "c", ProblemStatement: "10/2", StudentAnswer: "5", IsCorrect: boolPtr(true),
			Explanation: "ok", Steps: []string{"divide"}, KeyConcepts: []string{"division"},
			Validation: types.Validation{Status: types.StatusVerified, ConfidenceScore: 90},
		},
	}
}

func TestMergeRefined_ReplacesOnlyMatchedRecord(t *testing.T) {
	orig := threeRecords()
	before, err := json.Marshal(orig)
	require.NoError(t, err)

	corrected := types.ProblemRecord{
		ProblemStatement: "3*3", StudentAnswer: "6", IsCorrect: boolPtr(false),
		Explanation: "3*3 is 9", Steps: []string{"3*3=9"}, KeyConcepts: []string{"multiplication"},
		BoundingBox: &types.BoundingBox{Ymin: 100, Xmin: 100, Ymax: 200, Xmax: 300},
		Validation:  types.Validation{Status: types.StatusWarning, ConfidenceScore: 70},
	}

	merged, n := MergeRefined(orig, []types.ProblemRecord{corrected})

	require.Equal(t, 1, n)
	require.Len(t, merged, 3)
	assert.Equal(t, orig[0], merged[0])
	assert.Equal(t, orig[2], merged[2])
	assert.Equal(t, "3*3 is 9", merged[1].Explanation)
	assert.Equal(t, "b", merged[1].ID)
	assert.Equal(t, types.Validation{Status: types.StatusVerified, ConfidenceScore: 99, RenderingNote: "self-corrected"}, merged[1].Validation)

	after, err := json.Marshal(orig)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after), "input slice must not be modified")
}

func TestMergeRefined_Matching(t *testing.T) {
	cases := []struct {
		name      string
		corrected types.ProblemRecord
		wantIdx   int
	}{
		{name: "id wins over statement", corrected: types.ProblemRecord{ID: "c", ProblemStatement: "2+2"}, wantIdx: 2},
		{name: "student answer", corrected: types.ProblemRecord{ProblemStatement: "paraphrased", StudentAnswer: "5"}, wantIdx: 2},
		{name: "first match wins", corrected: types.ProblemRecord{ProblemStatement: "2+2", StudentAnswer: "5"}, wantIdx: 0},
		{name: "unknown id falls back to content", corrected: types.ProblemRecord{ID: "zzz", ProblemStatement: "3*3"}, wantIdx: 1},
		{name: "unmatched dropped", corrected: types.ProblemRecord{ProblemStatement: "7-1", StudentAnswer: "6?"}, wantIdx: -1},
		{name: "empty fields never match", corrected: types.ProblemRecord{Explanation: "x"}, wantIdx: -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			orig := threeRecords()
			merged, n := MergeRefined(orig, []types.ProblemRecord{tc.corrected})
			for i := range orig {
				if i == tc.wantIdx {
					assert.Equal(t, types.StatusVerified, merged[i].Validation.Status)
					assert.Equal(t, 99, merged[i].Validation.ConfidenceScore)
					continue
				}
				assert.Equal(t, orig[i], merged[i])
			}
			if tc.wantIdx < 0 {
				assert.Zero(t, n)
			} else {
				assert.Equal(t, 1, n)
			}
		})
	}
}

func TestSelectForRefinement(t *testing.T) {
	recs := threeRecords()
	recs[2].Validation = types.Validation{Status: types.StatusWarning, ConfidenceScore: 95}

	got := SelectForRefinement(recs)

	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}

const tuneJSON = `{"subject":"math","topic":"arithmetic","grading_rules":["exact answer"]}`

const deepJSON = "Here is the grading:\n```json\n" + `{"problems":[
 {"problem_statement":"2+2","student_answer":"4","is_correct":true,"explanation":"ok","steps":["add"],"key_concepts":["addition"],"validation":{"status":"verified","confidence_score":95}},
 {"problem_statement":"3*3","student_answer":"6","is_correct":true,"explanation":"hard to read","steps":["multiply"],"key_concepts":["multiplication"],"validation":{"status":"verified","confidence_score":60}},
 {"problem_statement":"10/2","student_answer":"5","is_correct":true,"explanation":"ok","steps":["divide"],"key_concepts":["division"],"validation":{"status":"verified","confidence_score":90}}
]}` + "\n```"

const refineJSON = `{"problems":[{"problem_statement":"3*3","student_answer":"6","is_correct":false,"explanation":"3*3 is 9","steps":["3*3=9"],"key_concepts":["multiplication"],"bounding_box":{"ymin":10,"xmin":20,"ymax":30,"xmax":40},"validation":{"status":"warning","confidence_score":50}}]}`

func textHomework() types.PipelineRequest {
	return types.PipelineRequest{Kind: types.KindText, Content: "2+2=4, 3*3=6, 10/2=5", AuxiliaryText: "grade 3 worksheet"}
}

func TestAnalyzeHomework_RefinesFlaggedRecord(t *testing.T) {
	var refinePrompt string
	rec := &fakeRecorder{}
	o, p := newTestOrchestrator(t, map[string]stage{
		PromptTune:    reply(tuneJSON),
		PromptAnalyze: reply(deepJSON),
		PromptRefine: func(c llmtest.Call) (llm.Response, error) {
			refinePrompt = c.Prompt()
			return llm.Response{Text: refineJSON}, nil
		},
	}, WithRecorder(rec))

	report, err := o.AnalyzeHomework(context.Background(), textHomework(), types.HomeworkOptions{Strictness: types.Strict})
	require.NoError(t, err)

	assert.Equal(t, "math", report.Subject)
	assert.Equal(t, "arithmetic", report.Topic)
	assert.Equal(t, smartModel, report.ModelUsed)
	assert.Equal(t, fastModel, report.TuningModel)
	assert.Equal(t, 1, report.RefinedCount)
	require.Len(t, report.Problems, 3)
	assert.Equal(t, types.StatusVerified, report.Problems[1].Validation.Status)
	assert.Equal(t, 99, report.Problems[1].Validation.ConfidenceScore)
	assert.Equal(t, "3*3 is 9", report.Problems[1].Explanation)
	assert.Equal(t, 95, report.Problems[0].Validation.ConfidenceScore)
	assert.Equal(t, types.Score{Correct: 2, Total: 3}, report.Score)
	for _, pr := range report.Problems {
		assert.NotEmpty(t, pr.ID)
	}

	assert.Contains(t, refinePrompt, `"3*3"`)
	assert.NotContains(t, refinePrompt, `"2+2"`)
	assert.NotContains(t, refinePrompt, `"10/2"`)
	assert.Contains(t, refinePrompt, report.Problems[1].ID)

	assert.Equal(t, 1, p.CallCount(fastModel))
	assert.Equal(t, 2, p.CallCount(smartModel))
	assert.Equal(t, []string{"homework"}, rec.kinds)

	first := p.Calls[0]
	require.Len(t, first.Parts, 3)
	assert.Equal(t, "2+2=4, 3*3=6, 10/2=5", first.Parts[0].Text)
	assert.Contains(t, first.Parts[1].Text, "grade 3 worksheet")
	assert.NotNil(t, first.Config.Schema)
}

func TestAnalyzeHomework_RefinementFailureKeepsOriginal(t *testing.T) {
	o, _ := newTestOrchestrator(t, map[string]stage{
		PromptTune:    reply(tuneJSON),
		PromptAnalyze: reply(deepJSON),
		PromptRefine:  fail(errors.New("connection reset")),
	})

	report, err := o.AnalyzeHomework(context.Background(), textHomework(), types.HomeworkOptions{})
	require.NoError(t, err)

	assert.Zero(t, report.RefinedCount)
	require.Len(t, report.Problems, 3)
	assert.Equal(t, []int{95, 60, 90}, []int{
		report.Problems[0].Validation.ConfidenceScore,
		report.Problems[1].Validation.ConfidenceScore,
		report.Problems[2].Validation.ConfidenceScore,
	})
	assert.Equal(t, "hard to read", report.Problems[1].Explanation)
}

func TestAnalyzeHomework_NoRefinementWhenConfident(t *testing.T) {
	o, p := newTestOrchestrator(t, map[string]stage{
		PromptTune: reply(tuneJSON),
		PromptAnalyze: reply(`{"problems":[{"problem_statement":"1+1","is_correct":true,"explanation":"","steps":[],"key_concepts":[],
			"validation":{"status":"verified","confidence_score":80}}]}`),
	})

	report, err := o.AnalyzeHomework(context.Background(), textHomework(), types.HomeworkOptions{})
	require.NoError(t, err)
	assert.Zero(t, report.RefinedCount)
	assert.Len(t, p.Calls, 2)
}

func TestAnalyzeHomework_DeepAnalysisFallsBackOnQuota(t *testing.T) {
	o, p := newTestOrchestrator(t, map[string]stage{
		PromptTune: reply(tuneJSON),
		PromptAnalyze: func(c llmtest.Call) (llm.Response, error) {
			if c.ModelID == smartModel {
				return llm.Response{}, quota()
			}
			return llm.Response{Text: `{"problems":[]}`}, nil
		},
	})

	report, err := o.AnalyzeHomework(context.Background(), textHomework(), types.HomeworkOptions{})
	require.NoError(t, err)
	assert.Equal(t, fastModel, report.ModelUsed)
	assert.Empty(t, report.Problems)
	assert.Equal(t, 1, p.CallCount(smartModel))
}

func TestAnalyzeHomework_TuningFailurePropagates(t *testing.T) {
	o, p := newTestOrchestrator(t, map[string]stage{
		PromptTune: fail(quota()),
	})

	_, err := o.AnalyzeHomework(context.Background(), textHomework(), types.HomeworkOptions{})
	require.Error(t, err)
	assert.True(t, llm.IsQuota(err))
	assert.Len(t, p.Calls, 1)
}

func TestAnalyzeHomework_MalformedOutputDegrades(t *testing.T) {
	o, _ := newTestOrchestrator(t, map[string]stage{
		PromptTune:    reply("I could not classify this, sorry."),
		PromptAnalyze: reply(`{"problems": "none"}`),
	})

	report, err := o.AnalyzeHomework(context.Background(), textHomework(), types.HomeworkOptions{Subject: "physics"})
	require.NoError(t, err)
	assert.Equal(t, "physics", report.Subject)
	assert.NotNil(t, report.Problems)
	assert.Empty(t, report.Problems)
}

func TestAnalyzeHomework_InvalidRequest(t *testing.T) {
	o, p := newTestOrchestrator(t, nil)

	_, err := o.AnalyzeHomework(context.Background(), types.PipelineRequest{Kind: types.KindImage}, types.HomeworkOptions{})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = o.AnalyzeHomework(context.Background(), textHomework(), types.HomeworkOptions{Strictness: "brutal"})
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, p.Calls)
}

func TestPrepareRecords_DropsInvalidBoxes(t *testing.T) {
	in := []types.ProblemRecord{
		{ProblemStatement: "a", BoundingBox: &types.BoundingBox{Ymin: 0, Xmin: 0, Ymax: 1200, Xmax: 10},
			Validation: types.Validation{Status: types.StatusVerified, ConfidenceScore: 99}},
		{ProblemStatement: "b", BoundingBox: &types.BoundingBox{Ymin: 500, Xmin: 0, Ymax: 100, Xmax: 10},
			Validation: types.Validation{Status: types.StatusVerified, ConfidenceScore: 99}},
		{ProblemStatement: "c", BoundingBox: &types.BoundingBox{Ymin: 0, Xmin: 0, Ymax: 1000, Xmax: 1000},
			Validation: types.Validation{Status: types.StatusVerified, ConfidenceScore: 99}},
	}

	out := prepareRecords(in)

	assert.Nil(t, out[0].BoundingBox)
	assert.Equal(t, types.StatusWarning, out[0].Validation.Status)
	assert.NotEmpty(t, out[0].Validation.RenderingNote)
	assert.Nil(t, out[1].BoundingBox)
	assert.NotNil(t, out[2].BoundingBox)
	assert.Equal(t, types.StatusVerified, out[2].Validation.Status)
	assert.NotEqual(t, out[0].ID, out[1].ID)
}

const badBoxesJSON = `{"problems":[
	{"problem_statement":"a","is_correct":false,"explanation":"x","bounding_box":{"ymin":0.1,"xmin":0.2,"ymax":0.3,"xmax":0.4},"validation":{"status":"verified","confidence_score":95}},
	{"problem_statement":"b","is_correct":false,"explanation":"x","bounding_box":{"ymax":500},"validation":{"status":"verified","confidence_score":95}},
	{"problem_statement":"c","is_correct":false,"explanation":"x","bounding_box":{"ymin":100,"xmin":200,"ymax":300,"xmax":400},"validation":{"status":"verified","confidence_score":95}}
]}`

func TestAnalyzeHomework_MalformedBoxesBecomeWarnings(t *testing.T) {
	o, _ := newTestOrchestrator(t, map[string]stage{
		PromptTune:    reply(tuneJSON),
		PromptAnalyze: reply(badBoxesJSON),
		PromptRefine:  fail(errors.New("connection reset")),
	})

	report, err := o.AnalyzeHomework(context.Background(), textHomework(), types.HomeworkOptions{})
	require.NoError(t, err)
	require.Len(t, report.Problems, 3)

	for _, pr := range report.Problems[:2] {
		assert.Nil(t, pr.BoundingBox, pr.ProblemStatement)
		assert.Equal(t, types.StatusWarning, pr.Validation.Status, pr.ProblemStatement)
		assert.Equal(t, badBoxNote, pr.Validation.RenderingNote, pr.ProblemStatement)
	}
	c := report.Problems[2]
	require.NotNil(t, c.BoundingBox)
	assert.Equal(t, types.BoundingBox{Ymin: 100, Xmin: 200, Ymax: 300, Xmax: 400}, *c.BoundingBox)
	assert.Equal(t, types.StatusVerified, c.Validation.Status)
}

func TestAnalyzeHomework_RefinedBoxIsCheckedToo(t *testing.T) {
	var flagged string
	o, _ := newTestOrchestrator(t, map[string]stage{
		PromptTune:    reply(tuneJSON),
		PromptAnalyze: reply(badBoxesJSON),
		PromptRefine: func(c llmtest.Call) (llm.Response, error) {
			flagged = c.Prompt()
			return llm.Response{Text: `{"problems":[
				{"problem_statement":"a","is_correct":false,"explanation":"fixed","bounding_box":{"ymin":0.5,"xmin":0.5,"ymax":0.6,"xmax":0.6}},
				{"problem_statement":"b","is_correct":false,"explanation":"fixed","bounding_box":{"ymin":10,"xmin":10,"ymax":20,"xmax":20}}
			]}`}, nil
		},
	})

	report, err := o.AnalyzeHomework(context.Background(), textHomework(), types.HomeworkOptions{})
	require.NoError(t, err)

	assert.Contains(t, flagged, `"problem_statement": "a"`)
	assert.Contains(t, flagged, `"problem_statement": "b"`)
	assert.NotContains(t, flagged, `"problem_statement": "c"`)
	assert.Equal(t, 2, report.RefinedCount)
	assert.Nil(t, report.Problems[0].BoundingBox)
	require.NotNil(t, report.Problems[1].BoundingBox)
	assert.Equal(t, types.BoundingBox{Ymin: 10, Xmin: 10, Ymax: 20, Xmax: 20}, *report.Problems[1].BoundingBox)
}

func TestPrepareRecords_BoxesAlwaysInRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 8).Draw(t, "n")
		coord := rapid.IntRange(-2000, 3000)
		in := make([]types.ProblemRecord, n)
		for i := range in {
			if rapid.Bool().Draw(t, "hasBox") {
				in[i].BoundingBox = &types.BoundingBox{
					Ymin: coord.Draw(t, "ymin"), Xmin: coord.Draw(t, "xmin"),
					Ymax: coord.Draw(t, "ymax"), Xmax: coord.Draw(t, "xmax"),
				}
			}
		}

		for _, p := range prepareRecords(in) {
			b := p.BoundingBox
			if b == nil {
				continue
			}
			if !(0 <= b.Xmin && b.Xmin <= b.Xmax && b.Xmax <= 1000 && 0 <= b.Ymin && b.Ymin <= b.Ymax && b.Ymax <= 1000) {
				t.Fatalf("box out of range: %+v", *b)
			}
		}
	})
}
