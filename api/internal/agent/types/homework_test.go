package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundingBox_UnmarshalJSON(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		valid bool
		want  BoundingBox
	}{
		{"whole numbers", `{"ymin":10,"xmin":20,"ymax":30,"xmax":40}`, true, BoundingBox{Ymin: 10, Xmin: 20, Ymax: 30, Xmax: 40}},
		{"integral floats", `{"ymin":10.0,"xmin":0,"ymax":1000,"xmax":1e3}`, true, BoundingBox{Ymin: 10, Ymax: 1000, Xmax: 1000}},
		{"unit scale", `{"ymin":0.1,"xmin":0.2,"ymax":0.3,"xmax":0.4}`, false, BoundingBox{}},
		{"only ymax", `{"ymax":500}`, false, BoundingBox{}},
		{"three of four", `{"ymin":1,"xmin":2,"ymax":3}`, false, BoundingBox{}},
		{"empty object", `{}`, false, BoundingBox{}},
		{"negative", `{"ymin":-1,"xmin":0,"ymax":10,"xmax":10}`, false, BoundingBox{}},
		{"above scale", `{"ymin":0,"xmin":0,"ymax":1001,"xmax":10}`, false, BoundingBox{}},
		{"numeric strings", `{"ymin":"1","xmin":"2","ymax":"3","xmax":"4"}`, false, BoundingBox{}},
		{"not an object", `[1,2,3,4]`, false, BoundingBox{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var b BoundingBox
			require.NoError(t, json.Unmarshal([]byte(tc.in), &b))
			assert.Equal(t, tc.valid, b.Valid())
			if tc.valid {
				assert.Equal(t, tc.want, b)
			}
		})
	}
}

func TestBoundingBox_BadBoxKeepsRestOfRecord(t *testing.T) {
	var set ProblemSet
	err := json.Unmarshal([]byte(`{"problems":[
		{"problem_statement":"a","bounding_box":{"ymax":500},"validation":{"status":"verified","confidence_score":95}},
		{"problem_statement":"b","bounding_box":null},
		{"problem_statement":"c","bounding_box":{"ymin":1,"xmin":2,"ymax":3,"xmax":4}}
	]}`), &set)
	require.NoError(t, err)
	require.Len(t, set.Problems, 3)

	a := set.Problems[0]
	require.NotNil(t, a.BoundingBox)
	assert.False(t, a.BoundingBox.Valid())
	assert.Equal(t, 95, a.Validation.ConfidenceScore)
	assert.Nil(t, set.Problems[1].BoundingBox)
	assert.True(t, set.Problems[2].BoundingBox.Valid())
}

func TestBoundingBox_Valid(t *testing.T) {
	assert.True(t, BoundingBox{Ymax: 1000, Xmax: 1000}.Valid())
	assert.True(t, BoundingBox{}.Valid())
	assert.False(t, BoundingBox{Ymin: 500, Ymax: 100}.Valid())
	assert.False(t, BoundingBox{Xmax: 1200}.Valid())
}
