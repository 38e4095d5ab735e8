package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want map[string]any
	}{
		{
			name: "plain object",
			in:   `{"Deadline":"Soon"}`,
			want: map[string]any{"Deadline": "Soon"},
		},
		{
			name: "json fence",
			in:   "Here you go:\n```json\n{\"GIS\": \"1\"}\n```\nDone.",
			want: map[string]any{"GIS": "1"},
		},
		{
			name: "bare fence",
			in:   "```\n{\"RS\": \"\"}\n```",
			want: map[string]any{"RS": ""},
		},
		{
			name: "reasoning before object",
			in:   "<think>The deadline is {unclear}</think> {\"Deadline\": \"2024-04-30\"}",
			want: map[string]any{"Deadline": "2024-04-30"},
		},
		{
			name: "nested object with stray braces",
			in:   `noise } {"Number_Places": "2", "meta": {"k": 1}} trailing {`,
			want: map[string]any{"Number_Places": "2", "meta": map[string]any{"k": float64(1)}},
		},
		{
			name: "answer marker",
			in:   "Thinking { draft\nFinal Answer: {\"WX_Label1\": \"}\"}",
			want: map[string]any{"WX_Label1": "}"},
		},
		{
			name: "unbalanced prefix",
			in:   "分析 {草稿 结果：{\"Country_CN\": \"英国\"}",
			want: map[string]any{"Country_CN": "英国"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseJSON(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseJSON_Failures(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "no json here", "[1,2,3]", "{broken"} {
		_, err := ParseJSON(in)
		assert.ErrorIs(t, err, ErrNoJSON, in)
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	var sel struct {
		SelectedURLs []string `json:"selected_urls"`
		Reasoning    string   `json:"reasoning"`
	}
	err := Decode("```json\n{\"selected_urls\":[\"https://a.edu\"],\"reasoning\":\"faculty page\"}\n```", &sel)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.edu"}, sel.SelectedURLs)
	assert.Equal(t, "faculty page", sel.Reasoning)

	assert.Error(t, Decode("nothing", &sel))
}

func TestStringValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", StringValue(nil))
	assert.Equal(t, "x", StringValue("x"))
	assert.Equal(t, "1", StringValue(true))
	assert.Equal(t, "", StringValue(false))
	assert.Equal(t, "1", StringValue(float64(1)))
	assert.Equal(t, "2.5", StringValue(2.5))
	assert.Equal(t, "3", StringValue(json.Number("3")))
	assert.Equal(t, "[a]", StringValue([]any{"a"}))
}
