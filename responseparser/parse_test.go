package responseparser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractJSON_FencedBlock(t *testing.T) {
	content := "here you go:\n```json\n{\"answer\": \"5\"}\n```\nthanks"
	got, ok := ExtractJSON(content)
	require.True(t, ok)
	require.JSONEq(t, `{"answer":"5"}`, got)
}

func TestExtractJSON_BalancedObjectNoFence(t *testing.T) {
	content := `the result is {"answer": 5, "nested": {"a": 1}} as computed`
	got, ok := ExtractJSON(content)
	require.True(t, ok)
	require.JSONEq(t, `{"answer": 5, "nested": {"a": 1}}`, got)
}

func TestExtractJSON_BalancedArray(t *testing.T) {
	// No valid object substring exists here, so the array step (step 3)
	// is what finds this, not the object step (step 2) that runs first.
	content := `values: [1, 2, 3] done`
	got, ok := ExtractJSON(content)
	require.True(t, ok)
	require.JSONEq(t, `[1, 2, 3]`, got)
}

func TestExtractJSON_NoneFound(t *testing.T) {
	_, ok := ExtractJSON("just plain text, no structure here")
	require.False(t, ok)
}

func TestParse_NoSchemaReturnsRawString(t *testing.T) {
	v, err := Parse("plain text reply", nil)
	require.NoError(t, err)
	require.Equal(t, "plain text reply", v)
}

func TestParse_ValidatesAgainstSchema(t *testing.T) {
	schema := []byte(`{"type":"object","properties":{"answer":{"type":"string"}},"required":["answer"]}`)
	v, err := Parse(`{"answer":"5"}`, schema)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"answer": "5"}, v)
}

func TestParse_SchemaViolationReturnsResponseParseError(t *testing.T) {
	schema := []byte(`{"type":"object","properties":{"answer":{"type":"string"}},"required":["answer"]}`)
	_, err := Parse(`{"wrong":"field"}`, schema)
	require.Error(t, err)
}

func TestApplyStrictAdditionalProperties_Recursive(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":       "object",
					"properties": map[string]any{"name": map[string]any{"type": "string"}},
				},
			},
		},
		"$defs": map[string]any{
			"Thing": map[string]any{
				"type":       "object",
				"properties": map[string]any{"id": map[string]any{"type": "string"}},
			},
		},
	}
	out := ApplyStrictAdditionalProperties(schema)
	require.Equal(t, false, out["additionalProperties"])

	items := out["properties"].(map[string]any)["items"].(map[string]any)
	innerItem := items["items"].(map[string]any)
	require.Equal(t, false, innerItem["additionalProperties"])

	thing := out["$defs"].(map[string]any)["Thing"].(map[string]any)
	require.Equal(t, false, thing["additionalProperties"])
}
