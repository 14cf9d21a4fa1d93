package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type probe struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestDecodeLLMJSON_CleanInput(t *testing.T) {
	var p probe
	_, err := DecodeLLMJSON(`{"name": "a", "count": 1}`, &p)
	require.NoError(t, err)
	assert.Equal(t, "a", p.Name)
}

func TestDecodeLLMJSON_FencedWithLanguageTag(t *testing.T) {
	var p probe
	_, err := DecodeLLMJSON("Here is the plan:\n```json\n{\"name\": \"a\", \"count\": 2}\n```", &p)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Count)
}

func TestDecodeLLMJSON_FencedNoTag(t *testing.T) {
	var p probe
	_, err := DecodeLLMJSON("```\n{\"name\": \"b\", \"count\": 3}\n```", &p)
	require.NoError(t, err)
	assert.Equal(t, "b", p.Name)
}

func TestDecodeLLMJSON_LineComments(t *testing.T) {
	var p probe
	_, err := DecodeLLMJSON("{\n  // the name\n  \"name\": \"c\",\n  \"count\": 4\n}", &p)
	require.NoError(t, err)
	assert.Equal(t, "c", p.Name)
}

func TestDecodeLLMJSON_TrailingCommas(t *testing.T) {
	var p probe
	_, err := DecodeLLMJSON(`{"name": "d", "count": 5,}`, &p)
	require.NoError(t, err)
	assert.Equal(t, 5, p.Count)
}

func TestDecodeLLMJSON_BareControlChars(t *testing.T) {
	var p probe
	_, err := DecodeLLMJSON("{\"name\": \"line1\nline2\", \"count\": 6}", &p)
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2", p.Name)
}

func TestDecodeLLMJSON_OutermostBraceExtraction(t *testing.T) {
	var p probe
	_, err := DecodeLLMJSON(`Sure! The result is {"name": "e", "count": 7} — let me know.`, &p)
	require.NoError(t, err)
	assert.Equal(t, "e", p.Name)
}

func TestDecodeLLMJSON_CommentSlashesInsideStringsSurvive(t *testing.T) {
	var p probe
	_, err := DecodeLLMJSON(`{"name": "https://example.com", "count": 8}`, &p)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", p.Name)
}

func TestDecodeLLMJSON_UnusableReturnsError(t *testing.T) {
	var p probe
	_, err := DecodeLLMJSON("not json at all", &p)
	assert.Error(t, err)
}

func TestHexDumpAroundMarksOffset(t *testing.T) {
	dump := hexDumpAround("abcdef", 2, 2)
	assert.Contains(t, dump, ">>63")
}
