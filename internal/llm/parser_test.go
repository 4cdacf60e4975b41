package llm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractBalancedObject_PlainJSON(t *testing.T) {
	in := `{"a": 1, "b": {"c": 2}}`
	out, err := extractBalancedObject(in)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestExtractBalancedObject_MarkdownFence(t *testing.T) {
	in := "```json\n{\"a\": 1}\n```"
	out, err := extractBalancedObject(in)
	require.NoError(t, err)
	require.Equal(t, `{"a": 1}`, out)
}

func TestExtractBalancedObject_SurroundingProse(t *testing.T) {
	in := "Sure, here is the JSON you asked for:\n{\"a\": 1}\nLet me know if you need anything else."
	out, err := extractBalancedObject(in)
	require.NoError(t, err)
	require.Equal(t, `{"a": 1}`, out)
}

func TestExtractBalancedObject_BraceInsideString(t *testing.T) {
	in := `{"connection": "things that look like } braces {"}`
	out, err := extractBalancedObject(in)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestExtractBalancedObject_EscapedQuoteInsideString(t *testing.T) {
	in := `{"connection": "she said \"hello }\" to him"}`
	out, err := extractBalancedObject(in)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestExtractBalancedObject_NestedObjects(t *testing.T) {
	in := `{"groups": [{"items": [{"title": "x"}]}]}`
	out, err := extractBalancedObject(in)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestExtractBalancedObject_NoOpenBrace(t *testing.T) {
	_, err := extractBalancedObject("no json here at all")
	require.Error(t, err)
}

func TestExtractBalancedObject_UnbalancedBraces(t *testing.T) {
	_, err := extractBalancedObject(`{"a": 1, "b": {"c": 2}`)
	require.Error(t, err)
}

func TestParseGroups_HappyPath(t *testing.T) {
	raw := `Here's the JSON:
{
  "groups": [
    {
      "items": [{"title": "A", "year": 2000}, {"title": "B", "year": 2001}, {"title": "C", "year": 2002}, {"title": "D", "year": 2003}],
      "connection": "test connection",
      "connectionType": "thematic",
      "explanation": "because"
    }
  ]
}`
	groups, err := parseGroups(raw)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, "test connection", groups[0].Connection)
	require.Len(t, groups[0].Items, 4)
	require.Equal(t, "A", groups[0].Items[0].Title)
	require.NotEmpty(t, groups[0].ID)
}

func TestParseGroups_MalformedJSON(t *testing.T) {
	_, err := parseGroups(`{"groups": [{"items": [}]}`)
	require.Error(t, err)
}

func TestParseGroups_EmptyGroups(t *testing.T) {
	groups, err := parseGroups(`{"groups": []}`)
	require.NoError(t, err)
	require.Len(t, groups, 0)
}
