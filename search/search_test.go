package search_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/grocery-chat-server/search"
)

func TestEscape(t *testing.T) {
	assert.Equal(t, `alice\@example\.com`, search.Escape("alice@example.com"))
	assert.Equal(t, `first\ last`, search.Escape("first last"))
	assert.Equal(t, "plain_word42", search.Escape("plain_word42"))
}

func TestTagRoundTrip(t *testing.T) {
	expr := search.Tag("email", "Alice@Example.com")
	assert.Equal(t, `@email:{Alice\@Example\.com}`, expr)

	q, err := search.Parse(expr)
	require.NoError(t, err)
	require.Len(t, q, 1)
	assert.Equal(t, "email", q[0].Field)
	assert.True(t, q[0].Tag)
	assert.Equal(t, []string{"Alice@Example.com"}, q[0].Values)

	assert.True(t, q.Match(map[string]string{"email": "alice@example.com"}))
	assert.False(t, q.Match(map[string]string{"email": "bob@example.com"}))
	assert.False(t, q.Match(map[string]string{"username": "alice"}))
}

func TestTagAlternatives(t *testing.T) {
	q, err := search.Parse(search.Tag("lifestyle", "keto", "vegan"))
	require.NoError(t, err)
	assert.True(t, q.Match(map[string]string{"lifestyle": "Vegan"}))
	assert.True(t, q.Match(map[string]string{"lifestyle": "paleo, keto"}))
	assert.False(t, q.Match(map[string]string{"lifestyle": "paleo"}))
}

func TestTextAndConjunction(t *testing.T) {
	expr := search.And(search.Text("username", "Femi"), search.Tag("email", "f@x.io"))
	q, err := search.Parse(expr)
	require.NoError(t, err)
	require.Len(t, q, 2)

	assert.True(t, q.Match(map[string]string{"username": "femi the cook", "email": "F@X.IO"}))
	assert.False(t, q.Match(map[string]string{"username": "femiano", "email": "f@x.io"}))
}

func TestParseMatchAll(t *testing.T) {
	for _, expr := range []string{"", "*", "   "} {
		q, err := search.Parse(expr)
		require.NoError(t, err)
		assert.True(t, q.Match(map[string]string{}))
	}
	assert.Equal(t, "*", search.And())
}

func TestParseErrors(t *testing.T) {
	for _, expr := range []string{
		"email:{x}",
		"@:{x}",
		"@email{x}",
		"@email:{x",
		"@email:{}",
		"@email:{a|}",
		`@email:{x\`,
		"@email:",
	} {
		_, err := search.Parse(expr)
		require.Error(t, err, expr)
		assert.True(t, errors.Is(err, search.ErrSyntax), expr)
	}
}

func TestParseReply(t *testing.T) {
	reply := []any{
		int64(2),
		"users:1", []any{"id", "1", "email", "a@b.c"},
		"users:2", []any{"id", "2", "email", "d@e.f"},
	}
	docs, err := search.ParseReply(reply)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a@b.c", docs[0]["email"])
	assert.Equal(t, "2", docs[1]["id"])

	docs, err = search.ParseReply([]any{int64(0)})
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = search.ParseReply("nope")
	assert.Error(t, err)
}

func TestIndexSchema(t *testing.T) {
	ix := search.NewIndex("users",
		search.Field{Name: "email", Type: search.TypeTag},
		search.Field{Name: "username", Type: search.TypeText},
	)
	assert.Equal(t, "users:idx", ix.Name)
	assert.Equal(t, "users:", ix.Prefix)
	assert.Equal(t, []any{"email", "TAG", "username", "TEXT"}, ix.Schema())
}
