package graphstore_test

import (
	"testing"

	"github.com/memg/memg-core/pkg/graphstore"
	"github.com/stretchr/testify/require"
)

func TestParseQuerySimple(t *testing.T) {
	q, err := graphstore.ParseQuery(`MATCH (n:NOTE) WHERE n.user_id = $user RETURN n LIMIT $limit`, map[string]any{
		"user":  "u1",
		"limit": 5,
	})
	require.NoError(t, err)
	require.Equal(t, "note", q.NodeType)
	require.Equal(t, 5, q.Limit)
	require.Len(t, q.Where, 1)
	require.Equal(t, "user_id", q.Where[0].Field)
	require.Equal(t, "=", q.Where[0].Op)
	require.Equal(t, "u1", q.Where[0].Value)
}

func TestParseQueryMultipleConditionsAndNoType(t *testing.T) {
	q, err := graphstore.ParseQuery(`MATCH (n) WHERE n.score >= $min AND n.archived = $archived RETURN n`, map[string]any{
		"min":      0.5,
		"archived": "false",
	})
	require.NoError(t, err)
	require.Equal(t, "", q.NodeType)
	require.Equal(t, 0, q.Limit)
	require.Len(t, q.Where, 2)
	require.Equal(t, "score", q.Where[0].Field)
	require.Equal(t, ">=", q.Where[0].Op)
	require.InDelta(t, 0.5, q.Where[0].Value, 1e-9)
	require.Equal(t, "archived", q.Where[1].Field)
}

func TestParseQueryUnboundParameter(t *testing.T) {
	_, err := graphstore.ParseQuery(`MATCH (n:NOTE) WHERE n.user_id = $missing RETURN n`, nil)
	require.Error(t, err)
}

func TestParseQueryMissingMatch(t *testing.T) {
	_, err := graphstore.ParseQuery(`WHERE n.user_id = $user RETURN n`, map[string]any{"user": "u1"})
	require.Error(t, err)
}

func TestParseQueryLiteralValue(t *testing.T) {
	q, err := graphstore.ParseQuery(`MATCH (n:NOTE) WHERE n.status = "active" RETURN n LIMIT 10`, nil)
	require.NoError(t, err)
	require.Equal(t, "active", q.Where[0].Value)
	require.Equal(t, 10, q.Limit)
}
