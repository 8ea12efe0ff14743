package shared

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePageDefaultsAndBounds(t *testing.T) {
	p := ParsePage(url.Values{})
	require.Equal(t, 1, p.Page)
	require.Equal(t, defaultPerPage, p.PerPage)
	require.Equal(t, 0, p.Offset())

	p = ParsePage(url.Values{"page": {"3"}, "per_page": {"10000"}})
	require.Equal(t, maxPerPage, p.Limit())
	require.Equal(t, 2*maxPerPage, p.Offset())
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 20, 41)
	require.Equal(t, 3, p.TotalPages)
	require.Equal(t, 2, p.Page)
}

func TestPayeeLockKey(t *testing.T) {
	require.Equal(t, "finance:payee:team:ceo:lock", PayeeLockKey("team", "ceo"))
}
