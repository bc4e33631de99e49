package knowledge

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, add func(context.Context, Document) error) {
	t.Helper()
	ctx := context.Background()
	docs := []Document{
		{TenantID: "t1", Content: "Attendance is recorded per time slot by the teacher.", Source: "help/attendance"},
		{TenantID: "t1", Content: "Billing plans are charged per enrolled student each month.", Source: "help/billing"},
		{TenantID: "t2", Content: "Attendance works differently for tenant two.", Source: "other"},
	}
	for _, d := range docs {
		require.NoError(t, add(ctx, d))
	}
}

func TestInMemoryIndexSearch(t *testing.T) {
	idx := NewInMemoryIndex()
	seed(t, idx.Add)
	ctx := context.Background()

	results, err := idx.Search(ctx, "t1", "how is attendance recorded", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "help/attendance", results[0].Source)
	assert.Greater(t, results[0].Score, 0.0)

	// Tenant isolation: t2's document never surfaces for t1 and vice versa.
	results, err = idx.Search(ctx, "t2", "attendance", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "other", results[0].Source)

	results, err = idx.Search(ctx, "t1", "nothing matches this query xyzzy", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestInMemoryIndexRanking(t *testing.T) {
	idx := NewInMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.Add(ctx, Document{TenantID: "t1", Content: "billing", Source: "weak"}))
	require.NoError(t, idx.Add(ctx, Document{TenantID: "t1", Content: "billing plans and billing reports", Source: "strong"}))

	results, err := idx.Search(ctx, "t1", "billing plans", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "strong", results[0].Source)
}

func TestSQLiteIndexSearch(t *testing.T) {
	idx, err := NewSQLiteIndex(filepath.Join(t.TempDir(), "knowledge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	seed(t, idx.Add)
	ctx := context.Background()

	results, err := idx.Search(ctx, "t1", "attendance slot", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "help/attendance", results[0].Source)

	results, err = idx.Search(ctx, "t1", "enrolled student billing", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "help/billing", results[0].Source)

	results, err = idx.Search(ctx, "t1", "", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSQLiteIndexEscapesLikeMetacharacters(t *testing.T) {
	idx, err := NewSQLiteIndex(filepath.Join(t.TempDir(), "knowledge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, Document{TenantID: "t1", Content: "discount of 100% applies", Source: "promo"}))
	require.NoError(t, idx.Add(ctx, Document{TenantID: "t1", Content: "plain document", Source: "plain"}))

	results, err := idx.Search(ctx, "t1", "100%", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "promo", results[0].Source)
}
