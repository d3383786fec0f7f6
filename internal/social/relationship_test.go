package social_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/serenissima/internal/social"
)

type mapStore map[[2]string]*social.Relationship

func (m mapStore) Relationship(_ context.Context, a, b string) (*social.Relationship, error) {
	r, ok := m[[2]string{a, b}]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m mapStore) SaveRelationship(_ context.Context, r *social.Relationship) error {
	cp := *r
	m[[2]string{r.Citizen1, r.Citizen2}] = &cp
	return nil
}

func TestAdjustCreatesThenAccumulates(t *testing.T) {
	ctx := context.Background()
	store := mapStore{}
	ledger := social.NewTrustLedger()
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, ledger.Adjust(ctx, store, "zeno", "anna", 5, "construction completed", now))
	rel := store[[2]string{"anna", "zeno"}]
	require.NotNil(t, rel, "pair must be stored sorted")
	assert.Equal(t, 5.0, rel.TrustScore)

	later := now.Add(time.Hour)
	require.NoError(t, ledger.Adjust(ctx, store, "anna", "zeno", 1, "progress", later))
	rel = store[[2]string{"anna", "zeno"}]
	assert.Equal(t, 6.0, rel.TrustScore)
	assert.Equal(t, later, rel.LastInteraction)
	assert.Len(t, rel.Notes, 2)
}

func TestAdjustBoundsNotes(t *testing.T) {
	ctx := context.Background()
	store := mapStore{}
	ledger := &social.TrustLedger{MaxNotes: 3}
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		require.NoError(t, ledger.Adjust(ctx, store, "a", "b", 1, "tick", now.Add(time.Duration(i)*time.Minute)))
	}
	rel := store[[2]string{"a", "b"}]
	assert.Len(t, rel.Notes, 3)
	assert.Equal(t, 10.0, rel.TrustScore)
	assert.Contains(t, rel.Notes[2], "09:09:00")
}

func TestAdjustIgnoresSelfAndRejectsEmpty(t *testing.T) {
	ctx := context.Background()
	store := mapStore{}
	ledger := social.NewTrustLedger()
	now := time.Now()

	require.NoError(t, ledger.Adjust(ctx, store, "a", "a", 1, "mirror", now))
	assert.Empty(t, store)
	assert.Error(t, ledger.Adjust(ctx, store, "", "a", 1, "ghost", now))
}
