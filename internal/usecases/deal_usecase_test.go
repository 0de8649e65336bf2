package usecases

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/repository"
)

func TestDealFiltersAreOwnerScoped(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	uc := NewDealUseCase(repository.NewDealRepository(db), zap.NewNop())
	owner := seedUser(t, db, "owner@example.com")
	stranger := seedUser(t, db, "stranger@example.com")

	f, err := uc.CreateFilter(ctx, owner.ID, DealFilterInput{
		Name:       " Cataraft ",
		Keywords:   []string{"Cataraft", " cataraft", "NRS"},
		Categories: []string{"raft"},
		MaxPrice:   ptr(3000.0),
	})
	require.NoError(t, err)
	assert.Equal(t, "Cataraft", f.Name)
	assert.Equal(t, entities.StringList{"cataraft", "nrs"}, f.Keywords)
	assert.True(t, f.IsActive)

	_, err = uc.CreateFilter(ctx, owner.ID, DealFilterInput{Name: "Empty", Keywords: []string{" "}})
	assert.ErrorIs(t, err, entities.ErrValidation)

	_, err = uc.GetFilter(ctx, stranger.ID, f.ID)
	assert.ErrorIs(t, err, entities.ErrNotFound)
	_, err = uc.UpdateFilter(ctx, stranger.ID, f.ID, UpdateDealFilterInput{IsActive: ptr(false)})
	assert.ErrorIs(t, err, entities.ErrNotFound)
	assert.ErrorIs(t, uc.DeleteFilter(ctx, stranger.ID, f.ID), entities.ErrNotFound)

	updated, err := uc.UpdateFilter(ctx, owner.ID, f.ID, UpdateDealFilterInput{MaxPrice: ptr(0.0), IsActive: ptr(false)})
	require.NoError(t, err)
	assert.Nil(t, updated.MaxPrice)
	assert.False(t, updated.IsActive)

	list, err := uc.ListFilters(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].IsActive)

	require.NoError(t, uc.DeleteFilter(ctx, owner.ID, f.ID))
	list, err = uc.ListFilters(ctx, owner.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDealListAndFormat(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := repository.NewDealRepository(db)
	uc := NewDealUseCase(repo, zap.NewNop())

	require.NoError(t, repo.Create(ctx, &entities.GearDeal{Title: "NRS Otter 14 raft", Price: ptr(1800.0), URL: "https://boise.craigslist.org/1.html", Category: entities.CategoryRaft, Region: "boise", IsActive: true}))
	require.NoError(t, repo.Create(ctx, &entities.GearDeal{Title: "Werner paddle", URL: "https://denver.craigslist.org/2.html", Category: entities.CategoryPaddle, Region: "denver", IsActive: true}))

	deals, total, err := uc.List(ctx, repository.DealQuery{Category: "raft", Page: repository.NewPage(1, 10)})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, deals, 1)

	text := uc.FormatDeals(deals)
	assert.Contains(t, text, "NRS Otter 14 raft - $1800 (boise)")
	assert.Contains(t, text, "https://boise.craigslist.org/1.html")
	assert.Equal(t, "No gear deals right now. Check back later!", uc.FormatDeals(nil))
}
