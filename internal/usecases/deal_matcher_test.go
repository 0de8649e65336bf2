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

func TestScoreMatch(t *testing.T) {
	raftFilter := &entities.DealFilter{
		Categories: entities.StringList{"raft"},
		Keywords:   entities.StringList{"nrs", "raft"},
		MaxPrice:   ptr(2000.0),
		Regions:    entities.StringList{"bend"},
	}

	tests := []struct {
		name   string
		deal   entities.GearDeal
		filter *entities.DealFilter
		want   int
	}{
		{
			name:   "strong match",
			deal:   entities.GearDeal{Title: "NRS Otter raft 14ft", Price: ptr(1500.0), Category: "raft", Region: "bend"},
			filter: raftFilter,
			want:   30 + 20 + 20 + 2 + 10,
		},
		{
			name:   "over max price",
			deal:   entities.GearDeal{Title: "NRS raft", Price: ptr(2500.0), Category: "raft", Region: "bend"},
			filter: raftFilter,
			want:   0,
		},
		{
			name:   "wrong region",
			deal:   entities.GearDeal{Title: "NRS raft", Price: ptr(500.0), Category: "raft", Region: "portland"},
			filter: raftFilter,
			want:   0,
		},
		{
			name:   "no keyword hit",
			deal:   entities.GearDeal{Title: "Carbon kayak paddle", Price: ptr(100.0), Category: "paddle", Region: "bend"},
			filter: raftFilter,
			want:   0,
		},
		{
			name:   "keyword in description",
			deal:   entities.GearDeal{Title: "Boat for sale", Description: "NRS frame included", Category: "other"},
			filter: raftFilter,
			want:   0 + 10 + 0 + 0,
		},
		{
			name:   "empty filter with price",
			deal:   entities.GearDeal{Title: "Anything", Price: ptr(10.0)},
			filter: &entities.DealFilter{},
			want:   15 + 20 + 10 + 5,
		},
		{
			name:   "empty filter without price",
			deal:   entities.GearDeal{Title: "Anything"},
			filter: &entities.DealFilter{},
			want:   15 + 20 + 5,
		},
		{
			name: "keyword bonus capped",
			deal: entities.GearDeal{Title: "a b c d e f"},
			filter: &entities.DealFilter{
				Keywords: entities.StringList{"a", "b", "c", "d", "e", "f"},
			},
			want: 15 + 40 + 5,
		},
		{
			name:   "zero max price has no bonus",
			deal:   entities.GearDeal{Title: "free raft", Price: ptr(0.0)},
			filter: &entities.DealFilter{MaxPrice: ptr(0.0)},
			want:   15 + 20 + 20 + 5,
		},
		{
			name: "total capped at 100",
			deal: entities.GearDeal{Title: "nrs raft frame oars pump", Price: ptr(0.0), Category: "raft", Region: "bend"},
			filter: &entities.DealFilter{
				Categories: entities.StringList{"raft"},
				Keywords:   entities.StringList{"nrs", "raft", "frame", "oars", "pump"},
				MaxPrice:   ptr(1000.0),
				Regions:    entities.StringList{"bend"},
			},
			want: 100,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScoreMatch(&tt.deal, tt.filter))
		})
	}
}

func listing(title, url string, price float64, category string) entities.ScrapedItem {
	return entities.ScrapedItem{
		Source:    entities.SourceCraigslist,
		ScrapedAt: testNow,
		Deal: &entities.DealListing{
			Title:    title,
			URL:      url,
			Price:    ptr(price),
			Category: category,
			Region:   "bend",
		},
	}
}

func TestDealMatcherMatch(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	deals := repository.NewDealRepository(db)
	logs := repository.NewScrapeLogRepository(db)
	user := seedUser(t, db, "rafter@example.com")

	matcher := NewDealMatcher(db, deals, logs, zap.NewNop())
	matcher.now = fixedNow

	t.Run("no active filters", func(t *testing.T) {
		got, err := matcher.Match(ctx, []entities.ScrapedItem{listing("NRS raft", "https://bend.craigslist.org/0.html", 900, "raft")})
		require.NoError(t, err)
		assert.Nil(t, got)
		exists, err := deals.ExistsURL(ctx, "https://bend.craigslist.org/0.html")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	require.NoError(t, deals.CreateFilter(ctx, &entities.DealFilter{
		UserID:     user.ID,
		Name:       "Rafts",
		Categories: entities.StringList{"raft"},
		Keywords:   entities.StringList{"raft"},
		MaxPrice:   ptr(2000.0),
		IsActive:   true,
	}))
	require.NoError(t, deals.CreateFilter(ctx, &entities.DealFilter{
		UserID:   user.ID,
		Name:     "Paused",
		IsActive: false,
	}))

	items := []entities.ScrapedItem{
		listing("NRS raft", "https://bend.craigslist.org/1.html", 1500, "raft"),
		listing("NRS raft", "https://bend.craigslist.org/1.html", 1500, "raft"),
		listing("Raft pump", "https://bend.craigslist.org/2.html", 40, "other"),
		listing("Kayak", "https://bend.craigslist.org/3.html", 300, "kayak"),
		{Source: entities.SourceCraigslist},
	}

	got, err := matcher.Match(ctx, items)
	require.NoError(t, err)
	require.Len(t, got, 1, "only the raft clears the threshold")
	assert.Equal(t, "NRS raft", got[0].DealTitle)
	assert.Equal(t, "Rafts", got[0].FilterName)
	assert.Equal(t, user.ID, got[0].UserID)
	assert.GreaterOrEqual(t, got[0].Score, NotificationThreshold)
	assert.True(t, got[0].Notify)

	stored, total, err := deals.ListMatchesForUser(ctx, user.ID, repository.NewPage(1, 20))
	require.NoError(t, err)
	assert.EqualValues(t, 2, total, "the pump scores above zero and is stored")
	assert.Len(t, stored, 2)

	_, dealTotal, err := deals.List(ctx, repository.DealQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, dealTotal)

	// known URLs are skipped on the next run
	got, err = matcher.Match(ctx, items)
	require.NoError(t, err)
	assert.Empty(t, got)

	runs, err := logs.RecentBySource(ctx, entities.SourceDealMatch, 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	counts := []int{runs[0].ItemCount, runs[1].ItemCount}
	assert.ElementsMatch(t, []int{3, 0}, counts)
}

func TestDealMatcherRetriesAfterFailedBatch(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	deals := repository.NewDealRepository(db)
	logs := repository.NewScrapeLogRepository(db)
	user := seedUser(t, db, "retry@example.com")
	require.NoError(t, deals.CreateFilter(ctx, &entities.DealFilter{
		UserID: user.ID, Name: "Rafts", Categories: entities.StringList{"raft"}, Keywords: entities.StringList{"raft"}, IsActive: true,
	}))

	matcher := NewDealMatcher(db, deals, logs, zap.NewNop())
	matcher.now = fixedNow
	items := []entities.ScrapedItem{listing("Aire raft", "https://bend.craigslist.org/9.html", 1200, "raft")}

	require.NoError(t, db.Exec("ALTER TABLE deal_filter_matches RENAME TO deal_filter_matches_offline").Error)
	_, err := matcher.Match(ctx, items)
	require.Error(t, err)
	require.NoError(t, db.Exec("ALTER TABLE deal_filter_matches_offline RENAME TO deal_filter_matches").Error)

	exists, err := deals.ExistsURL(ctx, "https://bend.craigslist.org/9.html")
	require.NoError(t, err)
	assert.False(t, exists, "the deal is rolled back with its matches")

	got, err := matcher.Match(ctx, items)
	require.NoError(t, err)
	require.Len(t, got, 1)
	_, total, err := deals.ListMatchesForUser(ctx, user.ID, repository.NewPage(1, 20))
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	runs, err := logs.RecentBySource(ctx, entities.SourceDealMatch, 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
}
