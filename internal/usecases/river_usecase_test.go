package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/repository"
)

func newRiverUseCase(db *gorm.DB) *RiverUseCase {
	return NewRiverUseCase(
		repository.NewRiverRepository(db),
		repository.NewConditionRepository(db),
		repository.NewHazardRepository(db),
		repository.NewReviewRepository(db),
		zap.NewNop(),
	)
}

func TestRiverUseCaseGetSummary(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	uc := newRiverUseCase(db)
	river := seedRiver(t, db, "Arkansas River", func(r *entities.River) { r.State = "CO" })
	author := seedUser(t, db, "review@example.com")
	other := seedUser(t, db, "other@example.com")

	summary, err := uc.Get(ctx, river.ID)
	require.NoError(t, err)
	assert.Nil(t, summary.LatestCondition)
	assert.NotNil(t, summary.ActiveHazards)
	assert.Zero(t, summary.ReviewCount)

	conditions := repository.NewConditionRepository(db)
	require.NoError(t, conditions.Create(ctx, &entities.RiverCondition{RiverID: river.ID, FlowRate: ptr(700.0), Source: entities.SourceUSGS, ScrapedAt: testNow.Add(-time.Hour)}))
	require.NoError(t, conditions.Create(ctx, &entities.RiverCondition{RiverID: river.ID, FlowRate: ptr(900.0), Source: entities.SourceUSGS, ScrapedAt: testNow}))
	require.NoError(t, repository.NewHazardRepository(db).Create(ctx, &entities.Hazard{RiverID: river.ID, Type: "strainer", Severity: entities.SeverityWarning, Title: "Wood", IsActive: true}))
	reviews := repository.NewReviewRepository(db)
	require.NoError(t, reviews.Create(ctx, &entities.RiverReview{RiverID: river.ID, UserID: author.ID, Rating: 5, Body: "Great"}))
	require.NoError(t, reviews.Create(ctx, &entities.RiverReview{RiverID: river.ID, UserID: other.ID, Rating: 4, Body: "Good"}))

	summary, err = uc.Get(ctx, river.ID)
	require.NoError(t, err)
	require.NotNil(t, summary.LatestCondition)
	assert.Equal(t, 900.0, *summary.LatestCondition.FlowRate)
	assert.Len(t, summary.ActiveHazards, 1)
	assert.InDelta(t, 4.5, summary.AverageRating, 0.001)
	assert.EqualValues(t, 2, summary.ReviewCount)

	_, err = uc.Get(ctx, "missing")
	assert.ErrorIs(t, err, entities.ErrNotFound)
}

func TestRiverUseCaseCRUD(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	uc := newRiverUseCase(db)

	created, err := uc.Create(ctx, CreateRiverInput{Name: "  Lochsa River ", State: "ID", USGSGaugeID: ptr("13337000"), AWID: ptr(" ")})
	require.NoError(t, err)
	assert.Equal(t, "Lochsa River", created.Name)
	assert.Nil(t, created.AWID)

	_, err = uc.Create(ctx, CreateRiverInput{Name: " ", State: "ID"})
	assert.ErrorIs(t, err, entities.ErrValidation)

	updated, err := uc.Update(ctx, created.ID, UpdateRiverInput{Difficulty: ptr("Class IV"), USGSGaugeID: ptr("")})
	require.NoError(t, err)
	assert.Equal(t, "Class IV", updated.Difficulty)
	assert.Nil(t, updated.USGSGaugeID)
	assert.Equal(t, "ID", updated.State)

	_, err = uc.Update(ctx, created.ID, UpdateRiverInput{Name: ptr("")})
	assert.ErrorIs(t, err, entities.ErrValidation)

	require.NoError(t, uc.Delete(ctx, created.ID))
	assert.ErrorIs(t, uc.Delete(ctx, created.ID), entities.ErrNotFound)
}

func TestRiverUseCaseConditionsLimit(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	uc := newRiverUseCase(db)
	river := seedRiver(t, db, "Middle Fork Salmon")

	conditions := repository.NewConditionRepository(db)
	for i := 0; i < 3; i++ {
		require.NoError(t, conditions.Create(ctx, &entities.RiverCondition{
			RiverID: river.ID, FlowRate: ptr(float64(1000 + i)), Source: entities.SourceUSGS,
			ScrapedAt: testNow.Add(time.Duration(i) * time.Hour),
		}))
	}

	got, err := uc.Conditions(ctx, river.ID, -4)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1002.0, *got[0].FlowRate)

	got, err = uc.Conditions(ctx, river.ID, 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = uc.Conditions(ctx, "nope", 10)
	assert.ErrorIs(t, err, entities.ErrNotFound)

	_, _, err = uc.ListHazards(ctx, "extreme", repository.NewPage(1, 10))
	assert.ErrorIs(t, err, entities.ErrValidation)
}

func TestFormatRiverInfo(t *testing.T) {
	uc := &RiverUseCase{}
	assert.Equal(t, "No information available for this river.", uc.FormatRiverInfo(nil))

	text := uc.FormatRiverInfo(&entities.RiverSummary{
		River: entities.River{Name: "Rogue River", State: "OR", Difficulty: "Class III"},
		LatestCondition: &entities.RiverCondition{
			FlowRate:    ptr(2150.0),
			WaterTemp:   ptr(58.3),
			Quality:     ptr(entities.QualityExcellent),
			Runnability: ptr(entities.RunnabilityTooLow),
			Source:      entities.SourceUSGS,
			ScrapedAt:   testNow,
		},
		ActiveHazards: []entities.Hazard{{Title: "Wood"}},
		AverageRating: 4.5,
		ReviewCount:   4,
	})
	assert.Contains(t, text, "Information for Rogue River (OR):")
	assert.Contains(t, text, "🟢 Quality: excellent")
	assert.Contains(t, text, "Runnability: too low")
	assert.Contains(t, text, "Flow: 2150 cfs")
	assert.Contains(t, text, "58.3 °F")
	assert.NotContains(t, text, "Gauge height")
	assert.Contains(t, text, "1 active hazard(s)")
	assert.Contains(t, text, "⭐ 4.5 from 4 review(s)")

	empty := uc.FormatRiverInfo(&entities.RiverSummary{River: entities.River{Name: "Quiet Creek", State: "WA"}})
	assert.Contains(t, empty, "No condition reports yet.")
}

func TestFormatHazards(t *testing.T) {
	uc := &RiverUseCase{}
	assert.Equal(t, "✅ No active hazards on Rogue River.", uc.FormatHazards("Rogue River", nil))

	until := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	text := uc.FormatHazards("Rogue River", []entities.Hazard{
		{Title: "Ramp closed", Severity: entities.SeverityDanger, ExpiresAt: &until},
		{Title: "Log", Severity: entities.SeverityInfo, Description: "River left"},
	})
	assert.Contains(t, text, "🔴 Ramp closed [danger]")
	assert.Contains(t, text, "Until 2025-07-01")
	assert.Contains(t, text, "ℹ️ Log [info]")
	assert.Contains(t, text, "River left")
}
