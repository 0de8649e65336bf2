package usecases

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/repository"
)

// TripStopInput adds a river visit to a trip
type TripStopInput struct {
	RiverID     string `json:"riverId" binding:"required"`
	DayNumber   int    `json:"dayNumber" binding:"required,min=1"`
	Notes       string `json:"notes"`
	PutInTime   string `json:"putInTime" binding:"omitempty,max=16"`
	TakeOutTime string `json:"takeOutTime" binding:"omitempty,max=16"`
	SortOrder   int    `json:"sortOrder" binding:"min=0"`
}

// CreateTripInput is the payload for planning a trip
type CreateTripInput struct {
	Name      string          `json:"name" binding:"required,max=255"`
	StartDate time.Time       `json:"startDate" binding:"required"`
	EndDate   time.Time       `json:"endDate" binding:"required"`
	Status    string          `json:"status" binding:"omitempty,oneof=planning active completed cancelled"`
	Notes     string          `json:"notes"`
	IsPublic  bool            `json:"isPublic"`
	Stops     []TripStopInput `json:"stops" binding:"omitempty,dive"`
}

// UpdateTripInput is a partial trip update
type UpdateTripInput struct {
	Name      *string    `json:"name" binding:"omitempty,min=1,max=255"`
	StartDate *time.Time `json:"startDate"`
	EndDate   *time.Time `json:"endDate"`
	Status    *string    `json:"status" binding:"omitempty,oneof=planning active completed cancelled"`
	Notes     *string    `json:"notes"`
	IsPublic  *bool      `json:"isPublic"`
}

// TripUseCase manages planned trips. Only owners write; public trips are
// readable by anyone.
type TripUseCase struct {
	trips  *repository.TripRepository
	rivers repository.RiverRepository
	log    *zap.Logger
}

// NewTripUseCase creates a trip use case
func NewTripUseCase(trips *repository.TripRepository, rivers repository.RiverRepository, log *zap.Logger) *TripUseCase {
	return &TripUseCase{trips: trips, rivers: rivers, log: log.Named("trips")}
}

// List returns one page of the user's trips
func (uc *TripUseCase) List(ctx context.Context, userID, status string, page repository.Page) ([]entities.Trip, int64, error) {
	if status != "" && !validTripStatus(status) {
		return nil, 0, entities.Invalid("Status must be one of planning, active, completed, cancelled")
	}
	return uc.trips.ListByUser(ctx, userID, status, page)
}

// Get returns a trip the viewer owns or that is public. viewerID may be
// empty for anonymous requests.
func (uc *TripUseCase) Get(ctx context.Context, viewerID, id string) (*entities.Trip, error) {
	t, err := uc.trips.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.UserID != viewerID && !t.IsPublic {
		return nil, entities.NotFound("Trip")
	}
	return t, nil
}

// Create plans a trip with its initial stops
func (uc *TripUseCase) Create(ctx context.Context, userID string, in CreateTripInput) (*entities.Trip, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, entities.Invalid("Trip name is required")
	}
	if in.EndDate.Before(in.StartDate) {
		return nil, entities.Invalid("End date must not be before start date")
	}
	status := in.Status
	if status == "" {
		status = entities.TripPlanning
	}
	if !validTripStatus(status) {
		return nil, entities.Invalid("Status must be one of planning, active, completed, cancelled")
	}

	t := &entities.Trip{
		UserID:    userID,
		Name:      name,
		StartDate: in.StartDate.UTC(),
		EndDate:   in.EndDate.UTC(),
		Status:    status,
		Notes:     in.Notes,
		IsPublic:  in.IsPublic,
	}
	for _, s := range in.Stops {
		stop, err := uc.newStop(ctx, s)
		if err != nil {
			return nil, err
		}
		t.Stops = append(t.Stops, *stop)
	}

	if err := uc.trips.Create(ctx, t); err != nil {
		return nil, err
	}
	uc.log.Info("Trip created", zap.String("user_id", userID), zap.String("trip_id", t.ID), zap.Int("stops", len(t.Stops)))
	return uc.trips.Get(ctx, t.ID)
}

// Update applies a partial update to the owner's trip
func (uc *TripUseCase) Update(ctx context.Context, userID, id string, in UpdateTripInput) (*entities.Trip, error) {
	t, err := uc.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		t.Name = strings.TrimSpace(*in.Name)
		if t.Name == "" {
			return nil, entities.Invalid("Trip name is required")
		}
	}
	if in.StartDate != nil {
		t.StartDate = in.StartDate.UTC()
	}
	if in.EndDate != nil {
		t.EndDate = in.EndDate.UTC()
	}
	if t.EndDate.Before(t.StartDate) {
		return nil, entities.Invalid("End date must not be before start date")
	}
	if in.Status != nil {
		if !validTripStatus(*in.Status) {
			return nil, entities.Invalid("Status must be one of planning, active, completed, cancelled")
		}
		t.Status = *in.Status
	}
	if in.Notes != nil {
		t.Notes = *in.Notes
	}
	if in.IsPublic != nil {
		t.IsPublic = *in.IsPublic
	}

	if err := uc.trips.Update(ctx, t); err != nil {
		return nil, err
	}
	return uc.trips.Get(ctx, id)
}

// Delete removes the owner's trip and its stops
func (uc *TripUseCase) Delete(ctx context.Context, userID, id string) error {
	if _, err := uc.owned(ctx, userID, id); err != nil {
		return err
	}
	return uc.trips.Delete(ctx, id)
}

// AddStop appends a river visit to the owner's trip
func (uc *TripUseCase) AddStop(ctx context.Context, userID, tripID string, in TripStopInput) (*entities.TripStop, error) {
	if _, err := uc.owned(ctx, userID, tripID); err != nil {
		return nil, err
	}
	stop, err := uc.newStop(ctx, in)
	if err != nil {
		return nil, err
	}
	stop.TripID = tripID
	if err := uc.trips.AddStop(ctx, stop); err != nil {
		return nil, err
	}
	return stop, nil
}

// RemoveStop deletes a stop from the owner's trip
func (uc *TripUseCase) RemoveStop(ctx context.Context, userID, tripID, stopID string) error {
	if _, err := uc.owned(ctx, userID, tripID); err != nil {
		return err
	}
	return uc.trips.RemoveStop(ctx, tripID, stopID)
}

// owned loads a trip for writing. Someone else's public trip is forbidden;
// a private one does not exist for them.
func (uc *TripUseCase) owned(ctx context.Context, userID, id string) (*entities.Trip, error) {
	t, err := uc.trips.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		if t.IsPublic {
			return nil, entities.NewDomainError(entities.CodeForbidden, "Only the trip owner can change it")
		}
		return nil, entities.NotFound("Trip")
	}
	return t, nil
}

func (uc *TripUseCase) newStop(ctx context.Context, in TripStopInput) (*entities.TripStop, error) {
	if in.DayNumber < 1 {
		return nil, entities.Invalid("Day number must be at least 1")
	}
	if _, err := uc.rivers.Get(ctx, in.RiverID); err != nil {
		if isNotFound(err) {
			return nil, entities.Invalid("Unknown river " + in.RiverID)
		}
		return nil, err
	}
	return &entities.TripStop{
		RiverID:     in.RiverID,
		DayNumber:   in.DayNumber,
		Notes:       in.Notes,
		PutInTime:   in.PutInTime,
		TakeOutTime: in.TakeOutTime,
		SortOrder:   in.SortOrder,
	}, nil
}

func validTripStatus(s string) bool {
	switch s {
	case entities.TripPlanning, entities.TripActive, entities.TripCompleted, entities.TripCancelled:
		return true
	}
	return false
}
