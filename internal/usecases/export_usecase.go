package usecases

import (
	"context"
	"fmt"

	"github.com/abelzeko/water-watcher/internal/entities"
	"github.com/abelzeko/water-watcher/internal/export"
	"github.com/abelzeko/water-watcher/internal/repository"
)

// ExportRowLimit caps the rows of a conditions, deals or hazards export
const ExportRowLimit = 5000

// ExportRequest selects what to export
type ExportRequest struct {
	Format  export.Format
	Type    export.Type
	RiverID string
}

// ExportUseCase gathers the rows of an export
type ExportUseCase struct {
	rivers     repository.RiverRepository
	conditions *repository.ConditionRepository
	deals      *repository.DealRepository
	trips      *repository.TripRepository
	hazards    *repository.HazardRepository
}

// NewExportUseCase creates an export use case
func NewExportUseCase(
	rivers repository.RiverRepository,
	conditions *repository.ConditionRepository,
	deals *repository.DealRepository,
	trips *repository.TripRepository,
	hazards *repository.HazardRepository,
) *ExportUseCase {
	return &ExportUseCase{rivers: rivers, conditions: conditions, deals: deals, trips: trips, hazards: hazards}
}

// Dataset loads the rows for a request. Trips are the user's own.
func (uc *ExportUseCase) Dataset(ctx context.Context, userID string, req ExportRequest) (export.Dataset, error) {
	if req.Format == export.FormatGPX && !req.Type.SupportsGPX() {
		return export.Dataset{}, entities.Invalid(fmt.Sprintf("GPX export is only available for rivers and trips, not %s", req.Type))
	}

	ds := export.Dataset{Type: req.Type}
	var err error
	switch req.Type {
	case export.TypeRivers:
		ds.Rows, err = uc.rivers.ListAll(ctx)
	case export.TypeConditions:
		ds.Rows, err = uc.conditions.ListForExport(ctx, req.RiverID, ExportRowLimit)
	case export.TypeDeals:
		ds.Rows, err = uc.deals.ListForExport(ctx, ExportRowLimit)
	case export.TypeTrips:
		ds.Rows, err = uc.trips.ListForExport(ctx, userID)
	case export.TypeHazards:
		var hazards []entities.Hazard
		hazards, _, err = uc.hazards.List(ctx, repository.HazardFilter{
			RiverID: req.RiverID,
			Page:    repository.Page{Number: 1, Size: ExportRowLimit},
		})
		ds.Rows = hazards
	default:
		return export.Dataset{}, entities.Invalid("Unknown export type")
	}
	if err != nil {
		return export.Dataset{}, err
	}
	return ds, nil
}
