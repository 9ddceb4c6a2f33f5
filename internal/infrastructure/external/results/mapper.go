package results

import (
	"fmt"
	"strings"

	"github.com/runhub/run-community-hub/internal/domain/run"
)

// ══════════════════════════════════════════════════════════════════════════════
// DTO MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// Mapper converts pipeline DTOs into domain runs.
type Mapper struct{}

// NewMapper creates a new Mapper.
func NewMapper() *Mapper {
	return &Mapper{}
}

// MapRun converts one candidate run. The result carries the imported-owner
// sentinel: attribution to a real account happens later, via claim or
// auto-link. Normalize canonicalizes the time string and defaults the
// board kind and mode; Validate rejects runs the corpus cannot hold.
func (m *Mapper) MapRun(dto RunDTO) (*run.Run, error) {
	if strings.TrimSpace(dto.ID) == "" {
		return nil, fmt.Errorf("candidate run without id")
	}

	r := &run.Run{
		ID:                 dto.ID,
		Owner:              run.ImportedOwner(),
		OwnerDisplayName:   dto.PlayerName,
		CoOwnerDisplayName: dto.CoPlayerName,
		BoardKind:          run.BoardKind(dto.BoardKind),
		CategoryRef:        dto.CategoryRef,
		PlatformRef:        dto.PlatformRef,
		LevelRef:           dto.LevelRef,
		Mode:               run.Mode(dto.Mode),
		CategoryName:       dto.CategoryName,
		PlatformName:       dto.PlatformName,
		Time:               dto.Time,
		SubmittedDate:      dto.SubmittedAt,
		Verified:           dto.Verified,
		Obsolete:           dto.Obsolete,
	}

	if err := r.Normalize(); err != nil {
		return nil, fmt.Errorf("candidate run %s: %w", dto.ID, err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("candidate run %s: %w", dto.ID, err)
	}

	return r, nil
}

// MapRuns converts a batch, collecting per-run errors instead of aborting:
// one malformed candidate must not sink an import page.
func (m *Mapper) MapRuns(dtos []RunDTO) ([]*run.Run, []error) {
	runs := make([]*run.Run, 0, len(dtos))
	var errs []error

	for _, dto := range dtos {
		r, err := m.MapRun(dto)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		runs = append(runs, r)
	}

	return runs, errs
}
