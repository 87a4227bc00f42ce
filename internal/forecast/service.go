package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
)

// Service answers catalog questions for a set of models and keeps their
// nowcasts in the store.
type Service struct {
	log       *slog.Logger
	clock     clockwork.Clock
	store     Store
	providers map[string]Provider
}

// NewService creates a new Service.
func NewService(log *slog.Logger, clock clockwork.Clock, store Store, providers []Provider) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Model().Name] = p
	}
	return &Service{
		log:       log,
		clock:     clock,
		store:     store,
		providers: byName,
	}
}

// Models returns every registered model.
func (s *Service) Models() []Model {
	return Models()
}

// Model returns one registered model.
func (s *Service) Model(name string) (Model, error) {
	return LookupModel(name)
}

// Tracked returns the names of models the service has a provider for.
func (s *Service) Tracked() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (s *Service) provider(model string) (Provider, error) {
	p, ok := s.providers[model]
	if !ok {
		if _, err := LookupModel(model); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrNotTracked, model)
	}
	return p, nil
}

// Nowcast walks the catalog newest first and returns the newest (day,
// cycle) holding at least one file.
func (s *Service) Nowcast(ctx context.Context, model string) (Nowcast, error) {
	p, err := s.provider(model)
	if err != nil {
		return Nowcast{}, err
	}

	days, err := p.ListDays(ctx)
	if err != nil {
		return Nowcast{}, catalogErr("list days", err)
	}

	var seen []Position
	for _, day := range slices.Backward(days) {
		cycles, err := p.ListForecastCycles(ctx, day)
		if err != nil {
			return Nowcast{}, catalogErr("list cycles", err)
		}
		for _, cycle := range slices.Backward(cycles) {
			files, err := p.ListFiles(ctx, day, cycle)
			if err != nil {
				return Nowcast{}, catalogErr("list files", err)
			}
			seen = append(seen, Position{Cursor: Cursor{Day: day, Cycle: cycle}, Files: len(files)})
			if len(files) > 0 {
				break
			}
		}
		if len(seen) > 0 && seen[len(seen)-1].Files > 0 {
			break
		}
	}

	pos, ok := SelectNowcast(seen)
	if !ok {
		return Nowcast{}, fmt.Errorf("%w: %s", ErrNoNowcast, model)
	}
	return Nowcast{
		Model:     model,
		Cursor:    pos.Cursor,
		Files:     pos.Files,
		Timestamp: s.clock.Now().UTC(),
	}, nil
}

// RefreshNowcast computes the nowcast of model and stores it. On failure
// the last stored nowcast is kept.
func (s *Service) RefreshNowcast(ctx context.Context, model string) error {
	n, err := s.Nowcast(ctx, model)
	if err != nil {
		return err
	}
	s.log.Debug("nowcast: refreshed", "model", model, "day", n.Cursor.Day, "cycle", n.Cursor.Cycle, "files", n.Files)
	s.store.SaveNowcast(n)
	return nil
}

// GetNowcast delegates to the underlying store.
func (s *Service) GetNowcast(model string) (Nowcast, error) {
	return s.store.GetNowcast(model)
}

// CatalogStatus returns the HTTP status of a tracked model's catalog root.
func (s *Service) CatalogStatus(ctx context.Context, model string) (int, error) {
	p, err := s.provider(model)
	if err != nil {
		return 0, err
	}
	return p.Status(ctx)
}

// LatestSession delegates to the underlying store.
func (s *Service) LatestSession() (SessionStatus, error) {
	return s.store.LatestStatus()
}

// SessionRange delegates to the underlying store.
func (s *Service) SessionRange(from, to time.Time) ([]SessionStatus, error) {
	return s.store.StatusRange(from, to)
}
