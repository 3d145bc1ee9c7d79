package store

import (
	"context"
	"time"

	"github.com/me/capsim/pkg/model"
)

// Store defines the persistence layer for capsim entities, including the
// durable dispatch queue of due datapoints.
type Store interface {
	// Simulator CRUD
	CreateSimulator(ctx context.Context, sim *model.Simulator) error
	GetSimulator(ctx context.Context, id string) (*model.Simulator, error)
	ListSimulators(ctx context.Context, opts model.ListOptions) ([]*model.Simulator, int, error)
	GetSimulatorsByStatus(ctx context.Context, status model.SimulatorStatus) ([]*model.Simulator, error)
	UpdateSimulator(ctx context.Context, sim *model.Simulator) error
	DeleteSimulator(ctx context.Context, id string) error

	// SetSimulatorStatus applies status only if the simulator is currently
	// in from (compare-and-swap). Returns false when the guard fails, which
	// serializes concurrent transitions without locking.
	SetSimulatorStatus(ctx context.Context, id string, from, to model.SimulatorStatus) (bool, error)

	// StartSimulator settles an observed start request in one transaction:
	// status start→started, starts/interval recorded, and the full due
	// datapoint batch inserted. Either everything lands or nothing does.
	// Returns false without writing anything if the status guard fails.
	StartSimulator(ctx context.Context, id string, starts time.Time, interval time.Duration, batch []model.DueDatapoint) (bool, error)

	// ResetSimulator settles an observed reset request in one transaction:
	// all due datapoints deleted, status reset→stopped, starts/interval
	// cleared. Returns false if the simulator was not in reset.
	ResetSimulator(ctx context.Context, id string) (bool, error)

	// Datapoint operations
	CreateDatapoints(ctx context.Context, dps []model.Datapoint) error
	GetDatapoint(ctx context.Context, id string) (*model.Datapoint, error)
	ListDatapoints(ctx context.Context, simulatorID string) ([]model.Datapoint, error)

	// StudentApp operations
	CreateStudentApp(ctx context.Context, app *model.StudentApp) error
	GetStudentApp(ctx context.Context, id string) (*model.StudentApp, error)
	ListStudentApps(ctx context.Context, simulatorID string) ([]model.StudentApp, error)

	// Due datapoint operations (the dispatch queue)
	CreateDueDatapoints(ctx context.Context, batch []model.DueDatapoint) error
	GetDueDatapoint(ctx context.Context, id string) (*model.DueDatapoint, error)
	ListDueBySimulator(ctx context.Context, simulatorID string) ([]model.DueDatapoint, error)

	// ClaimDue atomically transitions up to limit items whose due time has
	// passed from due to queued and returns them, oldest first. Each item
	// is handed to at most one claimant.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]model.DueDatapoint, error)

	// ReportResult writes the response record and settles a queued item as
	// success or fail. Reporting against an item deleted by a reset returns
	// model.ErrNotFound; the caller logs and discards it.
	ReportResult(ctx context.Context, id string, outcome model.Outcome) error

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
