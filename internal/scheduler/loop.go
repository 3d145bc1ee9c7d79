// Package scheduler drives the simulator state machine. Operator actions
// only write requested statuses ("start", "reset"); the polling loop here
// observes and settles them, so a transition is never applied inside the
// mutation that asked for it.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/capsim/internal/capacity"
	"github.com/me/capsim/internal/config"
	"github.com/me/capsim/internal/schedule"
	"github.com/me/capsim/internal/store"
	"github.com/me/capsim/pkg/model"
)

// Config holds scheduler loop configuration. ProducerInterval and BlockSize
// feed the capacity check before any schedule is committed.
type Config struct {
	PollInterval     time.Duration
	ProducerInterval time.Duration
	BlockSize        int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	d := config.DefaultDispatchConfig()
	return Config{
		PollInterval:     2 * time.Second,
		ProducerInterval: d.ProducerInterval.Std(),
		BlockSize:        d.BlockSize,
	}
}

// Loop is the polling scheduler that settles simulator lifecycle requests.
type Loop struct {
	store  store.Store
	config Config
	logger *slog.Logger
	now    func() time.Time
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewLoop creates a new scheduler loop.
func NewLoop(st store.Store, cfg Config, logger *slog.Logger) *Loop {
	return &Loop{
		store:  st,
		config: cfg,
		logger: logger.With("component", "scheduler"),
		now:    func() time.Time { return time.Now().UTC() },
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the scheduling loop. Blocks until ctx is cancelled or Stop is called.
func (l *Loop) Start(ctx context.Context) error {
	l.logger.Info("scheduler started", "poll_interval", l.config.PollInterval)
	ticker := time.NewTicker(l.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("scheduler stopping (context cancelled)")
			close(l.doneCh)
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("scheduler stopping (stop called)")
			close(l.doneCh)
			return nil
		case <-ticker.C:
			if err := l.Tick(ctx); err != nil {
				l.logger.Error("tick error", "error", err)
			}
		}
	}
}

// Stop gracefully shuts down the scheduler and waits for the current tick to finish.
func (l *Loop) Stop() error {
	close(l.stopCh)
	<-l.doneCh
	return nil
}

// Tick runs a single scheduling iteration.
func (l *Loop) Tick(ctx context.Context) error {
	// Phase 1: settle start requests (capacity check, schedule, bulk insert).
	if err := l.settleStarts(ctx); err != nil {
		return fmt.Errorf("phase 1 (start): %w", err)
	}

	// Phase 2: settle reset requests (drop due datapoints, back to stopped).
	if err := l.settleResets(ctx); err != nil {
		return fmt.Errorf("phase 2 (reset): %w", err)
	}

	// Phase 3: end started simulators whose window has closed.
	if err := l.endExpired(ctx); err != nil {
		return fmt.Errorf("phase 3 (end): %w", err)
	}

	return nil
}

// settleStarts observes simulators in "start" and brings them to "started".
// A capacity or schedule failure leaves the simulator in "start" with
// nothing written, so the operator sees the request stuck with the logged
// reason rather than a half-applied run.
func (l *Loop) settleStarts(ctx context.Context) error {
	requested, err := l.store.GetSimulatorsByStatus(ctx, model.StatusStart)
	if err != nil {
		return err
	}

	for _, sim := range requested {
		if err := l.startSimulator(ctx, sim); err != nil {
			l.logger.Error("start simulator", "simulator_id", sim.ID, "name", sim.Name, "error", err)
		}
	}
	return nil
}

// startSimulator validates capacity, generates the full schedule, and
// settles the simulator into "started" in one transaction.
func (l *Loop) startSimulator(ctx context.Context, sim *model.Simulator) error {
	now := l.now()

	datapoints, err := l.store.ListDatapoints(ctx, sim.ID)
	if err != nil {
		return fmt.Errorf("list datapoints: %w", err)
	}
	apps, err := l.store.ListStudentApps(ctx, sim.ID)
	if err != nil {
		return fmt.Errorf("list student apps: %w", err)
	}

	eligible := 0
	for _, app := range apps {
		if app.Eligible() {
			eligible++
		}
	}

	if sim.Ends == nil {
		return &model.ScheduleError{Reason: "simulator has no end time"}
	}
	interval, err := schedule.Interval(now, *sim.Ends, len(datapoints))
	if err != nil {
		return err
	}

	// Backpressure guard: reject before writing anything rather than let a
	// producer backlog corrupt delivery timing mid-run.
	if err := capacity.Check(eligible, interval, l.config.ProducerInterval, l.config.BlockSize); err != nil {
		return err
	}

	batch, err := schedule.Generate(sim, datapoints, now, apps)
	if err != nil {
		return err
	}

	applied, err := l.store.StartSimulator(ctx, sim.ID, now, interval, batch)
	if err != nil {
		return fmt.Errorf("persist schedule: %w", err)
	}
	if !applied {
		// Another tick or a reset got there first; nothing was written.
		l.logger.Debug("start already settled", "simulator_id", sim.ID)
		return nil
	}

	l.logger.Info("simulator started",
		"simulator_id", sim.ID,
		"name", sim.Name,
		"students", eligible,
		"datapoints", len(datapoints),
		"interval", interval,
		"due_datapoints", len(batch),
	)
	return nil
}

// settleResets observes simulators in "reset", deletes their due datapoints
// wholesale, and returns them to "stopped".
func (l *Loop) settleResets(ctx context.Context) error {
	requested, err := l.store.GetSimulatorsByStatus(ctx, model.StatusReset)
	if err != nil {
		return err
	}

	for _, sim := range requested {
		applied, err := l.store.ResetSimulator(ctx, sim.ID)
		if err != nil {
			l.logger.Error("reset simulator", "simulator_id", sim.ID, "error", err)
			continue
		}
		if applied {
			l.logger.Info("simulator reset", "simulator_id", sim.ID, "name", sim.Name)
		}
	}
	return nil
}

// endExpired transitions started simulators past their end time to "ended".
// Due datapoints and results are retained for scoring.
func (l *Loop) endExpired(ctx context.Context) error {
	started, err := l.store.GetSimulatorsByStatus(ctx, model.StatusStarted)
	if err != nil {
		return err
	}

	now := l.now()
	for _, sim := range started {
		if sim.Ends == nil || now.Before(*sim.Ends) {
			continue
		}
		applied, err := l.store.SetSimulatorStatus(ctx, sim.ID, model.StatusStarted, model.StatusEnded)
		if err != nil {
			l.logger.Error("end simulator", "simulator_id", sim.ID, "error", err)
			continue
		}
		if applied {
			l.logger.Info("simulator ended", "simulator_id", sim.ID, "name", sim.Name, "ends", *sim.Ends)
		}
	}
	return nil
}

// EnrollStudent schedules due datapoints for a single student joining a
// simulator that is already running. The due anchor is "now" but the
// spacing reuses the run-level interval, so the newcomer's grid drifts from
// the cohort's absolute times while keeping the same cadence. Other
// students' due datapoints are untouched.
func (l *Loop) EnrollStudent(ctx context.Context, sim *model.Simulator, app *model.StudentApp) (int, error) {
	if sim.Status != model.StatusStarted {
		return 0, nil
	}
	if !app.Eligible() {
		return 0, nil
	}

	datapoints, err := l.store.ListDatapoints(ctx, sim.ID)
	if err != nil {
		return 0, fmt.Errorf("list datapoints: %w", err)
	}

	// Anchor at now, but keep the interval computed at run start so the
	// newcomer's cadence matches the cohort's.
	batch, err := schedule.GenerateWithInterval(sim, datapoints, l.now(), sim.Interval, []model.StudentApp{*app})
	if err != nil {
		return 0, err
	}
	if err := l.store.CreateDueDatapoints(ctx, batch); err != nil {
		return 0, fmt.Errorf("persist schedule: %w", err)
	}

	l.logger.Info("late student scheduled",
		"simulator_id", sim.ID,
		"student_app_id", app.ID,
		"due_datapoints", len(batch),
	)
	return len(batch), nil
}
