// Package dispatch delivers due datapoints to student apps. A Producer
// claims a block of due items from the store every cycle and fans them out
// to a fixed pool of delivery workers; each worker POSTs the datapoint
// payload and reports the outcome back. All delivery network I/O happens
// here; the scheduling core never blocks on it.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/me/capsim/internal/config"
	"github.com/me/capsim/internal/store"
	"github.com/me/capsim/pkg/model"
)

// Producer claims and delivers due datapoints.
type Producer struct {
	store  store.Store
	client *http.Client
	config config.DispatchConfig
	logger *slog.Logger
	now    func() time.Time
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewProducer creates a dispatch producer.
func NewProducer(st store.Store, cfg config.DispatchConfig, logger *slog.Logger) *Producer {
	return &Producer{
		store:  st,
		client: &http.Client{Timeout: cfg.RequestTimeout.Std()},
		config: cfg,
		logger: logger.With("component", "dispatch"),
		now:    func() time.Time { return time.Now().UTC() },
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Run starts the claim loop. Blocks until ctx is cancelled or Stop is called.
func (p *Producer) Run(ctx context.Context) error {
	p.logger.Info("dispatch producer started",
		"producer_interval", p.config.ProducerInterval.Std(),
		"block_size", p.config.BlockSize,
		"workers", p.config.Workers,
	)
	ticker := time.NewTicker(p.config.ProducerInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("dispatch producer stopping (context cancelled)")
			close(p.doneCh)
			return ctx.Err()
		case <-p.stopCh:
			p.logger.Info("dispatch producer stopping (stop called)")
			close(p.doneCh)
			return nil
		case <-ticker.C:
			if err := p.Cycle(ctx); err != nil {
				p.logger.Error("dispatch cycle", "error", err)
			}
		}
	}
}

// Stop shuts down the producer and waits for the current cycle to finish.
func (p *Producer) Stop() error {
	close(p.stopCh)
	<-p.doneCh
	return nil
}

// Cycle claims one block of due items and delivers them in parallel.
func (p *Producer) Cycle(ctx context.Context) error {
	claimed, err := p.store.ClaimDue(ctx, p.now(), p.config.BlockSize)
	if err != nil {
		return fmt.Errorf("claim due: %w", err)
	}
	if len(claimed) == 0 {
		return nil
	}
	p.logger.Debug("claimed block", "count", len(claimed))

	jobs := make(chan model.DueDatapoint)
	var wg sync.WaitGroup
	for i := 0; i < p.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range jobs {
				p.deliver(ctx, d)
			}
		}()
	}
	for _, d := range claimed {
		jobs <- d
	}
	close(jobs)
	wg.Wait()
	return nil
}

// deliver performs one request and ingests the outcome. A result arriving
// for an item a reset already deleted is logged and discarded, never fatal.
func (p *Producer) deliver(ctx context.Context, d model.DueDatapoint) {
	outcome := p.request(ctx, d)

	err := p.store.ReportResult(ctx, d.ID, outcome)
	switch {
	case err == nil:
		p.logger.Debug("delivery recorded",
			"due_id", d.ID, "state", outcome.State, "status", outcome.Status, "elapsed", outcome.Elapsed)
	case errors.Is(err, model.ErrNotFound):
		p.logger.Warn("result for deleted due datapoint discarded", "due_id", d.ID)
	default:
		p.logger.Error("report result", "due_id", d.ID, "error", err)
	}
}

// request POSTs the datapoint payload to the student app and builds the
// outcome record. HTTP errors are fail outcomes, not Go errors: the run
// keeps going and the student simply scores a failed delivery.
func (p *Producer) request(ctx context.Context, d model.DueDatapoint) model.Outcome {
	payload, err := p.payload(ctx, d)
	if err != nil {
		return model.Outcome{
			State:     model.DueStateFail,
			Exception: fmt.Sprintf("load datapoint: %v", err),
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, strings.NewReader(payload))
	if err != nil {
		return model.Outcome{
			State:     model.DueStateFail,
			Exception: fmt.Sprintf("build request: %v", err),
		}
	}
	req.Header.Set("Content-Type", "application/json")

	start := p.now()
	resp, err := p.client.Do(req)
	elapsed := p.now().Sub(start).Seconds()

	if err != nil {
		timeout := false
		var urlErr interface{ Timeout() bool }
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			timeout = true
		}
		return model.Outcome{
			State:     model.DueStateFail,
			Exception: err.Error(),
			Elapsed:   elapsed,
			Timeout:   timeout,
		}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	outcome := model.Outcome{
		Content: string(body),
		Elapsed: elapsed,
		Status:  resp.StatusCode,
	}
	if readErr != nil {
		outcome.State = model.DueStateFail
		outcome.Exception = fmt.Sprintf("read response: %v", readErr)
		return outcome
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		outcome.State = model.DueStateSuccess
	} else {
		outcome.State = model.DueStateFail
		outcome.Exception = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return outcome
}

// payload loads the datapoint body for a due item.
func (p *Producer) payload(ctx context.Context, d model.DueDatapoint) (string, error) {
	dp, err := p.store.GetDatapoint(ctx, d.DatapointID)
	if err != nil {
		return "", err
	}
	if dp == nil {
		return "", fmt.Errorf("datapoint %s: %w", d.DatapointID, model.ErrNotFound)
	}
	return dp.Data, nil
}
