package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	appconfig "fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/internal/series"
	"fundingflow/internal/signal"
	"fundingflow/logger"
)

// Cycle states, in the order a healthy cycle passes through them.
const (
	StateIdle       = "IDLE"
	StateFetching   = "FETCHING"
	StateEvaluating = "EVALUATING"
	StateHistory    = "HISTORY"
	StateDispatch   = "DISPATCH"
	StateSleeping   = "SLEEPING"
)

// SnapshotSource fetches one venue's live instrument snapshots.
type SnapshotSource interface {
	FetchSnapshots(ctx context.Context) ([]model.InstrumentSnapshot, error)
}

// HistorySource fetches one venue's funding history for one instrument.
type HistorySource interface {
	FetchHistory(ctx context.Context, base string) ([]model.FundingHistoryPoint, error)
}

// FeeSource aggregates realized funding fees from a venue's signed
// accounting endpoints.
type FeeSource interface {
	FetchFundingFees(ctx context.Context) ([]model.FundingFee, error)
}

// Alerter delivers operator-visible messages.
type Alerter interface {
	Send(ctx context.Context, text string, image []byte) error
	Warn(ctx context.Context, text string) error
}

// WorkbookSink regenerates the per-cycle signal artifact.
type WorkbookSink interface {
	Write(signals []signal.Signal) error
}

// SeriesSink archives one candidate's differential series.
type SeriesSink interface {
	Write(ctx context.Context, instrument string, points []model.DifferentialPoint) error
}

// Merger joins the two venues' snapshots.
type Merger func(okx, bybit []model.InstrumentSnapshot) []model.MergedRow

// Runner drives the detection cycle. One cycle at a time, forever, until
// the context is cancelled.
type Runner struct {
	cfg *appconfig.Config
	log *logger.Log

	okxSnapshots   SnapshotSource
	bybitSnapshots SnapshotSource
	okxHistory     HistorySource
	bybitHistory   HistorySource
	okxFees        FeeSource
	bybitFees      FeeSource

	merge    Merger
	workbook WorkbookSink
	series   SeriesSink
	alert    Alerter

	state string
	// sleep is overridable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// RunnerDeps carries the collaborators the runner drives. Fee sources are
// optional; they are only consulted when accounting is enabled.
type RunnerDeps struct {
	OkxSnapshots   SnapshotSource
	BybitSnapshots SnapshotSource
	OkxHistory     HistorySource
	BybitHistory   HistorySource
	OkxFees        FeeSource
	BybitFees      FeeSource
	Merge          Merger
	Workbook       WorkbookSink
	Series         SeriesSink
	Alert          Alerter
}

// NewRunner wires the runner.
func NewRunner(cfg *appconfig.Config, deps RunnerDeps) *Runner {
	return &Runner{
		cfg:            cfg,
		log:            logger.GetLogger(),
		okxSnapshots:   deps.OkxSnapshots,
		bybitSnapshots: deps.BybitSnapshots,
		okxHistory:     deps.OkxHistory,
		bybitHistory:   deps.BybitHistory,
		okxFees:        deps.OkxFees,
		bybitFees:      deps.BybitFees,
		merge:          deps.Merge,
		workbook:       deps.Workbook,
		series:         deps.Series,
		alert:          deps.Alert,
		state:          StateIdle,
		sleep:          sleepCtx,
	}
}

// State returns the current cycle state.
func (r *Runner) State() string {
	return r.state
}

// Run executes cycles until the context is cancelled. Cycle failures never
// end the process; a failed cycle is reported and followed by the crash
// cooldown instead of the regular interval.
func (r *Runner) Run(ctx context.Context) error {
	interval := time.Duration(r.cfg.Monitor.IntervalSec) * time.Second
	cooldown := time.Duration(r.cfg.Monitor.CrashCooldownSec) * time.Second
	log := r.log.WithComponent("pipeline")

	for {
		if ctx.Err() != nil {
			r.state = StateIdle
			return ctx.Err()
		}

		cycleID := uuid.NewString()
		started := time.Now()
		err := r.runCycle(ctx, cycleID)
		logger.LogPerformanceEntry(log, "pipeline", "cycle", time.Since(started), logger.Fields{"cycle_id": cycleID})

		pause := interval
		if err != nil {
			if ctx.Err() != nil {
				r.state = StateIdle
				return ctx.Err()
			}
			log.WithError(err).WithFields(logger.Fields{"cycle_id": cycleID}).Error("cycle failed")
			r.reportFailure(ctx, fmt.Sprintf("cycle %s failed: %v", cycleID, err))
			pause = cooldown
		}

		r.state = StateSleeping
		if err := r.sleep(ctx, pause); err != nil {
			r.state = StateIdle
			return err
		}
	}
}

// runCycle converts a panic escaping the cycle into an error so Run can
// apply the crash cooldown and keep going.
func (r *Runner) runCycle(ctx context.Context, cycleID string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in cycle: %v", rec)
		}
	}()
	return r.cycle(ctx, cycleID)
}

func (r *Runner) cycle(ctx context.Context, cycleID string) error {
	log := r.log.WithComponent("pipeline").WithFields(logger.Fields{"cycle_id": cycleID})

	r.state = StateFetching
	okxSnaps, err := r.okxSnapshots.FetchSnapshots(ctx)
	if err != nil {
		log.WithError(err).Error("okx snapshot fetch failed, skipping cycle")
		r.reportFailure(ctx, fmt.Sprintf("okx snapshot fetch failed: %v", err))
		return nil
	}
	bybitSnaps, err := r.bybitSnapshots.FetchSnapshots(ctx)
	if err != nil {
		log.WithError(err).Error("bybit snapshot fetch failed, skipping cycle")
		r.reportFailure(ctx, fmt.Sprintf("bybit snapshot fetch failed: %v", err))
		return nil
	}

	rows := r.merge(okxSnaps, bybitSnaps)
	if len(rows) == 0 {
		log.Warn("no overlapping instruments, skipping cycle")
		r.reportFailure(ctx, "no overlapping instruments between venues")
		return nil
	}
	logger.LogDataFlowEntry(log, "snapshot_readers", "merger", len(rows), "merged_rows")

	r.state = StateEvaluating
	scored := signal.Score(rows)
	if err := r.workbook.Write(scored); err != nil {
		// The workbook is a side artifact; its failure should not cost the
		// cycle its alerts.
		log.WithError(err).Error("workbook write failed")
		r.reportFailure(ctx, fmt.Sprintf("workbook write failed: %v", err))
	}

	var candidates []signal.Signal
	for _, s := range scored {
		if s.Candidate() {
			candidates = append(candidates, s)
		}
	}
	r.log.LogMetric("pipeline", "candidates", len(candidates), "gauge", logger.Fields{"cycle_id": cycleID})

	if len(candidates) == 0 {
		log.Info("no candidates this cycle")
		if err := r.alert.Send(ctx, fmt.Sprintf("[%s] no candidates this cycle (%d instruments scanned)",
			time.Now().UTC().Format("2006-01-02 15:04"), len(rows)), nil); err != nil {
			log.WithError(err).Warn("no-candidate notice delivery failed")
		}
		return nil
	}

	for _, cand := range candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.processCandidate(ctx, cand); err != nil {
			log.WithError(err).WithFields(logger.Fields{"instrument": cand.Row.InstrumentID}).
				Error("candidate processing failed, continuing with next")
			r.reportFailure(ctx, fmt.Sprintf("candidate %s failed: %v", cand.Row.InstrumentID, err))
		}
	}

	if r.cfg.Accounting.Enabled {
		r.reconcileFees(ctx, log)
	}
	return nil
}

// processCandidate fetches both venues' funding history for one candidate,
// builds the differential series and dispatches the alert. A failed history
// side contributes an empty partial series instead of failing the candidate.
func (r *Runner) processCandidate(ctx context.Context, cand signal.Signal) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic processing candidate: %v", rec)
		}
	}()

	inst := cand.Row.InstrumentID
	log := r.log.WithComponent("pipeline").WithFields(logger.Fields{"instrument": inst})

	r.state = StateHistory
	okxHist, err := r.okxHistory.FetchHistory(ctx, inst)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).Warn("okx funding history incomplete")
	}
	bybitHist, err := r.bybitHistory.FetchHistory(ctx, inst)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).Warn("bybit funding history incomplete")
	}

	points := series.Build(okxHist, bybitHist)
	summary := series.Summarize(points)

	r.state = StateDispatch
	if err := r.series.Write(ctx, inst, points); err != nil {
		log.WithError(err).Error("series archive failed")
	}

	text := alertText(cand, summary)
	if err := r.alert.Send(ctx, text, nil); err != nil {
		// Delivery failure is logged, never escalated.
		log.WithError(err).Error("alert delivery failed")
	}
	return nil
}

func (r *Runner) reconcileFees(ctx context.Context, log *logger.Entry) {
	for venue, src := range map[string]FeeSource{"okx": r.okxFees, "bybit": r.bybitFees} {
		if src == nil {
			continue
		}
		fees, err := src.FetchFundingFees(ctx)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"venue": venue}).Warn("funding fee reconciliation failed")
			continue
		}
		var total float64
		for _, f := range fees {
			total += f.Amount
		}
		r.log.LogMetric("pipeline", "funding_fee_total", total, "gauge", logger.Fields{"venue": venue})
	}
}

// reportFailure mirrors a failure into the alert stream. If even that
// fails, the structured log is the last resort.
func (r *Runner) reportFailure(ctx context.Context, text string) {
	if err := r.alert.Warn(ctx, text); err != nil {
		r.log.WithComponent("pipeline").WithError(err).Error("failure report delivery failed")
	}
}

func alertText(cand signal.Signal, summary series.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", time.Now().UTC().Format("2006-01-02 15:04"), cand.Row.InstrumentID)
	fmt.Fprintf(&b, "long %s / short %s\n", cand.LongVenue, cand.ShortVenue)
	fmt.Fprintf(&b, "OKX mark %.6g funding %.4f%%\n", cand.Row.Okx.MarkPrice, cand.Row.Okx.FundingRate*100)
	fmt.Fprintf(&b, "Bybit mark %.6g funding %.4f%%\n", cand.Row.Bybit.MarkPrice, cand.Row.Bybit.FundingRate*100)
	fmt.Fprintf(&b, "spread %.4f%% basis %.4f%%\n", cand.FundingSpread*100, cand.Basis*100)
	fmt.Fprintf(&b, "history: %d positive / %d non-positive", summary.Positive, summary.NonPositive)
	return b.String()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
