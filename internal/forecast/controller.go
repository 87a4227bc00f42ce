package forecast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/i474232898/atmostream/internal/logging"
	"github.com/i474232898/atmostream/internal/metrics"
)

var validate = validator.New()

// Outcome summarises what an iteration did.
type Outcome string

const (
	OutcomeStarting   Outcome = "starting"
	OutcomeDownloaded Outcome = "downloaded"
	OutcomeAwaiting   Outcome = "awaiting"
	OutcomeCompleted  Outcome = "completed"
	OutcomeRecovered  Outcome = "recovered"
)

type ControllerConfig struct {
	Logger     *slog.Logger
	Clock      clockwork.Clock
	Provider   Provider
	Downloader Downloader
	Converter  ConversionSink
	Remover    RawRemover
	Archiver   Archiver // optional
	Store      Store    // optional
	OutputRoot string

	// Start is the first position polled. Empty fields default to the
	// earliest listed day and its earliest cycle.
	Start  Cursor
	Stream StreamConfig
}

func (cfg *ControllerConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Provider == nil {
		return errors.New("provider is required")
	}
	if cfg.Downloader == nil {
		return errors.New("downloader is required")
	}
	if cfg.OutputRoot == "" {
		return configErr("outputRoot", "output root is required")
	}
	if err := validate.Struct(cfg.Stream); err != nil {
		return &ConfigurationError{Field: "stream", Message: "invalid stream configuration", Cause: err}
	}
	model := cfg.Provider.Model()
	if missing := model.Unsupported(cfg.Stream.Variables); len(missing) > 0 {
		return configErr("variables", "%v not supported by %s (supported: %v)", missing, model.Name, model.Variables)
	}
	if cfg.Stream.ConvertOnCompletion && cfg.Converter == nil {
		return configErr("convertOnCompletion", "conversion requested but no converter configured")
	}
	if cfg.Stream.ConvertOnCompletion && cfg.Stream.DeleteRawAfterConvert && cfg.Remover == nil {
		return configErr("deleteRawAfterConvert", "raw removal requested but no remover configured")
	}

	// Optional with defaults
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Controller drives one streaming session: poll, download, convert and
// advance, forever. It never polls two cursors at once.
type Controller struct {
	log   *slog.Logger
	cfg   ControllerConfig
	model Model

	sessionID  string
	sessionLog io.Closer

	state State
	// converted is the last cycle the conversion sink succeeded on.
	converted Cursor

	mu     sync.Mutex
	status SessionStatus
}

func NewController(cfg ControllerConfig) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	model := cfg.Provider.Model()
	return &Controller{
		log:       cfg.Logger.With("source", model.Source, "model", model.Name),
		cfg:       cfg,
		model:     model,
		sessionID: uuid.NewString(),
	}, nil
}

// Start opens the session log, resolves the start cursor and, when
// VerifyOnStart is set, checks it against the catalog. A start cycle
// missing from the listing is only warned about: it may have aged out.
// Catalog failures are retried every poll interval; only configuration
// errors and cancellation are returned.
func (c *Controller) Start(ctx context.Context) error {
	startedAt := c.cfg.Clock.Now().UTC()

	if c.cfg.Stream.LoggingEnabled {
		path := logging.SessionLogPath(c.cfg.OutputRoot, string(c.model.Source), c.model.Name, startedAt)
		log, closer, err := logging.OpenSession(c.log, path)
		if err != nil {
			return err
		}
		c.log, c.sessionLog = log, closer
		c.log.Info("stream: session log opened", "path", path)
	}

	var (
		start Cursor
		days  []string
	)
	for {
		began := c.cfg.Clock.Now()
		var err error
		start, days, err = c.resolveStart(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !IsRecoverable(err) {
			return err
		}
		c.log.Error("stream: start failed, retrying", "error", err, "retry_in", c.startRetryInterval().String())
		if !c.sleep(ctx, c.startRetryInterval()-c.cfg.Clock.Since(began)) {
			return ctx.Err()
		}
	}

	c.state = State{Cursor: start, Days: days}

	c.mu.Lock()
	c.status = SessionStatus{
		SessionID: c.sessionID,
		Model:     c.model.Name,
		Source:    c.model.Source,
		Cursor:    start,
		Outcome:   OutcomeStarting,
		StartedAt: startedAt,
		Timestamp: startedAt,
	}
	status := c.status
	c.mu.Unlock()
	if c.cfg.Store != nil {
		c.cfg.Store.SaveStatus(status)
	}

	c.log.Info("stream: session started", "session_id", c.sessionID, "day", start.Day, "cycle", start.Cycle)
	return nil
}

func (c *Controller) resolveStart(ctx context.Context) (Cursor, []string, error) {
	days, err := c.cfg.Provider.ListDays(ctx)
	if err != nil {
		return Cursor{}, nil, catalogErr("list days", err)
	}
	if len(days) == 0 {
		return Cursor{}, nil, fmt.Errorf("%w: no days listed", ErrCursorNotListed)
	}

	start := c.cfg.Start
	if start.Day == "" {
		start.Day = days[0]
	}
	if c.cfg.Stream.VerifyOnStart {
		c.log.Info("stream: verifying stream parameters", "day", start.Day, "cycle", start.Cycle,
			"variables", c.cfg.Stream.Variables)
		if !slices.Contains(days, start.Day) {
			return Cursor{}, nil, configErr("day", "%s not in available days: %v", start.Day, days)
		}
	}
	if start.Cycle == "" || c.cfg.Stream.VerifyOnStart {
		cycles, err := c.cfg.Provider.ListForecastCycles(ctx, start.Day)
		if err != nil {
			return Cursor{}, nil, catalogErr("list cycles", err)
		}
		if start.Cycle == "" {
			if len(cycles) == 0 {
				return Cursor{}, nil, configErr("cycle", "no cycles available on %s", start.Day)
			}
			start.Cycle = cycles[0]
		} else if !slices.Contains(cycles, start.Cycle) {
			c.log.Warn("stream: start cycle not in available cycles", "cycle", start.Cycle, "available", cycles)
		}
	}
	return start, days, nil
}

// startRetryInterval is the poll interval with a one second floor so a
// zero interval does not spin against an unreachable catalog.
func (c *Controller) startRetryInterval() time.Duration {
	return max(c.cfg.Stream.PollInterval, time.Second)
}

// Close releases the session log.
func (c *Controller) Close() error {
	if c.sessionLog == nil {
		return nil
	}
	return c.sessionLog.Close()
}

// Run polls until ctx is cancelled. Recoverable failures re-derive the
// cursor from the catalog and polling resumes; only cancellation and
// configuration errors end the loop.
func (c *Controller) Run(ctx context.Context) error {
	c.log.Info("stream: starting poll loop", "interval", c.cfg.Stream.PollInterval)
	for {
		if ctx.Err() != nil {
			return nil
		}

		began := c.cfg.Clock.Now()
		outcome, err := c.Iterate(ctx)
		metrics.StreamIterationDuration.WithLabelValues(c.model.Name).Observe(c.cfg.Clock.Since(began).Seconds())
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !IsRecoverable(err) {
				return err
			}
			c.log.Error("stream: iteration failed", "error", err, "day", c.state.Cursor.Day, "cycle", c.state.Cursor.Cycle)
			if rerr := c.recoverCursor(ctx); rerr != nil {
				c.log.Error("stream: recovery failed, retrying next poll", "error", rerr)
			}
			outcome = OutcomeRecovered
		}
		c.publish(outcome, err)

		if !c.wait(ctx, began) {
			return nil
		}
	}
}

// Iterate runs one poll at the current cursor. On error the cursor is left
// unchanged.
func (c *Controller) Iterate(ctx context.Context) (Outcome, error) {
	st := c.state
	dir := c.cycleDir(st.Cursor)
	log := c.log.With("day", st.Cursor.Day, "cycle", st.Cursor.Cycle)
	log.Info("stream: polling", "variables", c.cfg.Stream.Variables)

	files, err := c.cfg.Provider.ListFiles(ctx, st.Cursor.Day, st.Cursor.Cycle)
	if err != nil {
		return "", catalogErr("list files", err)
	}
	wanted := c.cfg.Provider.FilterByVariables(files, c.cfg.Stream.Variables)
	pending, err := c.cfg.Downloader.Missing(wanted, dir)
	if err != nil {
		return "", wrapIfNot(err, ErrDownloadFailure)
	}

	cycles, err := c.cfg.Provider.ListForecastCycles(ctx, st.Cursor.Day)
	if err != nil {
		return "", catalogErr("list cycles", err)
	}

	now := c.cfg.Clock.Now().UTC()
	if RolledOver(c.model.Source, now, st.Cursor.Cycle) || (len(pending) == 0 && onNewestDay(st)) {
		days, err := c.cfg.Provider.ListDays(ctx)
		if err != nil {
			return "", catalogErr("list days", err)
		}
		if !slices.Equal(days, st.Days) {
			log.Info("stream: day listing changed", "days", days)
		}
		st.Days = days
	}

	next, dec, advErr := Advance(st, Snapshot{
		Source:  c.model.Source,
		Cycles:  cycles,
		Pending: len(pending),
		Now:     now,
	})
	log.Debug("stream: decision",
		"files", len(wanted), "pending", len(pending), "cycles", cycles, "days", st.Days,
		"action", dec.Action, "move", dec.Move, "next_cycle", dec.NextCycle, "next_day", dec.NextDay,
		"can_switch_day", dec.CanSwitchDay, "rolled_over", dec.RolledOver)

	outcome, err := c.execute(ctx, log, st.Cursor, dir, pending, dec)
	if err != nil {
		return outcome, err
	}
	// The sinks have run; a later failure must not hand the cycle over again.
	c.state.Completed = next.Completed
	c.state.Days = st.Days
	if advErr != nil {
		return outcome, advErr
	}

	switch dec.Move {
	case MoveNextCycle:
		log.Info("stream: next step: next forecast on the current day", "next_cycle", next.Cursor.Cycle)
	case MoveNextDay:
		newCycles, err := c.cfg.Provider.ListForecastCycles(ctx, next.Cursor.Day)
		if err != nil {
			return outcome, catalogErr("list cycles", err)
		}
		if len(newCycles) == 0 {
			return outcome, fmt.Errorf("%w: no cycles listed for day %s", ErrCursorNotListed, next.Cursor.Day)
		}
		next.Cursor.Cycle = newCycles[0]
		log.Info("stream: next step: next forecast on the next day", "next_day", next.Cursor.Day, "next_cycle", next.Cursor.Cycle)
	case MoveHold:
		log.Info("stream: next step: no new day of data yet")
	default:
		log.Info("stream: next step: check current forecast again for more data")
	}

	c.state = next
	return outcome, nil
}

func (c *Controller) execute(ctx context.Context, log *slog.Logger, cur Cursor, dir string, pending []string, dec Decision) (Outcome, error) {
	switch dec.Action {
	case ActionDownload:
		log.Info("stream: downloading files", "count", len(pending), "dir", dir)
		fetched, err := c.cfg.Downloader.FetchMissing(ctx, pending, dir)
		c.addFetched(fetched)
		return OutcomeDownloaded, err
	case ActionAwait:
		log.Info("stream: monitoring latest forecast, but no data yet")
		return OutcomeAwaiting, nil
	case ActionComplete:
		if !dec.Convert {
			return OutcomeCompleted, nil
		}
		log.Info("stream: already fetched all files for this forecast")
		metrics.CyclesCompletedTotal.WithLabelValues(c.model.Name).Inc()
		return OutcomeCompleted, c.complete(ctx, log, cur, dir)
	}
	return "", nil
}

// complete hands a finished cycle directory to the sinks. Raw files are
// only removed after a successful conversion, and a cycle already
// converted is not converted again when archiving or removal is retried.
func (c *Controller) complete(ctx context.Context, log *slog.Logger, cur Cursor, dir string) error {
	vars := c.cfg.Stream.Variables
	if c.cfg.Stream.ConvertOnCompletion && c.converted != cur {
		log.Info("stream: converting forecast", "dir", dir)
		if err := c.cfg.Converter.Convert(ctx, dir, c.model, vars); err != nil {
			return wrapIfNot(err, ErrConversionFailure)
		}
		c.converted = cur
	}
	if c.cfg.Archiver != nil {
		log.Info("stream: archiving forecast", "dir", dir)
		if err := c.cfg.Archiver.Archive(ctx, dir); err != nil {
			return wrapIfNot(err, ErrArchiveFailure)
		}
	}
	if c.cfg.Stream.ConvertOnCompletion && c.cfg.Stream.DeleteRawAfterConvert {
		log.Info("stream: removing original raw files", "dir", dir)
		if err := c.cfg.Remover.RemoveRaw(ctx, dir, c.model, vars); err != nil {
			return wrapIfNot(err, ErrConversionFailure)
		}
	}
	return nil
}

// recoverCursor re-derives a safe cursor from a fresh catalog listing.
func (c *Controller) recoverCursor(ctx context.Context) error {
	metrics.StreamRecoveriesTotal.WithLabelValues(c.model.Name).Inc()
	c.mu.Lock()
	c.status.Recoveries++
	c.mu.Unlock()

	prev := c.state.Cursor
	days, err := c.cfg.Provider.ListDays(ctx)
	if err != nil {
		return catalogErr("list days", err)
	}
	if len(days) == 0 {
		return fmt.Errorf("%w: no days listed", ErrCursorNotListed)
	}
	day := RecoveryDay(prev, days)
	cycles, err := c.cfg.Provider.ListForecastCycles(ctx, day)
	if err != nil {
		return catalogErr("list cycles", err)
	}
	cur, err := Recover(prev, days, cycles)
	if err != nil {
		return err
	}

	c.state = State{Cursor: cur, Days: days, Completed: c.state.Completed}
	c.log.Warn("stream: recovered cursor", "from", prev.String(), "to", cur.String())
	return nil
}

// wait sleeps for the remainder of the poll interval. It returns false if
// ctx was cancelled.
func (c *Controller) wait(ctx context.Context, began time.Time) bool {
	return c.sleep(ctx, c.cfg.Stream.PollInterval-c.cfg.Clock.Since(began))
}

func (c *Controller) sleep(ctx context.Context, remaining time.Duration) bool {
	if remaining <= 0 {
		return ctx.Err() == nil
	}
	c.log.Debug("stream: waiting", "duration", remaining.String())
	select {
	case <-ctx.Done():
		return false
	case <-c.cfg.Clock.After(remaining):
		return true
	}
}

// DownloadOnce fetches the filtered files of one position without
// streaming.
func (c *Controller) DownloadOnce(ctx context.Context, cur Cursor) (int, error) {
	files, err := c.cfg.Provider.ListFiles(ctx, cur.Day, cur.Cycle)
	if err != nil {
		return 0, catalogErr("list files", err)
	}
	wanted := c.cfg.Provider.FilterByVariables(files, c.cfg.Stream.Variables)
	dir := c.cycleDir(cur)
	c.log.Info("download: fetching files", "day", cur.Day, "cycle", cur.Cycle, "count", len(wanted), "dir", dir)
	fetched, err := c.cfg.Downloader.FetchMissing(ctx, wanted, dir)
	c.addFetched(fetched)
	return fetched, err
}

// Cursor returns the position the next iteration polls.
func (c *Controller) Cursor() Cursor {
	return c.state.Cursor
}

// Status returns the latest session status. It is safe for concurrent use.
func (c *Controller) Status() SessionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) publish(outcome Outcome, err error) {
	metrics.StreamIterationsTotal.WithLabelValues(c.model.Name, string(outcome)).Inc()
	if t, ok := c.state.Cursor.Time(); ok {
		metrics.StreamCursorTime.WithLabelValues(c.model.Name).Set(float64(t.Unix()))
	}

	c.mu.Lock()
	c.status.Cursor = c.state.Cursor
	c.status.Outcome = outcome
	c.status.Iterations++
	c.status.Timestamp = c.cfg.Clock.Now().UTC()
	if err != nil {
		c.status.LastError = err.Error()
	}
	status := c.status
	c.mu.Unlock()

	if c.cfg.Store != nil {
		c.cfg.Store.SaveStatus(status)
	}
}

func (c *Controller) addFetched(n int) {
	if n == 0 {
		return
	}
	metrics.FilesFetchedTotal.WithLabelValues(c.model.Name).Add(float64(n))
	c.mu.Lock()
	c.status.FilesFetched += n
	c.mu.Unlock()
}

func (c *Controller) cycleDir(cur Cursor) string {
	return filepath.Join(c.cfg.OutputRoot, cur.DirName(c.model))
}

// onNewestDay reports whether the cursor sits on the newest day of the
// cached listing, where a newly published day can only be seen by listing
// again.
func onNewestDay(st State) bool {
	return len(st.Days) == 0 || st.Cursor.Day == st.Days[len(st.Days)-1]
}

func wrapIfNot(err, target error) error {
	if errors.Is(err, target) {
		return err
	}
	return fmt.Errorf("%w: %w", target, err)
}
