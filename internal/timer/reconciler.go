package timer

import (
	"context"
	"sort"
	"sync"
	"time"

	"xstation/internal/domain"
	"xstation/internal/events"
	"xstation/internal/metrics"
	"xstation/internal/models"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// persistTimeout bounds fallback restores and journal writes after an end request.
const persistTimeout = 5 * time.Second

// Options tunes the reconciler loops.
type Options struct {
	RefreshInterval time.Duration
	TickInterval    time.Duration
	GracePeriod     time.Duration
	EndTimeout      time.Duration
	Retry           RetryPolicy
}

func (o *Options) applyDefaults() {
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = models.DefaultRefreshInterval * time.Second
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.GracePeriod < 0 {
		o.GracePeriod = 0
	}
	if o.EndTimeout <= 0 {
		o.EndTimeout = 10 * time.Second
	}
}

type loader interface {
	Load(ctx context.Context, now time.Time) (int, error)
}

// autoEndJob is a verified expiry waiting for its end-booking request.
type autoEndJob struct {
	bookingID int64
	end       time.Time
	source    string
	entry     *models.ClientTimerEntry
}

// Reconciler keeps a countdown for every active timed booking and ends
// bookings whose time has elapsed. At most one end request per booking is in
// flight: a booking is marked as processing before the request is issued and
// unmarked only on failure or when it leaves the active set.
type Reconciler struct {
	api       domain.BookingAPI
	store     domain.TimerStore
	events    domain.EventPublisher
	journal   domain.Journal
	clock     clockwork.Clock
	scheduler Scheduler
	opts      Options
	logger    *zerolog.Logger

	mu         sync.Mutex
	mountedAt  time.Time
	now        time.Time
	bookings   map[int64]models.Booking
	timers     map[int64]int
	processing map[int64]struct{}
	failures   map[int64]int
	retryAt    map[int64]time.Time

	refreshMu   sync.Mutex
	refreshDown bool // guarded by refreshMu
	inflight    sync.WaitGroup
	baseCtx     context.Context
	cancels     []CancelFunc
}

// NewReconciler wires a reconciler. events and journal may be nil.
func NewReconciler(
	api domain.BookingAPI,
	store domain.TimerStore,
	eventBus domain.EventPublisher,
	journal domain.Journal,
	clock clockwork.Clock,
	opts Options,
	logger *zerolog.Logger,
) *Reconciler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	opts.applyDefaults()

	return &Reconciler{
		api:        api,
		store:      store,
		events:     eventBus,
		journal:    journal,
		clock:      clock,
		scheduler:  NewClockScheduler(clock),
		opts:       opts,
		logger:     logger,
		bookings:   make(map[int64]models.Booking),
		timers:     make(map[int64]int),
		processing: make(map[int64]struct{}),
		failures:   make(map[int64]int),
		retryAt:    make(map[int64]time.Time),
		baseCtx:    context.Background(),
	}
}

// Mount loads persisted fallback timers and starts the grace period.
func (r *Reconciler) Mount(ctx context.Context) error {
	now := r.clock.Now()
	if l, ok := r.store.(loader); ok {
		if _, err := l.Load(ctx, now); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.mountedAt = now
	r.now = now
	r.mu.Unlock()
	return nil
}

// Start mounts, performs a first refresh and registers the refresh and tick
// loops. The loops stop when Stop is called.
func (r *Reconciler) Start(ctx context.Context) error {
	r.baseCtx = ctx
	if err := r.Mount(ctx); err != nil {
		return err
	}

	if err := r.Refresh(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("initial bookings refresh failed, will retry")
	}

	r.cancels = append(r.cancels,
		r.scheduler.OnRefresh(func() { _ = r.Refresh(ctx) }, r.opts.RefreshInterval),
		r.scheduler.OnTick(func() { r.Tick(ctx) }, r.opts.TickInterval),
	)

	r.logger.Info().
		Dur("refresh_interval", r.opts.RefreshInterval).
		Dur("tick_interval", r.opts.TickInterval).
		Dur("grace_period", r.opts.GracePeriod).
		Msg("reconciler started")
	return nil
}

// Stop cancels the loops and waits for in-flight end requests. Those run to
// completion even when the Start context is already cancelled.
func (r *Reconciler) Stop() {
	for _, cancel := range r.cancels {
		cancel()
	}
	r.cancels = nil
	if cs, ok := r.scheduler.(*ClockScheduler); ok {
		cs.Wait()
	}
	r.inflight.Wait()
}

// Wait blocks until in-flight end requests have finished.
func (r *Reconciler) Wait() {
	r.inflight.Wait()
}

// Refresh fetches active bookings and reconciles against them. On failure
// the previous state is kept. Consecutive failures publish a single
// refresh-failed event; the next success publishes a restored event.
func (r *Reconciler) Refresh(ctx context.Context) error {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	bookings, err := r.api.ListActiveBookings(ctx)
	if err != nil {
		metrics.IncRefreshFailure()
		r.logger.Error().Err(err).Msg("refresh active bookings")
		// только первый сбой подряд уходит на шину
		if !r.refreshDown {
			r.refreshDown = true
			r.publish(events.EventBookingsRefreshFailed, events.BookingEventPayload{Error: err.Error()})
		}
		return err
	}
	if r.refreshDown {
		r.refreshDown = false
		r.logger.Info().Msg("active bookings refresh restored")
		r.publish(events.EventBookingsRefreshRestored, events.BookingEventPayload{})
	}

	r.Reconcile(ctx, bookings)
	return nil
}

// Reconcile applies a fresh active-bookings list: bookings that left the set
// lose their countdown and fallback timer, newly seen timed bookings get a
// countdown. Existing countdowns are never reset.
func (r *Reconciler) Reconcile(ctx context.Context, bookings []models.Booking) {
	now := r.clock.Now()
	fallbacks := r.store.List()

	r.mu.Lock()
	active := make(map[int64]models.Booking, len(bookings))
	for _, b := range bookings {
		if b.Status != "" && !b.IsActive() {
			continue
		}
		active[b.ID] = b
	}

	gone := make(map[int64]struct{})
	for id := range r.bookings {
		if _, ok := active[id]; !ok {
			gone[id] = struct{}{}
		}
	}
	for id := range r.timers {
		if _, ok := active[id]; !ok {
			gone[id] = struct{}{}
		}
	}
	for id := range r.retryAt {
		if _, ok := active[id]; !ok {
			gone[id] = struct{}{}
		}
	}
	for id, entry := range fallbacks {
		if _, ok := active[id]; ok {
			continue
		}
		if _, busy := r.processing[id]; busy {
			continue
		}
		if entry.Expired(now) {
			gone[id] = struct{}{}
		}
	}

	for id := range gone {
		delete(r.timers, id)
		delete(r.processing, id)
		delete(r.failures, id)
		delete(r.retryAt, id)
	}
	r.bookings = active

	for id, b := range active {
		if _, ok := r.timers[id]; ok {
			continue
		}
		if _, busy := r.processing[id]; busy {
			continue
		}
		end, _, ok := r.endTime(b, fallbacks)
		if !ok {
			continue
		}
		r.timers[id] = RemainingSeconds(end, now)
	}
	r.now = now
	metrics.SetActiveTimers(len(r.timers))
	r.mu.Unlock()

	for id := range gone {
		if _, ok := fallbacks[id]; !ok {
			continue
		}
		if err := r.store.Delete(ctx, id); err != nil {
			r.logger.Error().Err(err).Int64("booking_id", id).Msg("delete client timer")
		}
	}

	r.Evaluate(ctx)
}

// Tick advances every running countdown by one step.
func (r *Reconciler) Tick(ctx context.Context) {
	r.mu.Lock()
	r.now = r.clock.Now()
	for id, remaining := range r.timers {
		if remaining > 0 {
			r.timers[id] = remaining - 1
		}
	}
	r.mu.Unlock()

	r.Evaluate(ctx)
}

// Evaluate issues end requests for expired countdowns. It does nothing
// before mount or during the grace period.
func (r *Reconciler) Evaluate(ctx context.Context) {
	now := r.clock.Now()
	fallbacks := r.store.List()

	r.mu.Lock()
	if r.mountedAt.IsZero() || now.Sub(r.mountedAt) < r.opts.GracePeriod {
		r.mu.Unlock()
		return
	}

	var jobs []autoEndJob
	var broken []int64
	for id, remaining := range r.timers {
		if remaining > 0 {
			continue
		}
		if _, busy := r.processing[id]; busy {
			continue
		}
		if until, ok := r.retryAt[id]; ok && now.Before(until) {
			continue
		}
		r.processing[id] = struct{}{}

		end, source, ok := r.endTime(r.bookings[id], fallbacks)
		if !ok {
			delete(r.processing, id)
			delete(r.timers, id)
			broken = append(broken, id)
			continue
		}
		if now.Before(end) {
			delete(r.processing, id)
			r.timers[id] = RemainingSeconds(end, now)
			continue
		}

		delete(r.timers, id)
		job := autoEndJob{bookingID: id, end: end, source: source}
		if entry, ok := fallbacks[id]; ok {
			job.entry = &entry
		}
		jobs = append(jobs, job)
	}
	metrics.SetActiveTimers(len(r.timers))
	r.mu.Unlock()

	for _, id := range broken {
		r.logger.Error().Int64("booking_id", id).Msg("countdown expired but no end time is known")
		metrics.IncAutoEnd(models.OutcomeInconsistent)
		r.publish(events.EventBookingTimerBroken, events.BookingEventPayload{BookingID: id, ChangedBy: "reconciler"})
		r.record(ctx, &models.JournalEntry{BookingID: id, AttemptedAt: now, Outcome: models.OutcomeInconsistent})
	}

	for _, job := range jobs {
		if job.entry != nil {
			if err := r.store.Delete(ctx, job.bookingID); err != nil {
				r.logger.Error().Err(err).Int64("booking_id", job.bookingID).Msg("delete client timer")
			}
		}
		r.inflight.Add(1)
		go r.autoEnd(job)
	}
}

func (r *Reconciler) autoEnd(job autoEndJob) {
	defer r.inflight.Done()

	log := r.logger.With().Int64("booking_id", job.bookingID).Time("end_time", job.end).Str("source", job.source).Logger()

	// запрос доживает до ответа даже после отмены контекста Start
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.baseCtx), r.opts.EndTimeout)
	defer cancel()

	end := job.end
	err := r.api.EndBooking(ctx, job.bookingID, &end)
	attemptedAt := r.clock.Now()

	saveCtx, saveCancel := context.WithTimeout(context.WithoutCancel(r.baseCtx), persistTimeout)
	defer saveCancel()

	if err != nil {
		r.mu.Lock()
		delete(r.processing, job.bookingID)
		r.failures[job.bookingID]++
		delay := r.opts.Retry.NextDelay(r.failures[job.bookingID])
		r.retryAt[job.bookingID] = attemptedAt.Add(delay)
		r.mu.Unlock()

		if job.entry != nil {
			if serr := r.store.Set(saveCtx, job.bookingID, *job.entry); serr != nil {
				log.Error().Err(serr).Msg("restore client timer")
			}
		}

		log.Error().Err(err).Dur("retry_in", delay).Msg("auto-end booking failed")
		metrics.IncAutoEnd(models.OutcomeFailed)
		r.publish(events.EventBookingAutoEndFailed, events.BookingEventPayload{
			BookingID: job.bookingID, EndTime: &end, Error: err.Error(), ChangedBy: "reconciler",
		})
		r.record(saveCtx, &models.JournalEntry{
			BookingID: job.bookingID, EndTime: end, AttemptedAt: attemptedAt, Outcome: models.OutcomeFailed, Error: err.Error(),
		})
		return
	}

	r.mu.Lock()
	delete(r.failures, job.bookingID)
	delete(r.retryAt, job.bookingID)
	r.mu.Unlock()

	log.Info().Msg("booking auto-ended")
	metrics.IncAutoEnd(models.OutcomeEnded)
	r.publish(events.EventBookingAutoEnded, events.BookingEventPayload{
		BookingID: job.bookingID, EndTime: &end, ChangedBy: "reconciler",
	})
	r.record(saveCtx, &models.JournalEntry{
		BookingID: job.bookingID, EndTime: end, AttemptedAt: attemptedAt, Outcome: models.OutcomeEnded,
	})

	if r.baseCtx.Err() != nil {
		return
	}
	if err := r.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("refresh after auto-end failed")
	}
}

// Forget drops the countdown and fallback timer of a booking ended by hand.
// The booking stays blocked from auto-end until it leaves the active set.
func (r *Reconciler) Forget(ctx context.Context, id int64) {
	r.mu.Lock()
	delete(r.timers, id)
	if _, ok := r.bookings[id]; ok {
		r.processing[id] = struct{}{}
	}
	metrics.SetActiveTimers(len(r.timers))
	r.mu.Unlock()

	if err := r.store.Delete(ctx, id); err != nil {
		r.logger.Error().Err(err).Int64("booking_id", id).Msg("delete client timer")
	}
}

// Remaining returns the countdown of a booking.
func (r *Reconciler) Remaining(id int64) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.timers[id]
	return v, ok
}

// Now returns the time of the last tick or refresh.
func (r *Reconciler) Now() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now
}

// Snapshot lists running countdowns and bookings awaiting an end response,
// ordered by booking id.
func (r *Reconciler) Snapshot() []models.TimerView {
	fallbacks := r.store.List()

	r.mu.Lock()
	defer r.mu.Unlock()

	views := make([]models.TimerView, 0, len(r.timers)+len(r.processing))
	for id, remaining := range r.timers {
		view := models.TimerView{BookingID: id, RemainingSeconds: remaining}
		if end, source, ok := r.endTime(r.bookings[id], fallbacks); ok {
			view.EndTime = end
			view.Source = source
		}
		views = append(views, view)
	}
	for id := range r.processing {
		if _, ok := r.bookings[id]; !ok {
			continue
		}
		view := models.TimerView{BookingID: id, Processing: true}
		if end, source, ok := r.endTime(r.bookings[id], fallbacks); ok {
			view.EndTime = end
			view.Source = source
		}
		views = append(views, view)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].BookingID < views[j].BookingID })
	return views
}

// endTime resolves the authoritative end of a booking. An unknown booking
// (zero value) resolves to no end time.
func (r *Reconciler) endTime(b models.Booking, fallbacks map[int64]models.ClientTimerEntry) (time.Time, string, bool) {
	var client *time.Time
	if entry, ok := fallbacks[b.ID]; ok && b.ID != 0 {
		t := entry.End()
		client = &t
	}
	end := ResolveEndTime(b.FinishedAt, client)
	if end == nil {
		return time.Time{}, "", false
	}
	if b.FinishedAt != nil {
		return *end, models.EndSourceServer, true
	}
	return *end, models.EndSourceClient, true
}

func (r *Reconciler) publish(eventType string, payload events.BookingEventPayload) {
	if r.events == nil {
		return
	}
	if err := r.events.PublishJSON(eventType, payload); err != nil {
		r.logger.Warn().Err(err).Str("event", eventType).Msg("publish event")
	}
}

func (r *Reconciler) record(ctx context.Context, entry *models.JournalEntry) {
	if r.journal == nil {
		return
	}
	if err := r.journal.RecordAutoEnd(ctx, entry); err != nil {
		r.logger.Warn().Err(err).Int64("booking_id", entry.BookingID).Msg("record auto-end journal")
	}
}
