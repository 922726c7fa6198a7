package timer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"xstation/internal/models"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

var testEpoch = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

// fakeAPI records calls; when hold is set, EndBooking blocks until release is closed.
type fakeAPI struct {
	mu       sync.Mutex
	bookings []models.Booking
	listErr  error
	endErrs  []error
	ends     []endCall
	lists    int
	hold     bool
	started  chan struct{}
	release  chan struct{}
}

type endCall struct {
	id  int64
	end time.Time
}

func newFakeAPI(bookings ...models.Booking) *fakeAPI {
	return &fakeAPI{bookings: bookings, started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (f *fakeAPI) ListActiveBookings(ctx context.Context) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.Booking(nil), f.bookings...), nil
}

func (f *fakeAPI) EndBooking(ctx context.Context, id int64, endTime *time.Time) error {
	f.mu.Lock()
	call := endCall{id: id}
	if endTime != nil {
		call.end = *endTime
	}
	f.ends = append(f.ends, call)
	hold := f.hold
	var err error
	if len(f.endErrs) > 0 {
		err = f.endErrs[0]
		f.endErrs = f.endErrs[1:]
	}
	f.mu.Unlock()

	f.started <- struct{}{}
	if hold {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeAPI) setBookings(bookings ...models.Booking) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookings = bookings
}

func (f *fakeAPI) endCalls() []endCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]endCall(nil), f.ends...)
}

func (f *fakeAPI) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

var errBackendDown = errors.New("backend down")

// memPersistence is an in-test persistence adapter.
type memPersistence struct {
	mu      sync.Mutex
	entries map[int64]models.ClientTimerEntry
	saves   int
	saveErr error
}

func (m *memPersistence) Load(ctx context.Context) (map[int64]models.ClientTimerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]models.ClientTimerEntry, len(m.entries))
	for id, e := range m.entries {
		out[id] = e
	}
	return out, nil
}

func (m *memPersistence) Save(ctx context.Context, entries map[int64]models.ClientTimerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.saveErr != nil {
		return m.saveErr
	}
	m.entries = entries
	return nil
}

func (m *memPersistence) get(id int64) (models.ClientTimerEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	return entry, ok
}

type recordedEvents struct {
	mu    sync.Mutex
	types []string
}

func (r *recordedEvents) PublishJSON(eventType string, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, eventType)
	return nil
}

func (r *recordedEvents) has(eventType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.types {
		if t == eventType {
			return true
		}
	}
	return false
}

func (r *recordedEvents) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.types {
		if t == eventType {
			n++
		}
	}
	return n
}

type memJournal struct {
	mu      sync.Mutex
	entries []models.JournalEntry
}

func (j *memJournal) RecordAutoEnd(ctx context.Context, entry *models.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, *entry)
	return nil
}

func (j *memJournal) ListAutoEnds(ctx context.Context, since time.Time, limit int) ([]models.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]models.JournalEntry(nil), j.entries...), nil
}

func (j *memJournal) outcomes() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, 0, len(j.entries))
	for _, e := range j.entries {
		out = append(out, e.Outcome)
	}
	return out
}

type harness struct {
	api     *fakeAPI
	clock   *clockwork.FakeClock
	store   *Store
	persist *memPersistence
	events  *recordedEvents
	journal *memJournal
	rec     *Reconciler
}

func newHarness(t *testing.T, api *fakeAPI) *harness {
	t.Helper()
	logger := zerolog.Nop()
	h := &harness{
		api:     api,
		clock:   clockwork.NewFakeClockAt(testEpoch),
		persist: &memPersistence{entries: map[int64]models.ClientTimerEntry{}},
		events:  &recordedEvents{},
		journal: &memJournal{},
	}
	h.store = NewStore(h.persist, &logger)
	h.rec = NewReconciler(api, h.store, h.events, h.journal, h.clock, Options{
		GracePeriod: 2 * time.Second,
		Retry:       RetryPolicy{InitialDelay: time.Second, MaxDelay: 10 * time.Second},
	}, &logger)
	return h
}

// mountPastGrace mounts and moves the clock beyond the grace period.
func (h *harness) mountPastGrace(t *testing.T) {
	t.Helper()
	if err := h.rec.Mount(context.Background()); err != nil {
		t.Fatalf("mount: %v", err)
	}
	h.clock.Advance(3 * time.Second)
}

func timedBooking(id int64, end time.Time) models.Booking {
	return models.Booking{ID: id, RoomID: 1, Status: models.StatusActive, StartedAt: testEpoch, FinishedAt: &end}
}

func openBooking(id int64) models.Booking {
	return models.Booking{ID: id, RoomID: 2, Status: models.StatusActive, StartedAt: testEpoch}
}
