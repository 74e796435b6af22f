// Package schedule manages one bot's bookable slot calendar, persisted as
// a per-tenant CSV the clinic can upload and replace wholesale. Booking is
// the only mutation; it serializes behind the tenant's lock and persists
// before returning, so a committed booking survives a crash and a stale
// availability is never re-shown.
package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/docbot-ai/platform/internal/observability/metrics"
	"github.com/docbot-ai/platform/internal/tenancy"
	"github.com/docbot-ai/platform/internal/timeparse"
	"github.com/docbot-ai/platform/pkg/logging"
)

// Slot is one bookable (date, time) unit. Identity is the pair itself,
// unique within a bot's schedule.
type Slot struct {
	Date        string `json:"date"`
	Time        string `json:"time"`
	IsBooked    bool   `json:"is_booked"`
	PatientName string `json:"patient_name"`
}

// Availability is the outcome of an availability check.
type Availability int

const (
	StatusNotFound Availability = iota
	StatusBooked
	StatusAvailable
)

// Confirmation describes a booking that was committed to disk.
type Confirmation struct {
	Date        string
	Time        string
	PatientName string
}

// Store is the schedule handle for a single bot. Every operation re-reads
// the file so external edits (a re-uploaded schedule) are observed, and
// every mutation rewrites it atomically.
type Store struct {
	path    string
	mu      *sync.Mutex
	flk     *flock.Flock
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
}

// NewStore binds a store to one bot's schedule file. The mutex must be the
// bot's own lock from the tenancy registry; sharing it across bots would
// serialize unrelated tenants.
func NewStore(path string, mu *sync.Mutex, logger *logging.Logger, m *metrics.BookingMetrics) *Store {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		path:    path,
		mu:      mu,
		flk:     flock.New(path + ".lock"),
		logger:  logger,
		metrics: m,
	}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// CheckAvailability reports whether the canonical (date, time) slot exists
// and is free. Inputs must already be normalized; parse failures belong to
// the dispatch layer and never reach the store.
func (s *Store) CheckAvailability(ctx context.Context, date, clock string) (Availability, error) {
	slots, err := readSlots(s.path)
	if err != nil {
		return StatusNotFound, err
	}
	for _, slot := range slots {
		if slot.Date == date && slot.Time == clock {
			if slot.IsBooked {
				return StatusBooked, nil
			}
			return StatusAvailable, nil
		}
	}
	return StatusNotFound, nil
}

// Book marks the slot as taken by patientName. The read-check-write runs
// under the bot's mutex plus a file lock, so of two concurrent bookings on
// the same slot exactly one wins and the loser sees ErrAlreadyBooked.
func (s *Store) Book(ctx context.Context, date, clock, patientName string) (*Confirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flk.Lock(); err != nil {
		s.metrics.ObserveBooking("error")
		return nil, fmt.Errorf("schedule: lock schedule file: %w", err)
	}
	defer func() {
		if err := s.flk.Unlock(); err != nil {
			s.logger.Error("failed to release schedule file lock", "error", err, "path", s.path)
		}
	}()

	slots, err := readSlots(s.path)
	if err != nil {
		s.metrics.ObserveBooking("error")
		return nil, err
	}

	idx := -1
	for i, slot := range slots {
		if slot.Date == date && slot.Time == clock {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.metrics.ObserveBooking("not_found")
		return nil, ErrSlotNotFound
	}
	if slots[idx].IsBooked {
		s.metrics.ObserveBooking("conflict")
		return nil, ErrAlreadyBooked
	}

	slots[idx].IsBooked = true
	slots[idx].PatientName = patientName

	if err := writeSlots(s.path, slots); err != nil {
		s.metrics.ObserveBooking("error")
		return nil, err
	}

	attrs := []any{"date", date, "time", clock, "patient", patientName}
	if botID, ok := tenancy.BotIDFromContext(ctx); ok {
		attrs = append(attrs, "bot_id", botID)
	}
	s.logger.Info("slot booked", attrs...)
	s.metrics.ObserveBooking("booked")
	return &Confirmation{Date: date, Time: clock, PatientName: patientName}, nil
}

// ListFree returns the unbooked times for a date in chronological order.
// When the date is the caller's current date, times at or before now are
// dropped so elapsed slots are never offered. An empty slice with a nil
// error means "no free slots", distinct from a read failure.
func (s *Store) ListFree(ctx context.Context, date string, now time.Time) ([]string, error) {
	slots, err := readSlots(s.path)
	if err != nil {
		return nil, err
	}

	cutoff := -1
	if date == now.Format(timeparse.DateLayout) {
		cutoff = now.Hour()*60 + now.Minute()
	}

	type timed struct {
		clock   string
		minutes int
	}
	free := make([]timed, 0, len(slots))
	for _, slot := range slots {
		if slot.Date != date || slot.IsBooked {
			continue
		}
		minutes, err := timeparse.Minutes(slot.Time)
		if err != nil {
			s.logger.Warn("skipping slot with unreadable time", "time", slot.Time, "date", slot.Date)
			continue
		}
		if minutes <= cutoff {
			continue
		}
		free = append(free, timed{clock: slot.Time, minutes: minutes})
	}

	sort.Slice(free, func(i, j int) bool { return free[i].minutes < free[j].minutes })

	times := make([]string, len(free))
	for i, f := range free {
		times[i] = f.clock
	}
	s.metrics.ObserveListFree()
	return times, nil
}

// Replace overwrites the whole schedule with the uploaded rows. Rows are
// validated before anything touches disk; a bad row rejects the upload with
// no partial write. Duplicate (date, time) rows collapse to the first
// occurrence.
func (s *Store) Replace(ctx context.Context, rows []Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deduped := make([]Slot, 0, len(rows))
	seen := make(map[[2]string]bool, len(rows))
	for _, row := range rows {
		if row.Date == "" || row.Time == "" {
			return ErrMissingFields
		}
		key := [2]string{row.Date, row.Time}
		if seen[key] {
			s.logger.Warn("dropping duplicate slot in uploaded schedule", "date", row.Date, "time", row.Time)
			continue
		}
		seen[key] = true
		deduped = append(deduped, row)
	}

	if err := writeSlots(s.path, deduped); err != nil {
		return err
	}
	s.logger.Info("schedule replaced", "slots", len(deduped), "path", s.path)
	return nil
}
