package schedule

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docbot-ai/platform/internal/tenancy"
	"github.com/docbot-ai/platform/pkg/logging"
)

func newTestStore(t *testing.T, slots []Slot) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schedule.csv")
	if err := writeSlots(path, slots); err != nil {
		t.Fatalf("seeding schedule: %v", err)
	}
	return NewStore(path, &sync.Mutex{}, nil, nil)
}

func TestBookThenCheckAvailability(t *testing.T) {
	store := newTestStore(t, []Slot{
		{Date: "2025-06-01", Time: "09:00 AM"},
		{Date: "2025-06-01", Time: "10:00 AM"},
	})
	ctx := context.Background()

	conf, err := store.Book(ctx, "2025-06-01", "09:00 AM", "Rahul")
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if conf.PatientName != "Rahul" {
		t.Errorf("confirmation patient = %s, want Rahul", conf.PatientName)
	}

	status, err := store.CheckAvailability(ctx, "2025-06-01", "09:00 AM")
	if err != nil {
		t.Fatalf("CheckAvailability failed: %v", err)
	}
	if status != StatusBooked {
		t.Errorf("status = %v, want StatusBooked", status)
	}

	status, _ = store.CheckAvailability(ctx, "2025-06-01", "10:00 AM")
	if status != StatusAvailable {
		t.Errorf("untouched slot status = %v, want StatusAvailable", status)
	}

	status, _ = store.CheckAvailability(ctx, "2025-06-02", "09:00 AM")
	if status != StatusNotFound {
		t.Errorf("missing slot status = %v, want StatusNotFound", status)
	}
}

func TestBookTagsLogsWithBotID(t *testing.T) {
	var buf bytes.Buffer
	logger := &logging.Logger{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	path := filepath.Join(t.TempDir(), "schedule.csv")
	if err := writeSlots(path, []Slot{{Date: "2025-06-01", Time: "09:00 AM"}}); err != nil {
		t.Fatalf("seeding schedule: %v", err)
	}
	store := NewStore(path, &sync.Mutex{}, logger, nil)

	ctx := tenancy.WithBotID(context.Background(), "clinic-12345678")
	if _, err := store.Book(ctx, "2025-06-01", "09:00 AM", "Rahul"); err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	if !strings.Contains(buf.String(), `"bot_id":"clinic-12345678"`) {
		t.Fatalf("booking log missing bot id: %s", buf.String())
	}
}

func TestBookMissingSlot(t *testing.T) {
	store := newTestStore(t, []Slot{{Date: "2025-06-01", Time: "09:00 AM"}})

	_, err := store.Book(context.Background(), "2025-06-01", "11:00 AM", "Rahul")
	if !errors.Is(err, ErrSlotNotFound) {
		t.Fatalf("expected ErrSlotNotFound, got %v", err)
	}
}

func TestBookBookedSlot(t *testing.T) {
	store := newTestStore(t, []Slot{
		{Date: "2025-06-01", Time: "09:00 AM", IsBooked: true, PatientName: "Asha"},
	})

	_, err := store.Book(context.Background(), "2025-06-01", "09:00 AM", "Rahul")
	if !errors.Is(err, ErrAlreadyBooked) {
		t.Fatalf("expected ErrAlreadyBooked, got %v", err)
	}

	// The original holder must be untouched.
	slots, err := readSlots(store.Path())
	if err != nil {
		t.Fatalf("re-reading schedule: %v", err)
	}
	if slots[0].PatientName != "Asha" {
		t.Errorf("losing booking overwrote patient: %s", slots[0].PatientName)
	}
}

func TestConcurrentBookingExactlyOneWins(t *testing.T) {
	store := newTestStore(t, []Slot{{Date: "2025-06-01", Time: "09:00 AM"}})
	ctx := context.Background()

	const contenders = 8
	errs := make([]error, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.Book(ctx, "2025-06-01", "09:00 AM", "patient")
		}(i)
	}
	wg.Wait()

	wins, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadyBooked):
			conflicts++
		default:
			t.Fatalf("unexpected booking error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if conflicts != contenders-1 {
		t.Fatalf("expected %d conflicts, got %d", contenders-1, conflicts)
	}
}

func TestBookingSurvivesReread(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.csv")
	if err := writeSlots(path, []Slot{{Date: "2025-06-01", Time: "09:00 AM"}}); err != nil {
		t.Fatalf("seeding schedule: %v", err)
	}
	store := NewStore(path, &sync.Mutex{}, nil, nil)

	if _, err := store.Book(context.Background(), "2025-06-01", "09:00 AM", "Rahul"); err != nil {
		t.Fatalf("Book failed: %v", err)
	}

	// A brand new handle over the same file must observe the booking.
	fresh := NewStore(path, &sync.Mutex{}, nil, nil)
	status, err := fresh.CheckAvailability(context.Background(), "2025-06-01", "09:00 AM")
	if err != nil {
		t.Fatalf("CheckAvailability failed: %v", err)
	}
	if status != StatusBooked {
		t.Errorf("fresh handle status = %v, want StatusBooked", status)
	}
}

func TestListFreeChronologicalAndFiltered(t *testing.T) {
	store := newTestStore(t, []Slot{
		{Date: "2025-06-01", Time: "04:00 PM"},
		{Date: "2025-06-01", Time: "09:00 AM"},
		{Date: "2025-06-01", Time: "02:00 PM", IsBooked: true, PatientName: "Asha"},
		{Date: "2025-06-01", Time: "11:30 AM"},
		{Date: "2025-06-02", Time: "09:00 AM"},
	})

	// A day that is not today keeps every free slot, in clock order.
	notToday := time.Date(2025, time.May, 30, 12, 0, 0, 0, time.UTC)
	times, err := store.ListFree(context.Background(), "2025-06-01", notToday)
	if err != nil {
		t.Fatalf("ListFree failed: %v", err)
	}
	want := []string{"09:00 AM", "11:30 AM", "04:00 PM"}
	if len(times) != len(want) {
		t.Fatalf("got %v, want %v", times, want)
	}
	for i := range want {
		if times[i] != want[i] {
			t.Fatalf("got %v, want %v", times, want)
		}
	}
}

func TestListFreeTodayDropsElapsedTimes(t *testing.T) {
	store := newTestStore(t, []Slot{
		{Date: "2025-06-01", Time: "09:00 AM"},
		{Date: "2025-06-01", Time: "03:00 PM"},
		{Date: "2025-06-01", Time: "04:30 PM"},
	})

	now := time.Date(2025, time.June, 1, 15, 0, 0, 0, time.UTC) // 3:00 PM
	times, err := store.ListFree(context.Background(), "2025-06-01", now)
	if err != nil {
		t.Fatalf("ListFree failed: %v", err)
	}
	if len(times) != 1 || times[0] != "04:30 PM" {
		t.Fatalf("got %v, want [04:30 PM]: slots at or before 3 PM must be dropped", times)
	}
}

func TestListFreeEmptyIsNotAnError(t *testing.T) {
	store := newTestStore(t, []Slot{
		{Date: "2025-06-01", Time: "09:00 AM", IsBooked: true, PatientName: "Asha"},
	})

	times, err := store.ListFree(context.Background(), "2025-06-01", time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("no-slots day must not error: %v", err)
	}
	if len(times) != 0 {
		t.Fatalf("expected no free times, got %v", times)
	}
}

func TestReplaceCollapsesDuplicates(t *testing.T) {
	store := newTestStore(t, nil)

	err := store.Replace(context.Background(), []Slot{
		{Date: "2025-06-01", Time: "09:00 AM"},
		{Date: "2025-06-01", Time: "09:00 AM", IsBooked: true, PatientName: "ghost"},
		{Date: "2025-06-01", Time: "10:00 AM"},
	})
	if err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	slots, err := readSlots(store.Path())
	if err != nil {
		t.Fatalf("re-reading schedule: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("expected duplicate to collapse to one row, got %d rows", len(slots))
	}
	// First occurrence wins.
	if slots[0].IsBooked {
		t.Error("duplicate slot overrode the first occurrence")
	}
}

func TestReplaceRejectsIncompleteRows(t *testing.T) {
	store := newTestStore(t, []Slot{{Date: "2025-06-01", Time: "09:00 AM"}})

	err := store.Replace(context.Background(), []Slot{
		{Date: "2025-06-02", Time: "09:00 AM"},
		{Date: "", Time: "10:00 AM"},
	})
	if !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}

	// The reject must leave the previous schedule intact.
	slots, _ := readSlots(store.Path())
	if len(slots) != 1 || slots[0].Date != "2025-06-01" {
		t.Fatalf("rejected upload mutated the schedule: %v", slots)
	}
}

func TestParseCSV(t *testing.T) {
	in := "date,time,is_booked,patient_name\n2025-06-01,09:00 AM,false,\n2025-06-01,10:00 AM,true,Asha\n"
	slots, err := ParseCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ParseCSV failed: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if !slots[1].IsBooked || slots[1].PatientName != "Asha" {
		t.Errorf("second slot = %+v", slots[1])
	}
}

func TestParseCSVMissingColumn(t *testing.T) {
	in := "date,time,patient_name\n2025-06-01,09:00 AM,\n"
	if _, err := ParseCSV(strings.NewReader(in)); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}
}

func TestParseCSVBadBookedValue(t *testing.T) {
	in := "date,time,is_booked,patient_name\n2025-06-01,09:00 AM,maybe,\n"
	if _, err := ParseCSV(strings.NewReader(in)); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}
}

func TestWriteEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.csv")
	if err := WriteEmpty(path); err != nil {
		t.Fatalf("WriteEmpty failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading file: %v", err)
	}
	if strings.TrimSpace(string(data)) != "date,time,is_booked,patient_name" {
		t.Fatalf("unexpected empty schedule contents: %q", string(data))
	}
}
