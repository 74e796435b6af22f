package schedule

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrMissingFields indicates an uploaded schedule whose header or rows do
// not carry all four required columns.
var ErrMissingFields = errors.New("schedule: rows must contain date, time, is_booked, patient_name")

var header = []string{"date", "time", "is_booked", "patient_name"}

// ParseCSV decodes an uploaded schedule. Rows missing a date or time, or
// with an unreadable is_booked value, reject the whole upload.
func ParseCSV(r io.Reader) ([]Slot, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("schedule: malformed csv: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrMissingFields
	}

	cols := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range header {
		if _, ok := cols[required]; !ok {
			return nil, ErrMissingFields
		}
	}

	slots := make([]Slot, 0, len(records)-1)
	for _, rec := range records[1:] {
		slot, err := slotFromRecord(rec, cols)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

func slotFromRecord(rec []string, cols map[string]int) (Slot, error) {
	field := func(name string) string {
		idx := cols[name]
		if idx >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[idx])
	}

	slot := Slot{
		Date:        field("date"),
		Time:        field("time"),
		PatientName: field("patient_name"),
	}
	if slot.Date == "" || slot.Time == "" {
		return Slot{}, ErrMissingFields
	}

	rawBooked := field("is_booked")
	if rawBooked == "" {
		return Slot{}, ErrMissingFields
	}
	booked, err := strconv.ParseBool(strings.ToLower(rawBooked))
	if err != nil {
		return Slot{}, ErrMissingFields
	}
	slot.IsBooked = booked
	return slot, nil
}

func readSlots(path string) ([]Slot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schedule: open %s: %w", path, err)
	}
	defer f.Close()
	return ParseCSV(f)
}

// writeSlots persists the full slot set with a tmp-write-then-rename so a
// crash mid-write can never leave a torn schedule behind.
func writeSlots(path string, slots []Slot) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".schedule-*.csv")
	if err != nil {
		return fmt.Errorf("schedule: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	writer := csv.NewWriter(tmp)
	if err := writer.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("schedule: write header: %w", err)
	}
	for _, slot := range slots {
		rec := []string{slot.Date, slot.Time, strconv.FormatBool(slot.IsBooked), slot.PatientName}
		if err := writer.Write(rec); err != nil {
			tmp.Close()
			return fmt.Errorf("schedule: write row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("schedule: flush csv: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("schedule: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("schedule: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("schedule: replace schedule file: %w", err)
	}
	return nil
}

// WriteEmpty creates a schedule file containing only the header row.
func WriteEmpty(path string) error {
	return writeSlots(path, nil)
}
