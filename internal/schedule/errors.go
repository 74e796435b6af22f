package schedule

import "errors"

// ErrSlotNotFound means no slot exists at the requested (date, time).
var ErrSlotNotFound = errors.New("schedule: no such slot")

// ErrAlreadyBooked means the slot exists but another patient holds it.
var ErrAlreadyBooked = errors.New("schedule: slot is already booked")
