package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNilReceiversAreSafe(t *testing.T) {
	var b *BookingMetrics
	var r *RetrievalMetrics
	var p *PlannerMetrics

	b.ObserveBooking("booked")
	b.ObserveListFree()
	r.ObserveBuild("skipped")
	r.ObserveQueryLatency(0.1)
	p.ObserveToolCall("book_appointment", "ok")
	p.ObserveTurnLatency(1.2)
}

func TestRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()

	b := NewBookingMetrics(reg)
	r := NewRetrievalMetrics(reg)
	p := NewPlannerMetrics(reg)

	b.ObserveBooking("conflict")
	r.ObserveBuild("built")
	p.ObserveToolCall("lookup_context", "error")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected registered metric families")
	}
}
