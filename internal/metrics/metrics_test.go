package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ConnOpened()
	m.ConnOpened()
	m.ConnClosed()
	m.SetRooms(3)
	m.Relayed(2, 1, 100)
	m.ControlMessage("join-room")
	m.ControlMessage("join-room")

	if got := testutil.ToFloat64(m.Connections); got != 1 {
		t.Fatalf("connections = %v", got)
	}
	if got := testutil.ToFloat64(m.Rooms); got != 3 {
		t.Fatalf("rooms = %v", got)
	}
	if got := testutil.ToFloat64(m.FramesRelayed); got != 2 {
		t.Fatalf("relayed = %v", got)
	}
	if got := testutil.ToFloat64(m.FramesDropped); got != 1 {
		t.Fatalf("dropped = %v", got)
	}
	if got := testutil.ToFloat64(m.BytesRelayed); got != 200 {
		t.Fatalf("bytes = %v", got)
	}
	if got := testutil.ToFloat64(m.Control.WithLabelValues("join-room")); got != 2 {
		t.Fatalf("control = %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ConnOpened()
	m.ConnClosed()
	m.SetRooms(1)
	m.Relayed(1, 1, 1)
	m.ControlMessage("ping")
}
