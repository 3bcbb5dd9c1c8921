package lib

import "testing"

func TestMetricsIncAndSnapshot(t *testing.T) {
	m := NewMetrics()
	m.Inc("group_join_total")
	m.Add("group_join_total", 2)

	snap := m.Snapshot()
	if snap["group_join_total"] != 3 {
		t.Fatalf("group_join_total = %d, want 3", snap["group_join_total"])
	}

	snap["group_join_total"] = 100
	if got := m.Get("group_join_total"); got != 3 {
		t.Fatalf("snapshot should be a copy; got %d", got)
	}
}

func TestNilMetricsIgnoresWrites(t *testing.T) {
	var m *Metrics
	m.Inc("anything")
	if got := m.Get("anything"); got != 0 {
		t.Fatalf("nil metrics Get = %d, want 0", got)
	}
	if snap := m.Snapshot(); len(snap) != 0 {
		t.Fatalf("nil metrics snapshot = %v, want empty", snap)
	}
}
