package ws

import (
	"testing"
)

func TestHealthRules(t *testing.T) {
	tests := []struct {
		name  string
		setup func(m *Metrics)
		want  string
	}{
		{
			name:  "Fresh tracker",
			setup: func(m *Metrics) {},
			want:  "ok",
		},
		{
			name: "Healthy traffic",
			setup: func(m *Metrics) {
				for i := 0; i < 20; i++ {
					m.ConnectionOpened()
					m.BroadcastSent(5)
				}
			},
			want: "ok",
		},
		{
			name: "High handshake failure rate",
			setup: func(m *Metrics) {
				for i := 0; i < 10; i++ {
					m.ConnectionOpened()
				}
				m.ConnectionFailed()
				m.ConnectionFailed()
			},
			want: "critical",
		},
		{
			name: "Nobody connected despite traffic",
			setup: func(m *Metrics) {
				for i := 0; i < 11; i++ {
					m.ConnectionOpened()
					m.ConnectionClosed()
				}
			},
			want: "warning",
		},
		{
			name: "Broadcast failures above 5 percent",
			setup: func(m *Metrics) {
				m.ConnectionOpened()
				for i := 0; i < 90; i++ {
					m.BroadcastSent(1)
				}
				for i := 0; i < 10; i++ {
					m.BroadcastFailed()
				}
			},
			want: "warning",
		},
		{
			name: "Slow broadcasts",
			setup: func(m *Metrics) {
				m.ConnectionOpened()
				m.BroadcastSent(250)
			},
			want: "warning",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMetrics()
			tt.setup(m)
			if got := m.Health(); got != tt.want {
				t.Fatalf("health = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSnapshotFields(t *testing.T) {
	m := NewMetrics()
	m.ConnectionOpened()
	m.BroadcastSent(10)
	m.BroadcastSent(20)

	snap := m.Snapshot()
	if snap["connections_active"].(int64) != 1 {
		t.Fatalf("connections_active = %v", snap["connections_active"])
	}
	if snap["broadcasts_sent"].(int64) != 2 {
		t.Fatalf("broadcasts_sent = %v", snap["broadcasts_sent"])
	}
	if snap["avg_broadcast_latency_ms"].(float64) != 15 {
		t.Fatalf("avg latency = %v", snap["avg_broadcast_latency_ms"])
	}
	if snap["health"].(string) != "ok" {
		t.Fatalf("health = %v", snap["health"])
	}
}

func TestActiveNeverNegative(t *testing.T) {
	m := NewMetrics()
	m.ConnectionClosed()
	m.ConnectionClosed()

	if got := m.Snapshot()["connections_active"].(int64); got != 0 {
		t.Fatalf("connections_active = %d, want 0", got)
	}
}
