package service_test

import (
	"context"
	"testing"
	"time"

	"intake/internal/domain"
	"intake/internal/service"
)

// ─────────────────────────────────────────────────────────────
// runGuard tests
// ─────────────────────────────────────────────────────────────

func TestRunningGuard_TryLock(t *testing.T) {
	var g service.ExportedRunningGuard

	if !g.TryLock("co2_weekly_mlo") {
		t.Fatal("expected first TryLock to succeed")
	}
	if g.TryLock("co2_weekly_mlo") {
		t.Fatal("expected second TryLock for same source to fail")
	}
	if !g.TryLock("ch4_mm_gl") {
		t.Fatal("expected TryLock for different source to succeed")
	}
	g.Unlock("co2_weekly_mlo")
	g.Unlock("ch4_mm_gl")

	if !g.TryLock("co2_weekly_mlo") {
		t.Fatal("expected TryLock to succeed after unlock")
	}
	g.Unlock("co2_weekly_mlo")
}

func TestRunningGuard_WaitAll(t *testing.T) {
	var g service.ExportedRunningGuard

	if !g.TryLock("co2_weekly_mlo") {
		t.Fatal("expected lock to succeed")
	}

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		g.WaitAll(ctx)
		close(done)
	}()

	go func() {
		time.Sleep(20 * time.Millisecond)
		g.Unlock("co2_weekly_mlo")
	}()

	select {
	case <-done:
		// success
	case <-time.After(1 * time.Second):
		t.Fatal("WaitAll timed out")
	}
}

// ─────────────────────────────────────────────────────────────
// MockEmitter tests
// ─────────────────────────────────────────────────────────────

func TestMockEmitter_RecordsEvents(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, service.EventRunStarted, map[string]string{"source": "co2_weekly_mlo"})
	m.Emit(ctx, service.EventRunCompleted, nil)

	if len(m.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(m.Events))
	}
	if m.Events[0].Event != service.EventRunStarted {
		t.Errorf("expected %q, got %q", service.EventRunStarted, m.Events[0].Event)
	}
}

func TestMockEmitter_LastEvent(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, "a", "first")
	m.Emit(ctx, "b", "second")

	if m.Events[len(m.Events)-1].Event != "b" {
		t.Errorf("expected last event 'b', got %q", m.Events[len(m.Events)-1].Event)
	}
}

func TestMockEmitter_Names(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, service.EventRunStarted, nil)
	m.Emit(ctx, service.EventRunFailed, nil)

	got := m.Names()
	if len(got) != 2 || got[0] != service.EventRunStarted || got[1] != service.EventRunFailed {
		t.Errorf("unexpected names %v", got)
	}
}

// ─────────────────────────────────────────────────────────────
// Workflow tests
// ─────────────────────────────────────────────────────────────

func TestExecDate(t *testing.T) {
	cases := []struct {
		at   time.Time
		want time.Time
	}{
		{time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC), time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{time.Date(2025, 1, 1, 0, 30, 0, 0, time.FixedZone("CET", 3600)), time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		if got := service.ExecDate(c.at); !got.Equal(c.want) {
			t.Errorf("ExecDate(%v) = %v, want %v", c.at, got, c.want)
		}
	}
}

func TestWorkflows(t *testing.T) {
	wfs := service.Workflows([]string{"co2_weekly_mlo", "ch4_mm_gl"})
	if len(wfs) != 2 {
		t.Fatalf("expected 2 workflows, got %d", len(wfs))
	}
	if wfs[0].ID() != "etl_co2_weekly_mlo" || wfs[1].ID() != "etl_ch4_mm_gl" {
		t.Errorf("unexpected ids %q %q", wfs[0].ID(), wfs[1].ID())
	}
	if len(wfs[0].Steps) != 2 || wfs[0].Steps[0] != domain.RunStepExtract || wfs[0].Steps[1] != domain.RunStepLoad {
		t.Errorf("unexpected steps %v", wfs[0].Steps)
	}
	if wfs[0] == wfs[1] {
		t.Error("workflows must be independent values")
	}
}
