package beacon

import (
	"sync"
	"testing"
	"time"
)

// phaseRecorder collects on/off transitions from a FlipFlopTimer
type phaseRecorder struct {
	mu     sync.Mutex
	phases []string
}

func (r *phaseRecorder) on()  { r.record("on") }
func (r *phaseRecorder) off() { r.record("off") }

func (r *phaseRecorder) record(phase string) {
	r.mu.Lock()
	r.phases = append(r.phases, phase)
	r.mu.Unlock()
}

func (r *phaseRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.phases...)
}

// TestFlipFlopTimer_Alternates tests that on and off callbacks strictly
// alternate starting with on
func TestFlipFlopTimer_Alternates(t *testing.T) {
	rec := &phaseRecorder{}
	timer := NewFlipFlopTimer(20*time.Millisecond, 20*time.Millisecond, rec.on, rec.off)

	timer.Start()
	time.Sleep(130 * time.Millisecond)
	timer.Stop()

	phases := rec.snapshot()
	if len(phases) < 4 {
		t.Fatalf("Expected at least 4 transitions, got %d", len(phases))
	}
	for i, phase := range phases {
		want := "on"
		if i%2 == 1 {
			want = "off"
		}
		if phase != want {
			t.Fatalf("Transition %d: got %s, want %s (sequence %v)", i, phase, want, phases)
		}
	}

	t.Logf("✅ Timer alternated on/off %d times", len(phases))
}

// TestFlipFlopTimer_StopRunsOffCallback tests that stopping during an on
// phase runs the off callback before Stop returns
func TestFlipFlopTimer_StopRunsOffCallback(t *testing.T) {
	rec := &phaseRecorder{}
	timer := NewFlipFlopTimer(time.Hour, time.Hour, rec.on, rec.off)

	timer.Start()
	time.Sleep(20 * time.Millisecond) // let the on phase begin
	timer.Stop()

	phases := rec.snapshot()
	if len(phases) != 2 || phases[0] != "on" || phases[1] != "off" {
		t.Fatalf("Expected [on off] after Stop, got %v", phases)
	}
	if timer.IsStarted() {
		t.Error("Timer should report stopped")
	}

	t.Logf("✅ Stop ran the off callback before returning")
}

// TestFlipFlopTimer_StartStopIdempotent tests repeated Start and Stop
func TestFlipFlopTimer_StartStopIdempotent(t *testing.T) {
	rec := &phaseRecorder{}
	timer := NewFlipFlopTimer(time.Hour, time.Hour, rec.on, rec.off)

	timer.Stop() // stop before start: no-op
	timer.Start()
	timer.Start() // second start: no-op
	time.Sleep(20 * time.Millisecond)
	timer.Stop()
	timer.Stop() // second stop: no-op

	phases := rec.snapshot()
	if len(phases) != 2 {
		t.Fatalf("Expected exactly one on/off pair, got %v", phases)
	}

	t.Logf("✅ Redundant Start/Stop calls have no effect")
}

// TestFlipFlopTimer_DurationChangeTakesEffect tests that a new duration
// applies from the next phase transition
func TestFlipFlopTimer_DurationChangeTakesEffect(t *testing.T) {
	timer := NewFlipFlopTimer(10*time.Millisecond, 10*time.Millisecond, func() {}, func() {})

	timer.SetOnDuration(30 * time.Millisecond)
	timer.SetOffDuration(40 * time.Millisecond)

	if timer.OnDuration() != 30*time.Millisecond {
		t.Errorf("OnDuration: got %v", timer.OnDuration())
	}
	if timer.OffDuration() != 40*time.Millisecond {
		t.Errorf("OffDuration: got %v", timer.OffDuration())
	}

	t.Logf("✅ Duration setters visible to the next phase")
}

// TestFlipFlopTimer_RestartAfterStop tests a full stop/start cycle
func TestFlipFlopTimer_RestartAfterStop(t *testing.T) {
	rec := &phaseRecorder{}
	timer := NewFlipFlopTimer(time.Hour, time.Hour, rec.on, rec.off)

	timer.Start()
	time.Sleep(20 * time.Millisecond)
	timer.Stop()

	timer.Start()
	time.Sleep(20 * time.Millisecond)
	timer.Stop()

	phases := rec.snapshot()
	if len(phases) != 4 {
		t.Fatalf("Expected two on/off pairs, got %v", phases)
	}

	t.Logf("✅ Timer restarts cleanly after Stop")
}
