package beacon

import (
	"sync"
	"time"
)

// FlipFlopTimer alternates between an on callback and an off callback for
// configured durations, driving the scan duty cycle. Durations are re-read
// at every phase boundary so SetOnDuration and SetOffDuration take effect
// from the next transition. Stop returns only after the off callback has
// run, guaranteeing scanning is off when it returns.
type FlipFlopTimer struct {
	mu          sync.Mutex
	onDuration  time.Duration
	offDuration time.Duration
	onStart     func()
	onStop      func()
	stop        chan struct{}
	done        chan struct{}
	started     bool
}

// NewFlipFlopTimer creates a stopped timer. onStart and onStop run on the
// timer's own goroutine, never concurrently with each other.
func NewFlipFlopTimer(onDuration, offDuration time.Duration, onStart, onStop func()) *FlipFlopTimer {
	return &FlipFlopTimer{
		onDuration:  onDuration,
		offDuration: offDuration,
		onStart:     onStart,
		onStop:      onStop,
	}
}

// Start begins alternating phases. Starting a started timer has no effect.
func (t *FlipFlopTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	t.started = true
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.run(t.stop, t.done)
}

// Stop halts alternation. If the timer is in an on phase the off callback
// runs before Stop returns. Stopping a stopped timer has no effect.
func (t *FlipFlopTimer) Stop() {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return
	}
	t.started = false
	stop := t.stop
	done := t.done
	t.mu.Unlock()

	close(stop)
	<-done
}

// IsStarted reports whether the timer is alternating
func (t *FlipFlopTimer) IsStarted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

// SetOnDuration updates the on phase duration from the next transition
func (t *FlipFlopTimer) SetOnDuration(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDuration = d
}

// SetOffDuration updates the off phase duration from the next transition
func (t *FlipFlopTimer) SetOffDuration(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offDuration = d
}

// OnDuration returns the current on phase duration
func (t *FlipFlopTimer) OnDuration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.onDuration
}

// OffDuration returns the current off phase duration
func (t *FlipFlopTimer) OffDuration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offDuration
}

func (t *FlipFlopTimer) run(stop, done chan struct{}) {
	defer close(done)

	onTimer := time.NewTimer(0)
	if !onTimer.Stop() {
		<-onTimer.C
	}

	for {
		t.onStart()

		onTimer.Reset(t.OnDuration())
		select {
		case <-onTimer.C:
		case <-stop:
			onTimer.Stop()
			t.onStop()
			return
		}

		t.onStop()

		onTimer.Reset(t.OffDuration())
		select {
		case <-onTimer.C:
		case <-stop:
			onTimer.Stop()
			return
		}
	}
}
