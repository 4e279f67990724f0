package geiger

import (
	"errors"
	"sync"
	"time"
)

// fakeLink is a register file: a set request stores into the matching get register.
type fakeLink struct {
	mu         sync.Mutex
	regs       map[Request]uint16
	sent       []Request
	receiveErr error
	resetErr   error
	closed     int
}

func newFakeLink() *fakeLink {
	return &fakeLink{regs: map[Request]uint16{}}
}

func (l *fakeLink) Send(req Request, value int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, req)
	l.regs[req+1] = uint16(value)
	return nil
}

func (l *fakeLink) Receive(req Request) (uint16, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.receiveErr != nil {
		return 0, l.receiveErr
	}
	return l.regs[req], nil
}

func (l *fakeLink) Reset() error { return l.resetErr }

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed++
	return nil
}

func (l *fakeLink) sentRequests() []Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Request(nil), l.sent...)
}

// immediateClock hands out timers that have already fired.
type immediateClock struct{}

func (immediateClock) Now() time.Time { return time.Now() }

func (immediateClock) NewTimer(time.Duration) Timer {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return firedTimer{ch: ch}
}

type firedTimer struct{ ch chan time.Time }

func (t firedTimer) C() <-chan time.Time { return t.ch }
func (t firedTimer) Stop() bool          { return false }

type recordingObs struct {
	mu     sync.Mutex
	errors []string
	infos  []string
}

func (o *recordingObs) LogInfo(msg string, _ ...Field) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.infos = append(o.infos, msg)
}

func (o *recordingObs) LogError(msg string, _ error, _ ...Field) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, msg)
}

func (o *recordingObs) LogCritical(msg string, err error, f ...Field) { o.LogError(msg, err, f...) }
func (o *recordingObs) IncCounter(string, float64)                   {}
func (o *recordingObs) ObserveLatency(string, float64)               {}
func (o *recordingObs) SetGauge(string, float64)                     {}

func (o *recordingObs) errorCount(msg string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, m := range o.errors {
		if m == msg {
			n++
		}
	}
	return n
}

var errUnplugged = errors.New("device unplugged")
