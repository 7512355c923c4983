package transfer

import "time"

// Clock supplies the current time. Tests inject a fake one.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}

// meter tracks one transfer in either direction.
type meter struct {
	clock       Clock
	start       time.Time
	totalChunks int
	chunks      int
	bytes       int64
}

func newMeter(clock Clock, totalChunks int) *meter {
	return &meter{clock: clock, start: clock.Now(), totalChunks: totalChunks}
}

// add records one processed chunk of n bytes.
func (m *meter) add(n int) {
	m.chunks++
	m.bytes += int64(n)
}

func (m *meter) percent() float64 {
	if m.totalChunks == 0 {
		return 100
	}
	return float64(m.chunks) / float64(m.totalChunks) * 100
}

// speed is bytes per second since start, zero while no time has passed.
func (m *meter) speed() float64 {
	elapsed := m.elapsed().Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(m.bytes) / elapsed
}

func (m *meter) elapsed() time.Duration {
	return m.clock.Now().Sub(m.start)
}
