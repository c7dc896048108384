// Package clock поставляет текущее время. В тестах вместо системных
// часов подставляется Manual.
package clock

import (
	"sync"
	"time"
)

// Clock возвращает текущий момент времени.
type Clock interface {
	Now() time.Time
}

// System — системные часы в UTC.
type System struct{}

// Now возвращает текущее время в UTC.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Manual двигается только вручную.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual создаёт часы, остановленные на моменте t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

// Now возвращает текущее показание часов.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance сдвигает часы вперёд на d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set переставляет часы на момент t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}
