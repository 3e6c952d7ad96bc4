package testutil

import (
	"fmt"
	"sync"
	"time"

	"ilp-go/internal/ilp"
)

// FixedUnix is the instant FixedClock starts at: 2024-01-15 10:30:00 UTC.
const FixedUnix int64 = 1705314600

// StubClock is a manually driven ilp.Clock. Safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ ilp.Clock = (*StubClock)(nil)

func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t.UTC()}
}

// FixedClock returns a StubClock at FixedUnix.
func FixedClock() *StubClock {
	return NewStubClock(time.Unix(FixedUnix, 0))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward, e.g. to make timemodified changes visible.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// StubIDGenerator hands out request ids "req-0001", "req-0002", ...
type StubIDGenerator struct {
	mu   sync.Mutex
	next int
}

var _ ilp.IDGenerator = (*StubIDGenerator)(nil)

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("req-%04d", g.next)
}
