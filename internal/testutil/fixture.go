package testutil

import (
	"testing"

	"ilp-go/internal/database"
	"ilp-go/internal/grading"
	"ilp-go/internal/ilp"
)

// Fixture is a fully wired service over an in-memory store.
type Fixture struct {
	DB       *database.SQLiteDatabase
	Syncer   *RecordingSyncer
	Cache    *RecordingCache
	Clock    *StubClock
	Settings ilp.Settings
	Service  *ilp.Service
}

// NewFixture wires a Service with recording collaborators and FixedClock.
func NewFixture(t *testing.T, settings ilp.Settings) *Fixture {
	t.Helper()

	db := NewTestDatabase(t)
	f := &Fixture{
		DB:       db,
		Syncer:   NewRecordingSyncer(db),
		Cache:    NewRecordingCache(),
		Clock:    FixedClock(),
		Settings: settings,
	}
	f.Service = ilp.NewServiceFromSettings(db, f.Syncer, f.Cache, grading.NewFormatter(2), settings, f.Clock, ilp.NewNopLogger())
	return f
}

// Handle runs a request through the service.
func (f *Fixture) Handle(action string, kv map[string]string) (*ilp.Response, error) {
	return f.Service.HandleRequest(&ilp.Request{Action: action, Data: ilp.NewData(kv)})
}
