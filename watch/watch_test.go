package watch

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/domsel/dbopen"
)

func counterDetector(v *atomic.Int64) Detector {
	return func(context.Context, *sql.DB) (int64, error) { return v.Load(), nil }
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRun_FiresOnChange(t *testing.T) {
	var ver atomic.Int64
	var calls atomic.Int64
	w := New(nil, Options{Interval: 5 * time.Millisecond, Detector: counterDetector(&ver)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, func(context.Context) error { calls.Add(1); return nil })

	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("baseline fired the action %d times", calls.Load())
	}

	ver.Store(1)
	waitFor(t, func() bool { return calls.Load() == 1 })
	if w.Version() != 1 {
		t.Errorf("Version: got %d, want 1", w.Version())
	}
}

func TestRun_Debounce(t *testing.T) {
	var ver atomic.Int64
	var calls atomic.Int64
	w := New(nil, Options{
		Interval: 5 * time.Millisecond,
		Debounce: 60 * time.Millisecond,
		Detector: counterDetector(&ver),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, func(context.Context) error { calls.Add(1); return nil })

	for i := int64(1); i <= 4; i++ {
		ver.Store(i)
		time.Sleep(15 * time.Millisecond)
	}
	waitFor(t, func() bool { return calls.Load() >= 1 })
	time.Sleep(100 * time.Millisecond)
	if calls.Load() != 1 {
		t.Errorf("calls: got %d, want 1", calls.Load())
	}
	if w.Version() != 4 {
		t.Errorf("Version: got %d, want 4", w.Version())
	}
}

func TestRun_RetriesFailedAction(t *testing.T) {
	var ver atomic.Int64
	var calls atomic.Int64
	w := New(nil, Options{Interval: 5 * time.Millisecond, Detector: counterDetector(&ver)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("boom")
		}
		return nil
	})

	ver.Store(7)
	waitFor(t, func() bool { return w.Reloads() == 1 })
	if w.Errors() < 2 {
		t.Errorf("Errors: got %d, want >= 2", w.Errors())
	}
	if w.Version() != 7 {
		t.Errorf("Version: got %d, want 7", w.Version())
	}
}

func TestTableVersion(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE r (id INTEGER PRIMARY KEY, updated_at INTEGER)`))
	ctx := context.Background()
	det := TableVersion("r", "updated_at")

	v0, err := det(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO r (updated_at) VALUES (100), (100)`); err != nil {
		t.Fatal(err)
	}
	v1, _ := det(ctx, db)
	if v1 == v0 {
		t.Fatal("insert did not move the version")
	}
	if _, err := db.Exec(`DELETE FROM r WHERE id = 2`); err != nil {
		t.Fatal(err)
	}
	v2, _ := det(ctx, db)
	if v2 == v1 {
		t.Fatal("delete did not move the version")
	}
}
