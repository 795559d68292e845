package history

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/avews-bridge/internal/infrastructure/config"
	"github.com/nerrad567/avews-bridge/internal/infrastructure/database"
	_ "github.com/nerrad567/avews-bridge/migrations"
)

// setupJournal opens a migrated database in a temporary directory.
func setupJournal(t *testing.T) *Journal {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Enabled:     true,
		Path:        filepath.Join(t.TempDir(), "journal.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewJournal(db.DB)
}

func TestJournal_RecordAndHistory(t *testing.T) {
	j := setupJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	records := []struct {
		id string
		on bool
		at time.Time
	}{
		{"at_pt_garage", true, base},
		{"at_pt_garage", false, base.Add(time.Minute)},
		{"light_4", true, base.Add(2 * time.Minute)},
		{"at_pt_garage", true, base.Add(3 * time.Minute)},
	}
	for _, r := range records {
		if err := j.RecordState(ctx, "binary_sensor", r.id, r.on, r.at); err != nil {
			t.Fatalf("RecordState() error = %v", err)
		}
	}

	entries, err := j.History(ctx, "at_pt_garage", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("History() len = %d, want 3", len(entries))
	}

	wantOn := []bool{true, false, true}
	for i, e := range entries {
		if e.On != wantOn[i] {
			t.Errorf("entries[%d].On = %v, want %v", i, e.On, wantOn[i])
		}
		if e.EntityID != "at_pt_garage" || e.Kind != "binary_sensor" {
			t.Errorf("entries[%d] = %+v", i, e)
		}
	}
	if !entries[0].ObservedAt.Equal(base.Add(3 * time.Minute)) {
		t.Errorf("newest ObservedAt = %v, want %v", entries[0].ObservedAt, base.Add(3*time.Minute))
	}
}

func TestJournal_HistoryLimit(t *testing.T) {
	j := setupJournal(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		if err := j.RecordState(ctx, "switch", "light_1", i%2 == 0, now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := j.History(ctx, "light_1", 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("History(limit=2) len = %d, want 2", len(entries))
	}
}

func TestJournal_SubSecondOrdering(t *testing.T) {
	j := setupJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// 900ms sorts after 100ms only with fixed-width fractions.
	if err := j.RecordState(ctx, "switch", "light_2", true, base.Add(900*time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	if err := j.RecordState(ctx, "switch", "light_2", false, base.Add(100*time.Millisecond)); err != nil {
		t.Fatal(err)
	}

	entries, err := j.History(ctx, "light_2", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || !entries[0].On {
		t.Errorf("History() = %+v, want the 900ms entry first", entries)
	}
}

func TestJournal_EmptyEntity(t *testing.T) {
	j := setupJournal(t)
	ctx := context.Background()

	if err := j.RecordState(ctx, "switch", "", true, time.Now()); !errors.Is(err, ErrEntityRequired) {
		t.Errorf("RecordState() error = %v, want ErrEntityRequired", err)
	}
	if _, err := j.History(ctx, "", 10); !errors.Is(err, ErrEntityRequired) {
		t.Errorf("History() error = %v, want ErrEntityRequired", err)
	}
}

func TestJournal_Prune(t *testing.T) {
	j := setupJournal(t)
	ctx := context.Background()
	now := time.Now()

	for _, at := range []time.Time{now.Add(-72 * time.Hour), now.Add(-49 * time.Hour), now.Add(-time.Hour)} {
		if err := j.RecordState(ctx, "binary_sensor", "at_ir_p1", true, at); err != nil {
			t.Fatal(err)
		}
	}

	n, err := j.Prune(ctx, 48*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() removed %d rows, want 2", n)
	}

	entries, err := j.History(ctx, "at_ir_p1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("remaining entries = %d, want 1", len(entries))
	}

	if _, err := j.Prune(ctx, 0); err == nil {
		t.Error("Prune(0) expected error")
	}
}

type recordingLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *recordingLogger) Info(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func (l *recordingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs)
}

func TestJournal_RunPruner(t *testing.T) {
	j := setupJournal(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := j.RecordState(ctx, "switch", "light_9", true, time.Now().Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}

	logger := &recordingLogger{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		j.RunPruner(ctx, 10*time.Millisecond, time.Minute, logger)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for logger.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	entries, err := j.History(context.Background(), "light_9", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("entries after pruning = %d, want 0", len(entries))
	}
}

func TestJournal_RunPrunerDisabled(t *testing.T) {
	j := setupJournal(t)

	// Returns immediately without a retention.
	j.RunPruner(context.Background(), time.Millisecond, 0, &recordingLogger{})
}
