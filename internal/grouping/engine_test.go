package grouping

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/model"
	"github.com/WilBtc/InsaAutomationCorp-sub010/internal/store"
)

// fakeGroupStorage keeps active groups in memory and mimics the store's
// append-or-create behavior, including the unique active-key violation.
type fakeGroupStorage struct {
	groups map[string]*model.AlertGroup
	alerts map[string]*model.Alert

	appendErr error
	createErr error
	stats     *model.GroupStats
}

func newFakeGroupStorage() *fakeGroupStorage {
	return &fakeGroupStorage{
		groups: make(map[string]*model.AlertGroup),
		alerts: make(map[string]*model.Alert),
	}
}

func (f *fakeGroupStorage) AppendOccurrence(_ context.Context, groupKey string, at time.Time, window time.Duration) (string, bool, error) {
	if f.appendErr != nil {
		return "", false, f.appendErr
	}
	group, ok := f.groups[groupKey]
	if !ok || group.Status != model.GroupActive {
		return "", false, nil
	}
	if at.Sub(group.LastOccurrenceAt) > window {
		return "", false, nil
	}
	group.LastOccurrenceAt = at
	group.OccurrenceCount++
	return group.AlertID, true, nil
}

func (f *fakeGroupStorage) CreateGroupedAlert(_ context.Context, alert *model.Alert, group *model.AlertGroup, _, _ time.Duration) error {
	if f.createErr != nil {
		return f.createErr
	}
	if existing, ok := f.groups[group.GroupKey]; ok && existing.Status == model.GroupActive {
		return store.ErrDuplicateActiveGroup
	}
	f.groups[group.GroupKey] = group
	f.alerts[alert.AlertID] = alert
	return nil
}

func (f *fakeGroupStorage) CloseExpiredGroup(_ context.Context, groupKey string, at time.Time, window time.Duration) error {
	group, ok := f.groups[groupKey]
	if !ok || group.Status != model.GroupActive {
		return nil
	}
	if at.Sub(group.LastOccurrenceAt) > window {
		group.Status = model.GroupClosed
	}
	return nil
}

func (f *fakeGroupStorage) GroupStats(_ context.Context, _ time.Time) (*model.GroupStats, error) {
	return f.stats, nil
}

type fakeEscalator struct {
	scheduled []string
	err       error
}

func (f *fakeEscalator) Schedule(_ context.Context, alert *model.Alert) error {
	if f.err != nil {
		return f.err
	}
	f.scheduled = append(f.scheduled, alert.AlertID)
	return nil
}

func occurrence(source, check string, severity model.Severity) *model.Occurrence {
	return &model.Occurrence{
		SourceID:  source,
		CheckName: check,
		Severity:  severity,
		Message:   "disk usage above threshold",
		Value:     97.5,
		Threshold: 90,
	}
}

func TestIngestDeduplicatesWithinWindow(t *testing.T) {
	storage := newFakeGroupStorage()
	escalator := &fakeEscalator{}
	engine := NewEngine(storage, escalator, nil)

	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	clock := base
	engine.SetClock(func() time.Time { return clock })
	ctx := context.Background()

	// Ten identical occurrences ten seconds apart land in one group.
	var firstAlertID string
	for i := 0; i < 10; i++ {
		clock = base.Add(time.Duration(i) * 10 * time.Second)
		result, err := engine.Ingest(ctx, occurrence("web-1", "disk_usage", model.SeverityHigh))
		if err != nil {
			t.Fatalf("Ingest() #%d error = %v", i, err)
		}
		if i == 0 {
			if result.Appended {
				t.Fatal("first occurrence reported as appended")
			}
			firstAlertID = result.AlertID
			continue
		}
		if !result.Appended {
			t.Fatalf("occurrence #%d created a new group", i)
		}
		if result.AlertID != firstAlertID {
			t.Fatalf("occurrence #%d attached to alert %s, want %s", i, result.AlertID, firstAlertID)
		}
	}

	group := storage.groups["web-1|disk_usage|high"]
	if group == nil {
		t.Fatal("group not found under default key")
	}
	if group.OccurrenceCount != 10 {
		t.Errorf("occurrence count = %d, want 10", group.OccurrenceCount)
	}
	if len(storage.alerts) != 1 {
		t.Errorf("alerts created = %d, want 1", len(storage.alerts))
	}
	if len(escalator.scheduled) != 1 {
		t.Errorf("escalations scheduled = %d, want 1", len(escalator.scheduled))
	}
}

func TestIngestDistinctKeysCreateDistinctGroups(t *testing.T) {
	storage := newFakeGroupStorage()
	engine := NewEngine(storage, &fakeEscalator{}, nil)
	ctx := context.Background()

	r1, err := engine.Ingest(ctx, occurrence("web-1", "disk_usage", model.SeverityHigh))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	r2, err := engine.Ingest(ctx, occurrence("web-2", "disk_usage", model.SeverityHigh))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	r3, err := engine.Ingest(ctx, occurrence("web-1", "disk_usage", model.SeverityCritical))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	ids := map[string]struct{}{r1.AlertID: {}, r2.AlertID: {}, r3.AlertID: {}}
	if len(ids) != 3 {
		t.Errorf("distinct alerts = %d, want 3", len(ids))
	}
}

func TestIngestAfterWindowCreatesNewGroup(t *testing.T) {
	storage := newFakeGroupStorage()
	engine := NewEngine(storage, &fakeEscalator{}, nil)
	engine.SetWindow(5 * time.Minute)

	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	clock := base
	engine.SetClock(func() time.Time { return clock })
	ctx := context.Background()

	first, err := engine.Ingest(ctx, occurrence("web-1", "disk_usage", model.SeverityHigh))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	// Close the stale group the way the idle sweep would, then ingest
	// past the window.
	storage.groups["web-1|disk_usage|high"].Status = model.GroupClosed
	clock = base.Add(10 * time.Minute)

	second, err := engine.Ingest(ctx, occurrence("web-1", "disk_usage", model.SeverityHigh))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if second.Appended {
		t.Error("occurrence past the window was appended")
	}
	if second.AlertID == first.AlertID {
		t.Error("new group reused the previous alert")
	}
}

func TestIngestClosesStaleGroupBeforeIdleSweep(t *testing.T) {
	storage := newFakeGroupStorage()
	engine := NewEngine(storage, &fakeEscalator{}, nil)
	engine.SetWindow(5 * time.Minute)

	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	clock := base
	engine.SetClock(func() time.Time { return clock })
	ctx := context.Background()

	first, err := engine.Ingest(ctx, occurrence("web-1", "disk_usage", model.SeverityHigh))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	// The window elapsed but the idle sweep has not run: the stale group
	// is still active and blocks the unique key. The occurrence must not
	// be lost in that gap.
	clock = base.Add(10 * time.Minute)
	second, err := engine.Ingest(ctx, occurrence("web-1", "disk_usage", model.SeverityHigh))
	if err != nil {
		t.Fatalf("Ingest() in sweep gap error = %v", err)
	}
	if second.Appended {
		t.Error("occurrence past the window was appended to the stale group")
	}
	if second.AlertID == first.AlertID {
		t.Error("new group reused the previous alert")
	}
	if len(storage.alerts) != 2 {
		t.Errorf("alerts created = %d, want 2", len(storage.alerts))
	}
}

func TestIngestRejectsUnknownSeverity(t *testing.T) {
	engine := NewEngine(newFakeGroupStorage(), &fakeEscalator{}, nil)
	if _, err := engine.Ingest(context.Background(), occurrence("web-1", "disk_usage", "fatal")); err == nil {
		t.Error("Ingest() with unknown severity expected error")
	}
}

func TestIngestCreationRaceFallsBackToAppend(t *testing.T) {
	storage := newFakeGroupStorage()
	ctx := context.Background()

	// A concurrent writer owns the active group; our insert loses the
	// unique-key race and the occurrence joins that group instead.
	storage.groups["web-1|disk_usage|high"] = &model.AlertGroup{
		GroupID:          "grp-race",
		GroupKey:         "web-1|disk_usage|high",
		AlertID:          "alert-race",
		LastOccurrenceAt: time.Now().Add(time.Hour),
		OccurrenceCount:  1,
		Status:           model.GroupActive,
	}
	raceStorage := &racingStorage{fakeGroupStorage: storage}
	engine := NewEngine(raceStorage, &fakeEscalator{}, nil)

	result, err := engine.Ingest(ctx, occurrence("web-1", "disk_usage", model.SeverityHigh))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if !result.Appended || result.AlertID != "alert-race" {
		t.Errorf("result = %+v, want append to alert-race", result)
	}
}

// racingStorage misses on the first append so the engine takes the
// create path and loses the duplicate-key race.
type racingStorage struct {
	*fakeGroupStorage
	appendCalls int
}

func (r *racingStorage) AppendOccurrence(ctx context.Context, groupKey string, at time.Time, window time.Duration) (string, bool, error) {
	r.appendCalls++
	if r.appendCalls == 1 {
		return "", false, nil
	}
	return r.fakeGroupStorage.AppendOccurrence(ctx, groupKey, at, window)
}

func TestIngestEscalationFailureSurfaces(t *testing.T) {
	storage := newFakeGroupStorage()
	engine := NewEngine(storage, &fakeEscalator{err: errors.New("db down")}, nil)

	_, err := engine.Ingest(context.Background(), occurrence("web-1", "disk_usage", model.SeverityHigh))
	if err == nil {
		t.Fatal("Ingest() with escalation failure expected error")
	}
	// The alert itself is persisted before scheduling fails.
	if len(storage.alerts) != 1 {
		t.Errorf("alerts created = %d, want 1", len(storage.alerts))
	}
}

func TestDefaultKey(t *testing.T) {
	occ := occurrence("web-1", "disk_usage", model.SeverityHigh)
	if got := DefaultKey(occ); got != "web-1|disk_usage|high" {
		t.Errorf("DefaultKey() = %q", got)
	}
}

func TestCustomKeyFunc(t *testing.T) {
	storage := newFakeGroupStorage()
	engine := NewEngine(storage, &fakeEscalator{}, nil)
	engine.SetKeyFunc(func(occ *model.Occurrence) string { return occ.CheckName })
	ctx := context.Background()

	r1, err := engine.Ingest(ctx, occurrence("web-1", "disk_usage", model.SeverityHigh))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	// Different source, same check: grouped under the custom key.
	r2, err := engine.Ingest(ctx, occurrence("web-2", "disk_usage", model.SeverityHigh))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if !r2.Appended || r2.AlertID != r1.AlertID {
		t.Errorf("result = %+v, want append to %s", r2, r1.AlertID)
	}
}

type stubCloserStorage struct {
	closed    []string
	err       error
	gotWindow time.Duration
	gotLimit  int
}

func (s *stubCloserStorage) ClaimIdleGroups(_ context.Context, window time.Duration, limit int) ([]string, error) {
	s.gotWindow = window
	s.gotLimit = limit
	return s.closed, s.err
}

func TestIdleCloserSweep(t *testing.T) {
	storage := &stubCloserStorage{closed: []string{"grp-1", "grp-2"}}
	closer := NewIdleCloser(storage, 5*time.Minute, time.Second, 200, nil)

	closer.Sweep(context.Background())

	if storage.gotWindow != 5*time.Minute {
		t.Errorf("window = %s, want 5m", storage.gotWindow)
	}
	if storage.gotLimit != 200 {
		t.Errorf("limit = %d, want 200", storage.gotLimit)
	}
}

func TestIdleCloserSweepError(t *testing.T) {
	storage := &stubCloserStorage{err: errors.New("db down")}
	closer := NewIdleCloser(storage, 5*time.Minute, time.Second, 200, nil)

	// Errors are logged and the sweep retries next tick.
	closer.Sweep(context.Background())
}
