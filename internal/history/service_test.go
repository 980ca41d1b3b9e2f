package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/driftwood/driftwood/internal/scheduler"
	"github.com/driftwood/driftwood/internal/testutil"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	return NewService(tdb.Conn, nil, tdb.Logger)
}

func TestCreateAndList(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	entry, err := s.Create(ctx, CreateInput{
		EventType: EventTypeGrabbed,
		Data:      map[string]any{"title": "Some Movie"},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if entry.ID == 0 {
		t.Error("entry ID = 0, want non-zero")
	}

	result, err := s.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.TotalCount != 1 || len(result.Items) != 1 {
		t.Fatalf("got %d items (total %d), want 1", len(result.Items), result.TotalCount)
	}
	got := result.Items[0]
	if got.EventType != EventTypeGrabbed {
		t.Errorf("event type = %q, want grabbed", got.EventType)
	}
	if got.Data["title"] != "Some Movie" {
		t.Errorf("data title = %v, want Some Movie", got.Data["title"])
	}
}

func TestReportRun(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	s.ReportRun(scheduler.TaskLibraryScan, scheduler.OutcomeSuccess, 1500*time.Millisecond, nil)
	s.ReportRun(scheduler.TaskBackup, scheduler.OutcomeFailure, 200*time.Millisecond, errors.New("disk full"))

	result, err := s.List(ctx, ListOptions{EventType: string(EventTypeTaskRun)})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("got %d task run entries, want 2", len(result.Items))
	}

	byTask := map[string]*Entry{}
	for _, e := range result.Items {
		byTask[e.TaskType] = e
	}

	scan := byTask[string(scheduler.TaskLibraryScan)]
	if scan == nil {
		t.Fatal("missing library-scan entry")
	}
	if scan.Outcome != string(scheduler.OutcomeSuccess) || scan.DurationMs != 1500 {
		t.Errorf("scan entry = %+v", scan)
	}

	backup := byTask[string(scheduler.TaskBackup)]
	if backup == nil {
		t.Fatal("missing backup entry")
	}
	if backup.Outcome != string(scheduler.OutcomeFailure) || backup.Error != "disk full" {
		t.Errorf("backup entry = %+v", backup)
	}
}

func TestListFiltersByTaskType(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	s.ReportRun(scheduler.TaskCleanup, scheduler.OutcomeSuccess, time.Second, nil)
	s.ReportRun(scheduler.TaskBackup, scheduler.OutcomeSuccess, time.Second, nil)

	result, err := s.List(ctx, ListOptions{TaskType: string(scheduler.TaskCleanup)})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("got %d entries, want 1", len(result.Items))
	}
	if result.Items[0].TaskType != string(scheduler.TaskCleanup) {
		t.Errorf("task type = %q, want cleanup", result.Items[0].TaskType)
	}
}

func TestListPagination(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		if _, err := s.Create(ctx, CreateInput{EventType: EventTypeImported}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	page1, err := s.List(ctx, ListOptions{Page: 1, PageSize: 3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page1.Items) != 3 || page1.TotalCount != 7 || page1.TotalPages != 3 {
		t.Errorf("page1 = %d items, total %d, pages %d", len(page1.Items), page1.TotalCount, page1.TotalPages)
	}

	page3, err := s.List(ctx, ListOptions{Page: 3, PageSize: 3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page3.Items) != 1 {
		t.Errorf("page3 = %d items, want 1", len(page3.Items))
	}
}

func TestCleanup(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, CreateInput{EventType: EventTypeImported}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	// Backdate an entry beyond the retention window.
	old := time.Now().UTC().Add(-40 * 24 * time.Hour)
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO history (event_type, created_at) VALUES (?, ?)`,
		string(EventTypeGrabbed), old); err != nil {
		t.Fatalf("inserting backdated entry: %v", err)
	}

	deleted, err := s.Cleanup(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	result, err := s.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.TotalCount != 1 {
		t.Errorf("remaining = %d, want 1", result.TotalCount)
	}
}

func TestListFiltersBySince(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO history (event_type, created_at) VALUES (?, ?)`,
		string(EventTypeGrabbed), old); err != nil {
		t.Fatalf("inserting backdated entry: %v", err)
	}
	if _, err := s.Create(ctx, CreateInput{EventType: EventTypeImported}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	result, err := s.List(ctx, ListOptions{Since: time.Now().UTC().Add(-time.Hour)})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.TotalCount != 1 {
		t.Fatalf("total = %d, want 1", result.TotalCount)
	}
	if result.Items[0].EventType != EventTypeImported {
		t.Errorf("event type = %q, want imported", result.Items[0].EventType)
	}
}

func TestRecordHelpers(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	if err := s.RecordGrab(ctx, GrabData{MediaItemID: 1, ReleaseName: "Movie.2023.1080p", Quality: "Bluray-1080p"}); err != nil {
		t.Fatalf("RecordGrab() error = %v", err)
	}
	if err := s.RecordUpgrade(ctx, ImportData{MediaItemID: 1, Quality: "Bluray-1080p", OldQuality: "HDTV-720p"}); err != nil {
		t.Fatalf("RecordUpgrade() error = %v", err)
	}
	if err := s.RecordReject(ctx, RejectData{MediaItemID: 1, Reason: "lower-quality"}); err != nil {
		t.Fatalf("RecordReject() error = %v", err)
	}

	result, err := s.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.TotalCount != 3 {
		t.Fatalf("total = %d, want 3", result.TotalCount)
	}

	grabs, err := s.List(ctx, ListOptions{EventType: string(EventTypeGrabbed)})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(grabs.Items) != 1 {
		t.Fatalf("got %d grab entries, want 1", len(grabs.Items))
	}
	if grabs.Items[0].Data["releaseName"] != "Movie.2023.1080p" {
		t.Errorf("grab data = %v", grabs.Items[0].Data)
	}
}
