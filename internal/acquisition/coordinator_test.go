package acquisition

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/driftwood/driftwood/internal/downloader"
	"github.com/driftwood/driftwood/internal/history"
	"github.com/driftwood/driftwood/internal/indexer"
	"github.com/driftwood/driftwood/internal/library"
	"github.com/driftwood/driftwood/internal/quality"
	"github.com/driftwood/driftwood/internal/testutil"
)

type fakeSearcher struct {
	candidates  []indexer.CandidateRelease
	err         error
	indexers    []indexer.IndexerInfo
	indexersErr error
	requests    []indexer.SearchRequest
}

func (f *fakeSearcher) Search(_ context.Context, req indexer.SearchRequest) ([]indexer.CandidateRelease, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

func (f *fakeSearcher) Indexers(_ context.Context) ([]indexer.IndexerInfo, error) {
	if f.indexersErr != nil {
		return nil, f.indexersErr
	}
	return f.indexers, nil
}

type fakeClient struct {
	fetchErr error
	fetched  []string // source refs in order
	active   []downloader.DownloadItem
	failFor  map[string]bool // source refs that should fail
}

func (f *fakeClient) Fetch(_ context.Context, sourceRef, _ string) (string, error) {
	if f.fetchErr != nil {
		return "", f.fetchErr
	}
	if f.failFor[sourceRef] {
		return "", errors.New("fetch refused")
	}
	f.fetched = append(f.fetched, sourceRef)
	return fmt.Sprintf("job-%d", len(f.fetched)), nil
}

func (f *fakeClient) ListActive(_ context.Context) ([]downloader.DownloadItem, error) {
	return f.active, nil
}

type fakeRecorder struct {
	grabs    []history.GrabData
	imports  []history.ImportData
	upgrades []history.ImportData
	rejects  []history.RejectData
}

func (f *fakeRecorder) RecordGrab(_ context.Context, d history.GrabData) error {
	f.grabs = append(f.grabs, d)
	return nil
}

func (f *fakeRecorder) RecordImport(_ context.Context, d history.ImportData) error {
	f.imports = append(f.imports, d)
	return nil
}

func (f *fakeRecorder) RecordUpgrade(_ context.Context, d history.ImportData) error {
	f.upgrades = append(f.upgrades, d)
	return nil
}

func (f *fakeRecorder) RecordReject(_ context.Context, d history.RejectData) error {
	f.rejects = append(f.rejects, d)
	return nil
}

type fixture struct {
	coordinator *Coordinator
	library     *library.Service
	profiles    *quality.Service
	store       *DownloadStore
	searcher    *fakeSearcher
	client      *fakeClient
	recorder    *fakeRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tdb := testutil.NewTestDB(t)

	f := &fixture{
		library:  library.NewService(tdb.Conn, tdb.Logger),
		profiles: quality.NewService(tdb.Conn, tdb.Logger),
		store:    NewDownloadStore(tdb.Conn),
		searcher: &fakeSearcher{},
		client:   &fakeClient{failFor: map[string]bool{}},
		recorder: &fakeRecorder{},
	}
	f.coordinator = NewCoordinator(f.library, f.profiles, f.searcher, f.client, f.store, f.recorder, tdb.Logger)
	return f
}

// newProfile creates a movie profile allowing the given level IDs.
func (f *fixture) newProfile(t *testing.T, cutoff int, upgradeAllowed bool, allowed ...int) int64 {
	t.Helper()
	allowedSet := map[int]bool{}
	for _, id := range allowed {
		allowedSet[id] = true
	}

	var items []quality.ProfileItem
	for _, level := range quality.Ranking(quality.MediaTypeMovie) {
		items = append(items, quality.ProfileItem{Level: level, Allowed: allowedSet[level.ID]})
	}

	profile, err := f.profiles.Create(context.Background(), quality.CreateProfileInput{
		MediaType:      quality.MediaTypeMovie,
		Name:           fmt.Sprintf("test-%d", cutoff),
		Cutoff:         cutoff,
		UpgradeAllowed: upgradeAllowed,
		Items:          items,
	})
	if err != nil {
		t.Fatalf("creating profile: %v", err)
	}
	return profile.ID
}

func (f *fixture) newItem(t *testing.T, profileID int64) *library.MediaItem {
	t.Helper()
	item, err := f.library.CreateItem(context.Background(), library.CreateItemInput{
		MediaType:        quality.MediaTypeMovie,
		Title:            "Some Movie",
		Year:             2023,
		Monitored:        true,
		QualityProfileID: profileID,
	})
	if err != nil {
		t.Fatalf("creating item: %v", err)
	}
	return item
}

func TestRunSearchGrabsBestAcceptedCandidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Allow WEBDL-1080p (10) and Bluray-1080p (11), cutoff Bluray-1080p.
	profileID := f.newProfile(t, 11, true, 10, 11)
	item := f.newItem(t, profileID)

	f.searcher.candidates = []indexer.CandidateRelease{
		{Title: "webdl", QualityID: 10, SourceRef: "ref-webdl", Indexer: "alpha", Seeders: 90},
		{Title: "remux", QualityID: 12, SourceRef: "ref-remux", Indexer: "alpha", Seeders: 10}, // not allowed
		{Title: "bluray", QualityID: 11, SourceRef: "ref-bluray", Indexer: "beta", Seeders: 40},
	}

	if err := f.coordinator.RunSearch(ctx); err != nil {
		t.Fatalf("RunSearch() error = %v", err)
	}

	// Remux sorts first but is rejected; Bluray-1080p is the best accepted.
	if len(f.client.fetched) != 1 || f.client.fetched[0] != "ref-bluray" {
		t.Fatalf("fetched = %v, want [ref-bluray]", f.client.fetched)
	}

	pending, err := f.store.ListByStatus(ctx, DownloadPending)
	if err != nil {
		t.Fatalf("listing downloads: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending downloads, want 1", len(pending))
	}
	if pending[0].MediaItemID != item.ID || pending[0].QualityID != 11 {
		t.Errorf("pending = %+v", pending[0])
	}

	if len(f.recorder.grabs) != 1 {
		t.Fatalf("got %d grab records, want 1", len(f.recorder.grabs))
	}
	if f.recorder.grabs[0].Quality != "Bluray-1080p" {
		t.Errorf("grab quality = %q", f.recorder.grabs[0].Quality)
	}

	// Search query carries the year for movies.
	if len(f.searcher.requests) != 1 || f.searcher.requests[0].Query != "Some Movie 2023" {
		t.Errorf("requests = %+v", f.searcher.requests)
	}
}

func TestRunSearchSkipsItemsAtCutoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	profileID := f.newProfile(t, 10, true, 8, 10, 11)
	item := f.newItem(t, profileID)

	// Current file already above the cutoff rank.
	if _, err := f.library.AddFile(ctx, library.AddFileInput{
		MediaItemID: item.ID, RelativePath: "f.mkv", QualityID: 11,
	}); err != nil {
		t.Fatal(err)
	}

	if err := f.coordinator.RunSearch(ctx); err != nil {
		t.Fatalf("RunSearch() error = %v", err)
	}
	if len(f.searcher.requests) != 0 {
		t.Errorf("expected no search for satisfied item, got %d", len(f.searcher.requests))
	}
}

func TestRunSearchSkipsWhenUpgradesDisabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	profileID := f.newProfile(t, 11, false, 8, 10, 11)
	item := f.newItem(t, profileID)

	if _, err := f.library.AddFile(ctx, library.AddFileInput{
		MediaItemID: item.ID, RelativePath: "f.mkv", QualityID: 8,
	}); err != nil {
		t.Fatal(err)
	}

	if err := f.coordinator.RunSearch(ctx); err != nil {
		t.Fatalf("RunSearch() error = %v", err)
	}
	if len(f.searcher.requests) != 0 {
		t.Errorf("expected no search with upgrades disabled, got %d", len(f.searcher.requests))
	}
}

func TestRunSearchReplacesUnknownQualityFileDespiteUpgradesDisabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Upgrades disabled, but the current file's quality was never guessed.
	// Unknown quality ranks below every level, so the item stays eligible.
	profileID := f.newProfile(t, 11, false, 10, 11)
	item := f.newItem(t, profileID)

	if _, err := f.library.AddFile(ctx, library.AddFileInput{
		MediaItemID: item.ID, RelativePath: "f.mkv", QualityID: 0,
	}); err != nil {
		t.Fatal(err)
	}

	f.searcher.candidates = []indexer.CandidateRelease{
		{Title: "bluray", QualityID: 11, SourceRef: "ref-bluray", Indexer: "alpha", Seeders: 40},
	}

	if err := f.coordinator.RunSearch(ctx); err != nil {
		t.Fatalf("RunSearch() error = %v", err)
	}
	if len(f.searcher.requests) != 1 {
		t.Fatalf("expected a search for the unknown-quality item, got %d", len(f.searcher.requests))
	}
	if len(f.client.fetched) != 1 || f.client.fetched[0] != "ref-bluray" {
		t.Fatalf("fetched = %v, want [ref-bluray]", f.client.fetched)
	}
	if len(f.recorder.grabs) != 1 {
		t.Fatalf("got %d grab records, want 1", len(f.recorder.grabs))
	}
}

func TestRunSearchFailsWhenHealthRefreshRejectsAuth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	profileID := f.newProfile(t, 11, true, 10, 11)
	f.newItem(t, profileID)

	f.searcher.indexersErr = &indexer.StatusError{Op: "indexers", Status: 401}

	err := f.coordinator.RunSearch(ctx)
	if !errors.Is(err, indexer.ErrAuth) {
		t.Fatalf("RunSearch() error = %v, want ErrAuth", err)
	}
	if len(f.searcher.requests) != 0 {
		t.Errorf("expected no searches after an auth failure, got %d", len(f.searcher.requests))
	}
}

func TestRunSearchContinuesWhenHealthRefreshIsTransient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	profileID := f.newProfile(t, 11, true, 10, 11)
	f.newItem(t, profileID)

	f.searcher.indexersErr = &indexer.StatusError{Op: "indexers", Status: 502}
	f.searcher.candidates = []indexer.CandidateRelease{
		{Title: "bluray", QualityID: 11, SourceRef: "ref-bluray", Indexer: "alpha", Seeders: 40},
	}

	if err := f.coordinator.RunSearch(ctx); err != nil {
		t.Fatalf("RunSearch() error = %v", err)
	}
	if len(f.client.fetched) != 1 {
		t.Fatalf("fetched = %v, want one grab despite the failed health refresh", f.client.fetched)
	}
}

func TestRunSearchSkipsItemsWithPendingDownload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	profileID := f.newProfile(t, 11, true, 10, 11)
	item := f.newItem(t, profileID)

	if _, err := f.store.Create(ctx, item.ID, "already grabbed", "ref", 10, "job-x"); err != nil {
		t.Fatal(err)
	}

	if err := f.coordinator.RunSearch(ctx); err != nil {
		t.Fatalf("RunSearch() error = %v", err)
	}
	if len(f.searcher.requests) != 0 {
		t.Errorf("expected no search with a pending download, got %d", len(f.searcher.requests))
	}
}

func TestRunSearchPropagatesIndexerError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	profileID := f.newProfile(t, 11, true, 10, 11)
	f.newItem(t, profileID)

	f.searcher.err = errors.New("indexer down")
	if err := f.coordinator.RunSearch(ctx); err == nil {
		t.Fatal("expected RunSearch to fail when the indexer fails")
	}
}

func TestRunSearchFallsBackWhenFetchFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	profileID := f.newProfile(t, 11, true, 10, 11)
	f.newItem(t, profileID)

	f.searcher.candidates = []indexer.CandidateRelease{
		{Title: "bluray", QualityID: 11, SourceRef: "ref-bluray", Seeders: 40},
		{Title: "webdl", QualityID: 10, SourceRef: "ref-webdl", Seeders: 90},
	}
	f.client.failFor["ref-bluray"] = true

	if err := f.coordinator.RunSearch(ctx); err != nil {
		t.Fatalf("RunSearch() error = %v", err)
	}
	if len(f.client.fetched) != 1 || f.client.fetched[0] != "ref-webdl" {
		t.Errorf("fetched = %v, want fallback to ref-webdl", f.client.fetched)
	}
}

func TestRunDownloadMonitor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	profileID := f.newProfile(t, 11, true, 10, 11)
	item := f.newItem(t, profileID)

	done, err := f.store.Create(ctx, item.ID, "done release", "ref-a", 11, "job-done")
	if err != nil {
		t.Fatal(err)
	}
	broken, err := f.store.Create(ctx, item.ID, "broken release", "ref-b", 10, "job-broken")
	if err != nil {
		t.Fatal(err)
	}
	running, err := f.store.Create(ctx, item.ID, "running release", "ref-c", 10, "job-running")
	if err != nil {
		t.Fatal(err)
	}
	vanished, err := f.store.Create(ctx, item.ID, "gone release", "ref-d", 10, "job-gone")
	if err != nil {
		t.Fatal(err)
	}

	f.client.active = []downloader.DownloadItem{
		{JobID: "job-done", Status: downloader.StatusCompleted, SavePath: "/dl/done"},
		{JobID: "job-broken", Status: downloader.StatusError, Message: "tracker error"},
		{JobID: "job-running", Status: downloader.StatusDownloading, Progress: 0.5},
	}

	if err := f.coordinator.RunDownloadMonitor(ctx); err != nil {
		t.Fatalf("RunDownloadMonitor() error = %v", err)
	}

	assertStatus := func(id string, want DownloadStatus) {
		t.Helper()
		rows, err := f.store.ListByStatus(ctx, want)
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range rows {
			if r.ID == id {
				return
			}
		}
		t.Errorf("download %s not in status %s", id, want)
	}

	assertStatus(done.ID, DownloadCompleted)
	assertStatus(broken.ID, DownloadFailed)
	assertStatus(running.ID, DownloadPending)
	assertStatus(vanished.ID, DownloadFailed)
}

func TestRunCompletedScanImportsNewFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	profileID := f.newProfile(t, 11, true, 10, 11)
	item := f.newItem(t, profileID)

	d, err := f.store.Create(ctx, item.ID, "Some.Movie.2023.1080p.BluRay", "ref", 11, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.store.MarkCompleted(ctx, d.ID, "/dl/some-movie"); err != nil {
		t.Fatal(err)
	}

	if err := f.coordinator.RunCompletedScan(ctx); err != nil {
		t.Fatalf("RunCompletedScan() error = %v", err)
	}

	file, err := f.library.CurrentFile(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if file == nil || file.QualityID != 11 {
		t.Fatalf("current file = %+v, want quality 11", file)
	}
	if len(f.recorder.imports) != 1 {
		t.Errorf("got %d import records, want 1", len(f.recorder.imports))
	}

	imported, err := f.store.ListByStatus(ctx, DownloadImported)
	if err != nil {
		t.Fatal(err)
	}
	if len(imported) != 1 {
		t.Errorf("got %d imported rows, want 1", len(imported))
	}
}

func TestRunCompletedScanUpgradesReplaceCurrentFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	profileID := f.newProfile(t, 11, true, 8, 10, 11)
	item := f.newItem(t, profileID)

	old, err := f.library.AddFile(ctx, library.AddFileInput{
		MediaItemID: item.ID, RelativePath: "old.mkv", QualityID: 8,
	})
	if err != nil {
		t.Fatal(err)
	}

	d, err := f.store.Create(ctx, item.ID, "Some.Movie.2023.1080p.BluRay", "ref", 11, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.store.MarkCompleted(ctx, d.ID, "/dl/some-movie"); err != nil {
		t.Fatal(err)
	}

	if err := f.coordinator.RunCompletedScan(ctx); err != nil {
		t.Fatalf("RunCompletedScan() error = %v", err)
	}

	file, err := f.library.CurrentFile(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if file == nil || file.QualityID != 11 || file.ID == old.ID {
		t.Fatalf("current file = %+v, want replacement at quality 11", file)
	}
	if len(f.recorder.upgrades) != 1 {
		t.Fatalf("got %d upgrade records, want 1", len(f.recorder.upgrades))
	}
	if f.recorder.upgrades[0].OldQuality != "HDTV-1080p" {
		t.Errorf("old quality = %q", f.recorder.upgrades[0].OldQuality)
	}
}

func TestRunCompletedScanDiscardsStaleDownload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	profileID := f.newProfile(t, 11, true, 8, 10, 11)
	item := f.newItem(t, profileID)

	// The download was grabbed at WEBDL-1080p, but a better file landed in
	// the meantime.
	d, err := f.store.Create(ctx, item.ID, "stale release", "ref", 10, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.store.MarkCompleted(ctx, d.ID, "/dl/stale"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.library.AddFile(ctx, library.AddFileInput{
		MediaItemID: item.ID, RelativePath: "better.mkv", QualityID: 11,
	}); err != nil {
		t.Fatal(err)
	}

	if err := f.coordinator.RunCompletedScan(ctx); err != nil {
		t.Fatalf("RunCompletedScan() error = %v", err)
	}

	discarded, err := f.store.ListByStatus(ctx, DownloadDiscarded)
	if err != nil {
		t.Fatal(err)
	}
	if len(discarded) != 1 {
		t.Fatalf("got %d discarded rows, want 1", len(discarded))
	}
	if len(f.recorder.rejects) != 1 || f.recorder.rejects[0].Reason != quality.ReasonCutoffMet {
		t.Errorf("rejects = %+v", f.recorder.rejects)
	}

	file, err := f.library.CurrentFile(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if file == nil || file.QualityID != 11 {
		t.Errorf("current file = %+v, want untouched quality 11", file)
	}
}
