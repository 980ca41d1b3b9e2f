// Package acquisition drives the search / monitor / import cycle: it turns
// wanted library items into grabs, tracks them through the download client,
// and re-checks finished downloads before they enter the library.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/driftwood/driftwood/internal/downloader"
	"github.com/driftwood/driftwood/internal/history"
	"github.com/driftwood/driftwood/internal/indexer"
	"github.com/driftwood/driftwood/internal/library"
	"github.com/driftwood/driftwood/internal/quality"
)

const searchLimit = 100

// Searcher is the slice of the indexer client the coordinator needs.
type Searcher interface {
	Search(ctx context.Context, req indexer.SearchRequest) ([]indexer.CandidateRelease, error)
	Indexers(ctx context.Context) ([]indexer.IndexerInfo, error)
}

// Recorder logs acquisition events to history.
type Recorder interface {
	RecordGrab(ctx context.Context, data history.GrabData) error
	RecordImport(ctx context.Context, data history.ImportData) error
	RecordUpgrade(ctx context.Context, data history.ImportData) error
	RecordReject(ctx context.Context, data history.RejectData) error
}

// Coordinator owns the three task handlers of the acquisition cycle.
type Coordinator struct {
	library  *library.Service
	profiles *quality.Service
	searcher Searcher
	client   downloader.Client
	store    *DownloadStore
	recorder Recorder
	logger   zerolog.Logger
}

// NewCoordinator wires the acquisition cycle together.
func NewCoordinator(
	lib *library.Service,
	profiles *quality.Service,
	searcher Searcher,
	client downloader.Client,
	store *DownloadStore,
	recorder Recorder,
	logger zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		library:  lib,
		profiles: profiles,
		searcher: searcher,
		client:   client,
		store:    store,
		recorder: recorder,
		logger:   logger.With().Str("component", "acquisition").Logger(),
	}
}

// RunSearch walks every wanted item, searches the index and grabs the best
// acceptable candidate. Bound to the periodic index sync and the requested
// search tasks. Indexer failures fail the whole run so the scheduler
// records them.
func (c *Coordinator) RunSearch(ctx context.Context) error {
	if c.searcher == nil || c.client == nil {
		c.logger.Debug().Msg("Search skipped, indexer or download client not configured")
		return nil
	}

	if err := c.refreshIndexerHealth(ctx); err != nil {
		return err
	}

	wanted, err := c.library.ListWanted(ctx)
	if err != nil {
		return fmt.Errorf("failed to list wanted items: %w", err)
	}

	for i := range wanted {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.searchItem(ctx, &wanted[i]); err != nil {
			return err
		}
	}
	return nil
}

// refreshIndexerHealth fetches the upstream indexer list before a search
// pass so unhealthy indexers show up in the log. Transient failures do not
// block the pass; an auth or configuration failure would make every search
// fail anyway, so it fails the run immediately.
func (c *Coordinator) refreshIndexerHealth(ctx context.Context) error {
	infos, err := c.searcher.Indexers(ctx)
	if err != nil {
		if indexer.IsTransient(err) {
			c.logger.Warn().Err(err).Msg("Indexer health refresh failed, continuing with search")
			return nil
		}
		return fmt.Errorf("indexer health refresh failed: %w", err)
	}

	healthy := 0
	for _, info := range infos {
		if info.Enabled && info.Healthy {
			healthy++
			continue
		}
		c.logger.Warn().
			Str("indexer", info.Name).
			Bool("enabled", info.Enabled).
			Msg("Indexer unhealthy, its releases will be missing from results")
	}
	c.logger.Debug().Int("healthy", healthy).Int("total", len(infos)).Msg("Refreshed indexer health")
	return nil
}

func (c *Coordinator) searchItem(ctx context.Context, w *library.WantedItem) error {
	item := &w.Item

	pending, err := c.store.HasPending(ctx, item.ID)
	if err != nil {
		return err
	}
	if pending {
		return nil
	}

	profile, err := c.profiles.LoadProfile(ctx, item.QualityProfileID)
	if err != nil {
		return fmt.Errorf("failed to load profile for item %d: %w", item.ID, err)
	}

	// Items whose file already satisfies the profile are not worth a
	// search round-trip; the decision engine would keep the current file
	// for every candidate anyway. A file of unknown quality ranks below
	// everything and stays replaceable even with upgrades disabled, so it
	// never short-circuits here.
	if w.CurrentFile != nil {
		rank := currentRank(item.MediaType, w.CurrentFile.QualityID)
		if rank >= profile.CutoffRank() {
			return nil
		}
		if rank > 0 && !profile.UpgradeAllowed {
			return nil
		}
	}

	candidates, err := c.searcher.Search(ctx, indexer.SearchRequest{
		MediaType: item.MediaType,
		Query:     searchQuery(item),
		Limit:     searchLimit,
	})
	if err != nil {
		return fmt.Errorf("search for item %d failed: %w", item.ID, err)
	}
	if len(candidates) == 0 {
		c.logger.Debug().Int64("itemId", item.ID).Str("title", item.Title).Msg("No candidates found")
		return nil
	}

	sortCandidates(item.MediaType, candidates)

	var current *quality.CurrentFile
	if w.CurrentFile != nil {
		current = &quality.CurrentFile{FileID: w.CurrentFile.ID, QualityID: w.CurrentFile.QualityID}
	}

	for _, cand := range candidates {
		decision, err := quality.Decide(profile, cand.QualityID, current)
		if err != nil {
			return fmt.Errorf("decision for item %d failed: %w", item.ID, err)
		}
		if !decision.Accepted() {
			continue
		}

		jobID, err := c.client.Fetch(ctx, cand.SourceRef, cand.Title)
		if err != nil {
			// The next candidate may live on a healthier indexer.
			c.logger.Warn().Err(err).Str("release", cand.Title).Msg("Fetch failed, trying next candidate")
			continue
		}

		if _, err := c.store.Create(ctx, item.ID, cand.Title, cand.SourceRef, cand.QualityID, jobID); err != nil {
			return err
		}

		if err := c.recorder.RecordGrab(ctx, history.GrabData{
			MediaItemID: item.ID,
			Title:       item.Title,
			ReleaseName: cand.Title,
			Indexer:     cand.Indexer,
			Quality:     levelName(item.MediaType, cand.QualityID),
			DownloadID:  jobID,
		}); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record grab")
		}

		c.logger.Info().
			Int64("itemId", item.ID).
			Str("release", cand.Title).
			Str("decision", string(decision.Kind)).
			Msg("Grabbed release")
		return nil
	}

	return nil
}

// RunDownloadMonitor reconciles pending download rows with what the client
// reports. Bound to the download-monitor task.
func (c *Coordinator) RunDownloadMonitor(ctx context.Context) error {
	if c.client == nil {
		c.logger.Debug().Msg("Download monitor skipped, download client not configured")
		return nil
	}

	active, err := c.client.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list client downloads: %w", err)
	}

	byJob := make(map[string]downloader.DownloadItem, len(active))
	for _, item := range active {
		byJob[item.JobID] = item
	}

	pending, err := c.store.ListByStatus(ctx, DownloadPending)
	if err != nil {
		return err
	}

	for _, d := range pending {
		item, ok := byJob[d.ClientJobID]
		if !ok {
			c.logger.Warn().Str("downloadId", d.ID).Str("title", d.Title).Msg("Download vanished from client")
			if err := c.store.MarkFailed(ctx, d.ID, "no longer present in download client"); err != nil {
				return err
			}
			continue
		}

		switch item.Status {
		case downloader.StatusCompleted:
			if err := c.store.MarkCompleted(ctx, d.ID, item.SavePath); err != nil {
				return err
			}
			c.logger.Info().Str("downloadId", d.ID).Str("title", d.Title).Msg("Download completed")
		case downloader.StatusError:
			message := item.Message
			if message == "" {
				message = "download client reported an error"
			}
			if err := c.store.MarkFailed(ctx, d.ID, message); err != nil {
				return err
			}
			c.logger.Warn().Str("downloadId", d.ID).Str("title", d.Title).Msg("Download failed")
		default:
			// Still queued or downloading.
		}
	}
	return nil
}

// RunCompletedScan re-runs each completed download through the decision
// engine against the library's current state. The file on disk may have
// changed while the download ran, so the grab-time decision is not trusted.
// Bound to the completed-scan task.
func (c *Coordinator) RunCompletedScan(ctx context.Context) error {
	completed, err := c.store.ListByStatus(ctx, DownloadCompleted)
	if err != nil {
		return err
	}

	for _, d := range completed {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.importDownload(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) importDownload(ctx context.Context, d *Download) error {
	item, err := c.library.GetItem(ctx, d.MediaItemID)
	if err != nil {
		if errors.Is(err, library.ErrItemNotFound) {
			return c.store.MarkDiscarded(ctx, d.ID, "media item removed from library")
		}
		return err
	}

	profile, err := c.profiles.LoadProfile(ctx, item.QualityProfileID)
	if err != nil {
		return fmt.Errorf("failed to load profile for item %d: %w", item.ID, err)
	}

	currentFile, err := c.library.CurrentFile(ctx, item.ID)
	if err != nil {
		return err
	}
	var current *quality.CurrentFile
	if currentFile != nil {
		current = &quality.CurrentFile{FileID: currentFile.ID, QualityID: currentFile.QualityID}
	}

	decision, err := quality.Decide(profile, d.QualityID, current)
	if err != nil {
		return fmt.Errorf("decision for download %s failed: %w", d.ID, err)
	}

	switch decision.Kind {
	case quality.DecisionAcceptNew:
		if _, err := c.library.AddFile(ctx, library.AddFileInput{
			MediaItemID:  item.ID,
			RelativePath: d.Title,
			QualityID:    d.QualityID,
		}); err != nil {
			return err
		}
		if err := c.recorder.RecordImport(ctx, history.ImportData{
			MediaItemID: item.ID,
			Title:       item.Title,
			Path:        d.Title,
			Quality:     levelName(item.MediaType, d.QualityID),
		}); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record import")
		}
		c.logger.Info().Int64("itemId", item.ID).Str("release", d.Title).Msg("Imported new file")
		return c.store.MarkImported(ctx, d.ID)

	case quality.DecisionUpgrade:
		input := library.AddFileInput{
			MediaItemID:  item.ID,
			RelativePath: d.Title,
			QualityID:    d.QualityID,
		}
		var oldQuality string
		if decision.SupersedesFileID != 0 {
			oldQuality = levelName(item.MediaType, currentFile.QualityID)
			if _, err := c.library.ReplaceFile(ctx, decision.SupersedesFileID, input); err != nil {
				return err
			}
		} else if _, err := c.library.AddFile(ctx, input); err != nil {
			return err
		}
		if err := c.recorder.RecordUpgrade(ctx, history.ImportData{
			MediaItemID: item.ID,
			Title:       item.Title,
			Path:        d.Title,
			Quality:     levelName(item.MediaType, d.QualityID),
			OldQuality:  oldQuality,
		}); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record upgrade")
		}
		c.logger.Info().Int64("itemId", item.ID).Str("release", d.Title).Msg("Imported upgrade")
		return c.store.MarkImported(ctx, d.ID)

	default:
		if err := c.recorder.RecordReject(ctx, history.RejectData{
			MediaItemID: item.ID,
			ReleaseName: d.Title,
			Reason:      decision.Reason,
		}); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record rejection")
		}
		c.logger.Info().
			Int64("itemId", item.ID).
			Str("release", d.Title).
			Str("reason", decision.Reason).
			Msg("Discarded completed download")
		return c.store.MarkDiscarded(ctx, d.ID, decision.Reason)
	}
}

func searchQuery(item *library.MediaItem) string {
	if item.MediaType == quality.MediaTypeMovie && item.Year > 0 {
		return item.Title + " " + strconv.Itoa(item.Year)
	}
	return item.Title
}

// sortCandidates orders by guessed quality rank descending, then seeders.
func sortCandidates(mediaType quality.MediaType, candidates []indexer.CandidateRelease) {
	sort.SliceStable(candidates, func(i, j int) bool {
		ri := currentRank(mediaType, candidates[i].QualityID)
		rj := currentRank(mediaType, candidates[j].QualityID)
		if ri != rj {
			return ri > rj
		}
		return candidates[i].Seeders > candidates[j].Seeders
	})
}

func currentRank(mediaType quality.MediaType, qualityID int) int {
	if level, ok := quality.LevelByID(mediaType, qualityID); ok {
		return level.Rank
	}
	return 0
}

func levelName(mediaType quality.MediaType, qualityID int) string {
	if level, ok := quality.LevelByID(mediaType, qualityID); ok {
		return level.Name
	}
	return "Unknown"
}
