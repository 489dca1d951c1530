// Package watcher polls the settings table into the in-memory snapshot and
// runs periodic housekeeping.
package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rojo-studio/rojo-server/internal/models"
	internalsettings "github.com/rojo-studio/rojo-server/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Default timings for the watcher loop.
const (
	// defaultPollInterval controls how often the settings table is checked.
	defaultPollInterval = 2 * time.Second
	// defaultQueryTimeout bounds DB query duration.
	defaultQueryTimeout = 10 * time.Second
	// defaultPurgeInterval controls how often expired kv entries are removed.
	defaultPurgeInterval = 10 * time.Minute
)

// Purger removes expired entries and reports how many were deleted.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Options configures a Watcher.
type Options struct {
	PollInterval  time.Duration
	PurgeInterval time.Duration
	// OnSettingsChange runs after every snapshot reload, including the first.
	OnSettingsChange func()
	Purger           Purger
}

// Watcher reloads settings when the table changes.
type Watcher struct {
	db   *gorm.DB
	opts Options

	mu                sync.Mutex
	settingsLatestAt  time.Time
	settingsLatestKey string
	hasSettingsLatest bool
}

// New constructs a Watcher.
func New(db *gorm.DB, opts Options) *Watcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.PurgeInterval <= 0 {
		opts.PurgeInterval = defaultPurgeInterval
	}
	return &Watcher{db: db, opts: opts}
}

// Start loads the settings once synchronously, then polls in the background
// until ctx is canceled.
func (w *Watcher) Start(ctx context.Context) {
	w.pollSettings(ctx, true)
	go w.run(ctx)
}

// run executes the periodic polling loop until the context is canceled.
func (w *Watcher) run(ctx context.Context) {
	poll := time.NewTicker(w.opts.PollInterval)
	defer poll.Stop()
	purge := time.NewTicker(w.opts.PurgeInterval)
	defer purge.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			w.pollSettings(ctx, false)
		case <-purge.C:
			w.purge(ctx)
		}
	}
}

// pollSettings refreshes the snapshot when the newest settings row changed.
func (w *Watcher) pollSettings(ctx context.Context, force bool) {
	if w == nil || w.db == nil {
		return
	}
	qctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	// latestRow captures the newest setting timestamp for change detection.
	type latestRow struct {
		Key       string     `gorm:"column:key"`
		UpdatedAt *time.Time `gorm:"column:updated_at"`
	}
	var latest latestRow
	hasLatest := true
	errLatest := w.db.WithContext(qctx).
		Model(&models.Setting{}).
		Select("key", "updated_at").
		Order("updated_at DESC").
		Order("key DESC").
		Limit(1).
		Take(&latest).Error
	if errLatest != nil {
		if errors.Is(errLatest, context.Canceled) {
			return
		}
		if !errors.Is(errLatest, gorm.ErrRecordNotFound) {
			log.WithError(errLatest).Warn("settings watcher: query latest row failed")
			return
		}
		hasLatest = false
	}

	latestKey := strings.TrimSpace(latest.Key)
	latestAt := time.Time{}
	if hasLatest && latest.UpdatedAt != nil {
		latestAt = latest.UpdatedAt.UTC()
	}

	w.mu.Lock()
	unchanged := w.hasSettingsLatest == hasLatest && latestAt.Equal(w.settingsLatestAt) && latestKey == w.settingsLatestKey
	w.mu.Unlock()
	if !force && unchanged {
		return
	}

	if errRefresh := RefreshSettings(qctx, w.db); errRefresh != nil {
		if !errors.Is(errRefresh, context.Canceled) {
			log.WithError(errRefresh).Warn("settings watcher: reload failed")
		}
		return
	}
	if !force {
		log.WithFields(log.Fields{
			"latest_updated_at": latestAt.Format(time.RFC3339Nano),
			"latest_key":        latestKey,
		}).Info("settings watcher: settings changed, reloaded")
	}

	w.mu.Lock()
	w.settingsLatestAt = latestAt
	w.settingsLatestKey = latestKey
	w.hasSettingsLatest = hasLatest
	w.mu.Unlock()

	if w.opts.OnSettingsChange != nil {
		w.opts.OnSettingsChange()
	}
}

func (w *Watcher) purge(ctx context.Context) {
	if w.opts.Purger == nil {
		return
	}
	qctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()
	removed, errPurge := w.opts.Purger.PurgeExpired(qctx)
	if errPurge != nil {
		log.WithError(errPurge).Warn("settings watcher: purge expired entries failed")
		return
	}
	if removed > 0 {
		log.WithField("removed", removed).Debug("settings watcher: purged expired entries")
	}
}

// RefreshSettings rebuilds the in-memory settings snapshot from the DB.
func RefreshSettings(ctx context.Context, db *gorm.DB) error {
	var rows []models.Setting
	if errFind := db.WithContext(ctx).
		Select("key", "value", "updated_at").
		Order("key ASC").
		Find(&rows).Error; errFind != nil {
		return errFind
	}

	values := make(map[string]json.RawMessage, len(rows))
	maxUpdatedAt := time.Time{}
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			continue
		}
		values[key] = json.RawMessage(row.Value)
		if rowUpdatedAt := row.UpdatedAt.UTC(); rowUpdatedAt.After(maxUpdatedAt) {
			maxUpdatedAt = rowUpdatedAt
		}
	}
	internalsettings.StoreDBConfig(maxUpdatedAt, values)
	return nil
}
