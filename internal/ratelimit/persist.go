package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rojo-studio/rojo-server/internal/kvstore"
	log "github.com/sirupsen/logrus"
)

// snapshotKey is the kv key holding the limiter state document.
const snapshotKey = "ratelimit:state"

const persistTimeout = 5 * time.Second

// snapshot is the persisted limiter state. The queue and in-flight set are
// process-local and never persisted.
type snapshot struct {
	version  uint64
	Requests map[uint64][]time.Time `json:"requests"`
	Limits   map[uint64]int         `json:"limits"`
}

func (l *Limiter) snapshotLocked() snapshot {
	l.version++
	snap := snapshot{
		version:  l.version,
		Requests: make(map[uint64][]time.Time, len(l.requests)),
		Limits:   make(map[uint64]int, len(l.limits)),
	}
	for userID, stamps := range l.requests {
		copied := make([]time.Time, len(stamps))
		copy(copied, stamps)
		snap.Requests[userID] = copied
	}
	for userID, limit := range l.limits {
		snap.Limits[userID] = limit
	}
	return snap
}

// persist writes snap unless a newer snapshot was already written.
func (l *Limiter) persist(ctx context.Context, snap snapshot) {
	if ctx == nil {
		ctx = context.Background()
	}
	l.persistMu.Lock()
	defer l.persistMu.Unlock()
	if snap.version <= l.persisted {
		return
	}

	payload, errMarshal := json.Marshal(snap)
	if errMarshal != nil {
		log.WithError(errMarshal).Warn("rate limit: marshal snapshot failed")
		return
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if errSet := l.store.Set(writeCtx, snapshotKey, payload, 0); errSet != nil {
		log.WithError(errSet).Warn("rate limit: persist snapshot failed")
		return
	}
	l.persisted = snap.version
}

func (l *Limiter) load(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	payload, errGet := l.store.Get(ctx, snapshotKey)
	if errors.Is(errGet, kvstore.ErrNotFound) {
		return nil
	}
	if errGet != nil {
		return fmt.Errorf("load snapshot: %w", errGet)
	}
	var snap snapshot
	if errUnmarshal := json.Unmarshal(payload, &snap); errUnmarshal != nil {
		return fmt.Errorf("decode snapshot: %w", errUnmarshal)
	}

	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()
	for userID, stamps := range snap.Requests {
		if len(stamps) == 0 {
			continue
		}
		sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
		l.requests[userID] = stamps
		l.pruneLocked(userID, now)
	}
	for userID, limit := range snap.Limits {
		if limit >= 0 {
			l.limits[userID] = limit
		}
	}
	return nil
}
