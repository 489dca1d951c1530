// Package ratelimit admits chat requests against a per-user sliding window
// and a system-wide in-flight ceiling, queueing denied users in FIFO order.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rojo-studio/rojo-server/internal/kvstore"
	log "github.com/sirupsen/logrus"
)

// ErrInvalidCount is returned for non-positive bonus or negative limits.
var ErrInvalidCount = errors.New("ratelimit: count must be positive")

// Limiter is safe for concurrent use.
type Limiter struct {
	store kvstore.Store
	nowFn func() time.Time

	mu       sync.Mutex
	cfg      Config
	requests map[uint64][]time.Time
	limits   map[uint64]int
	inFlight map[string]struct{}
	queue    []*Ticket
	// granted holds tickets admitted by a drain that no caller has claimed yet.
	granted map[uint64]*Ticket
	// claimed counts drained admissions whose caller has not reached
	// BeginInFlight. Both granted and claimed hold in-flight capacity.
	claimed int
	version uint64

	persistMu sync.Mutex
	persisted uint64
}

// NewLimiter constructs a Limiter and restores its snapshot from store.
func NewLimiter(ctx context.Context, store kvstore.Store, cfg Config, nowFn func() time.Time) *Limiter {
	if store == nil {
		store = kvstore.NewMemoryStore(nowFn)
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	l := &Limiter{
		store:    store,
		nowFn:    nowFn,
		cfg:      cfg.normalized(),
		requests: make(map[uint64][]time.Time),
		limits:   make(map[uint64]int),
		inFlight: make(map[string]struct{}),
		granted:  make(map[uint64]*Ticket),
	}
	if errLoad := l.load(ctx); errLoad != nil {
		log.WithError(errLoad).Warn("rate limit: failed to restore snapshot, starting empty")
	}
	return l
}

// Configure replaces the window, default quota and ceiling.
func (l *Limiter) Configure(cfg Config) {
	cfg = cfg.normalized()
	l.mu.Lock()
	changed := l.cfg != cfg
	l.cfg = cfg
	l.mu.Unlock()
	if changed {
		log.WithFields(log.Fields{
			"window":        cfg.Window.String(),
			"default_limit": cfg.DefaultLimit,
			"max_in_flight": cfg.MaxInFlight,
		}).Info("rate limit: configuration updated")
	}
}

// Config returns the active configuration.
func (l *Limiter) Config() Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

// CheckAdmission records a usage and returns true when the user is under
// quota and the in-flight set has room. Otherwise the user is queued once
// and false is returned.
func (l *Limiter) CheckAdmission(ctx context.Context, userID uint64) bool {
	ok, _ := l.Admit(ctx, userID)
	return ok
}

// Admit is CheckAdmission that also returns the queue ticket on denial.
func (l *Limiter) Admit(ctx context.Context, userID uint64) (bool, *Ticket) {
	now := l.nowFn()

	l.mu.Lock()
	if _, ok := l.granted[userID]; ok {
		delete(l.granted, userID)
		l.claimed++
		l.mu.Unlock()
		log.WithField("user_id", userID).Debug("rate limit: claimed queued admission")
		return true, nil
	}

	l.pruneLocked(userID, now)
	if len(l.requests[userID]) < l.limitLocked(userID) && l.occupiedLocked() < l.cfg.MaxInFlight {
		l.requests[userID] = append(l.requests[userID], now)
		superseded := l.removeFromQueueLocked(userID)
		snap := l.snapshotLocked()
		l.mu.Unlock()
		if superseded != nil {
			superseded.resolve(false)
		}
		l.persist(ctx, snap)
		return true, nil
	}

	ticket := l.enqueueLocked(userID, now)
	snap := l.snapshotLocked()
	l.mu.Unlock()
	l.persist(ctx, snap)
	return false, ticket
}

// Await blocks until the user is admitted or ctx ends. On ctx end the
// user's queue slot is withdrawn.
func (l *Limiter) Await(ctx context.Context, userID uint64) error {
	for {
		ok, ticket := l.Admit(ctx, userID)
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			l.Withdraw(ticket)
			return ctx.Err()
		case <-ticket.Done():
			if ticket.Admitted() && l.claim(ticket) {
				return nil
			}
		}
	}
}

// Withdraw drops the queue slot held by ticket, if it is still queued.
func (l *Limiter) Withdraw(ticket *Ticket) {
	if ticket == nil {
		return
	}
	l.mu.Lock()
	removed := false
	for i, queued := range l.queue {
		if queued == ticket {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			removed = true
			break
		}
	}
	l.mu.Unlock()
	if removed {
		ticket.resolve(false)
	}
}

// BeginInFlight marks requestID as executing. It returns false when the
// ceiling is already reached. A caller admitted from the queue consumes the
// capacity the drain reserved for it.
func (l *Limiter) BeginInFlight(requestID string) bool {
	if requestID == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.inFlight[requestID]; exists {
		return true
	}
	if l.claimed > 0 {
		l.claimed--
	}
	if l.occupiedLocked() >= l.cfg.MaxInFlight {
		return false
	}
	l.inFlight[requestID] = struct{}{}
	return true
}

// EndInFlight removes requestID and drains the queue into the freed capacity.
func (l *Limiter) EndInFlight(ctx context.Context, requestID string) {
	now := l.nowFn()

	l.mu.Lock()
	delete(l.inFlight, requestID)
	admitted := l.drainLocked(now)
	var snap snapshot
	if len(admitted) > 0 {
		snap = l.snapshotLocked()
	}
	l.mu.Unlock()

	if len(admitted) == 0 {
		return
	}
	for _, ticket := range admitted {
		ticket.resolve(true)
		log.WithFields(log.Fields{
			"user_id":    ticket.UserID,
			"request_id": ticket.RequestID,
			"waited":     now.Sub(ticket.EnqueuedAt).String(),
		}).Info("rate limit: admitted queued request")
	}
	l.persist(ctx, snap)
}

// Status reports usage, quota, reset time and queue position for userID.
func (l *Limiter) Status(userID uint64) Status {
	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	active := l.activeLocked(userID, now)
	status := Status{
		Used:    len(active),
		Limit:   l.limitLocked(userID),
		ResetAt: now,
	}
	if len(active) > 0 {
		status.ResetAt = active[0].Add(l.cfg.Window)
	}
	for i, ticket := range l.queue {
		if ticket.UserID == userID {
			status.QueuePosition = i + 1
			status.InQueue = true
			break
		}
	}
	return status
}

// UserLimit returns the user's quota.
func (l *Limiter) UserLimit(userID uint64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limitLocked(userID)
}

// GrantBonus raises the user's quota by count.
func (l *Limiter) GrantBonus(ctx context.Context, userID uint64, count int) (int, error) {
	if count <= 0 {
		return 0, ErrInvalidCount
	}
	l.mu.Lock()
	limit := l.limitLocked(userID) + count
	l.limits[userID] = limit
	snap := l.snapshotLocked()
	l.mu.Unlock()
	l.persist(ctx, snap)
	return limit, nil
}

// SetUserLimit overrides the user's quota.
func (l *Limiter) SetUserLimit(ctx context.Context, userID uint64, limit int) error {
	if limit < 0 {
		return fmt.Errorf("ratelimit: limit must not be negative: %d", limit)
	}
	l.mu.Lock()
	l.limits[userID] = limit
	snap := l.snapshotLocked()
	l.mu.Unlock()
	l.persist(ctx, snap)
	return nil
}

// ResetUser clears the user's usage records and queue slot. The quota is kept.
func (l *Limiter) ResetUser(ctx context.Context, userID uint64) {
	l.mu.Lock()
	delete(l.requests, userID)
	delete(l.granted, userID)
	dropped := l.removeFromQueueLocked(userID)
	snap := l.snapshotLocked()
	l.mu.Unlock()
	if dropped != nil {
		dropped.resolve(false)
	}
	l.persist(ctx, snap)
}

// ForgetUser removes all state for a deleted user, including quota overrides.
func (l *Limiter) ForgetUser(ctx context.Context, userID uint64) {
	l.mu.Lock()
	delete(l.requests, userID)
	delete(l.limits, userID)
	delete(l.granted, userID)
	dropped := l.removeFromQueueLocked(userID)
	snap := l.snapshotLocked()
	l.mu.Unlock()
	if dropped != nil {
		dropped.resolve(false)
	}
	l.persist(ctx, snap)
}

// InFlight returns the number of executing requests.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.inFlight)
}

// QueueLength returns the number of queued users.
func (l *Limiter) QueueLength() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Limiter) claim(ticket *Ticket) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.granted[ticket.UserID] != ticket {
		return false
	}
	delete(l.granted, ticket.UserID)
	l.claimed++
	return true
}

// occupiedLocked counts executing requests plus capacity reserved for
// queued users the drain already admitted.
func (l *Limiter) occupiedLocked() int {
	return len(l.inFlight) + len(l.granted) + l.claimed
}

func (l *Limiter) limitLocked(userID uint64) int {
	if limit, ok := l.limits[userID]; ok {
		return limit
	}
	return l.cfg.DefaultLimit
}

// activeLocked returns the user's timestamps still inside the window.
func (l *Limiter) activeLocked(userID uint64, now time.Time) []time.Time {
	stamps := l.requests[userID]
	idx := 0
	for idx < len(stamps) && now.Sub(stamps[idx]) >= l.cfg.Window {
		idx++
	}
	return stamps[idx:]
}

func (l *Limiter) pruneLocked(userID uint64, now time.Time) {
	active := l.activeLocked(userID, now)
	if len(active) == 0 {
		delete(l.requests, userID)
		return
	}
	if len(active) != len(l.requests[userID]) {
		pruned := make([]time.Time, len(active))
		copy(pruned, active)
		l.requests[userID] = pruned
	}
}

func (l *Limiter) enqueueLocked(userID uint64, now time.Time) *Ticket {
	for _, queued := range l.queue {
		if queued.UserID == userID {
			return queued
		}
	}
	ticket := newTicket(uuid.NewString(), userID, now)
	l.queue = append(l.queue, ticket)
	log.WithFields(log.Fields{
		"user_id":  userID,
		"position": len(l.queue),
	}).Info("rate limit: request queued")
	return ticket
}

// removeFromQueueLocked drops the user's queue slot and returns its ticket
// for the caller to resolve after unlocking.
func (l *Limiter) removeFromQueueLocked(userID uint64) *Ticket {
	for i, queued := range l.queue {
		if queued.UserID != userID {
			continue
		}
		l.queue = append(l.queue[:i], l.queue[i+1:]...)
		return queued
	}
	return nil
}

// drainLocked admits queued users in FIFO order while capacity remains.
// Entries still over quota keep their position.
func (l *Limiter) drainLocked(now time.Time) []*Ticket {
	spare := l.cfg.MaxInFlight - l.occupiedLocked()
	if spare <= 0 || len(l.queue) == 0 {
		return nil
	}
	var admitted []*Ticket
	remaining := make([]*Ticket, 0, len(l.queue))
	for _, ticket := range l.queue {
		if spare > 0 {
			l.pruneLocked(ticket.UserID, now)
			if len(l.requests[ticket.UserID]) < l.limitLocked(ticket.UserID) {
				l.requests[ticket.UserID] = append(l.requests[ticket.UserID], now)
				l.granted[ticket.UserID] = ticket
				admitted = append(admitted, ticket)
				spare--
				continue
			}
		}
		remaining = append(remaining, ticket)
	}
	l.queue = remaining
	return admitted
}
