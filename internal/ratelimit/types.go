package ratelimit

import (
	"sync"
	"time"

	internalsettings "github.com/rojo-studio/rojo-server/internal/settings"
)

// Config holds the limiter knobs.
type Config struct {
	// Window is the trailing window used to count admitted requests.
	Window time.Duration
	// DefaultLimit is the quota for users without an override.
	DefaultLimit int
	// MaxInFlight is the system-wide concurrency ceiling.
	MaxInFlight int
}

// DefaultConfig returns six requests per hour with three in flight.
func DefaultConfig() Config {
	return Config{
		Window:       time.Duration(internalsettings.DefaultRateLimitWindowSeconds) * time.Second,
		DefaultLimit: internalsettings.DefaultRateLimitRequestsPerWindow,
		MaxInFlight:  internalsettings.DefaultRateLimitMaxInFlight,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.Window <= 0 {
		c.Window = def.Window
	}
	if c.DefaultLimit < 0 {
		c.DefaultLimit = def.DefaultLimit
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = def.MaxInFlight
	}
	return c
}

// Status is a user's view of their quota and queue slot.
type Status struct {
	Used          int       `json:"used"`
	Limit         int       `json:"limit"`
	ResetAt       time.Time `json:"reset_at"`
	QueuePosition int       `json:"queue_position,omitempty"`
	InQueue       bool      `json:"in_queue"`
}

// Ticket tracks one queue slot. Done closes when the slot is admitted by a
// drain or dropped by a reset or withdrawal.
type Ticket struct {
	RequestID  string
	UserID     uint64
	EnqueuedAt time.Time

	once     sync.Once
	done     chan struct{}
	admitted bool
}

func newTicket(requestID string, userID uint64, now time.Time) *Ticket {
	return &Ticket{
		RequestID:  requestID,
		UserID:     userID,
		EnqueuedAt: now,
		done:       make(chan struct{}),
	}
}

// Done is closed once the ticket is resolved.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Admitted reports whether the slot was admitted. Only meaningful after Done.
func (t *Ticket) Admitted() bool {
	select {
	case <-t.done:
		return t.admitted
	default:
		return false
	}
}

func (t *Ticket) resolve(admitted bool) {
	t.once.Do(func() {
		t.admitted = admitted
		close(t.done)
	})
}
