package monitoring

import (
	"crypto/sha1"
	"encoding/hex"
	"sync"
	"time"
)

const defaultMaxStale = 5 * time.Minute

// Freshness captures how recent the store's view of the gateway is.
type Freshness struct {
	LastSuccess         time.Time `json:"lastSuccess"`
	LastError           time.Time `json:"lastError,omitempty"`
	LastErrorMessage    string    `json:"lastErrorMessage,omitempty"`
	LastMutated         time.Time `json:"lastMutated,omitempty"`
	ChangeHash          string    `json:"changeHash,omitempty"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	// StalenessSeconds is -1 until the first success.
	StalenessSeconds float64 `json:"stalenessSeconds"`
	// Score is the staleness normalized to [0,1] against the max stale window.
	Score float64 `json:"score"`
}

// StalenessTracker maintains freshness metadata for the polled gateway.
type StalenessTracker struct {
	mu       sync.RWMutex
	entry    Freshness
	maxStale time.Duration
}

// NewStalenessTracker builds a tracker with the default decay window.
func NewStalenessTracker() *StalenessTracker {
	return &StalenessTracker{maxStale: defaultMaxStale}
}

// SetMaxStale overrides the score decay window.
func (t *StalenessTracker) SetMaxStale(maxStale time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if maxStale > 0 {
		t.maxStale = maxStale
	}
}

// UpdateSuccess records a usable response. The change hash only moves, and
// LastMutated with it, when the content differs.
func (t *StalenessTracker) UpdateSuccess(at time.Time, hash string) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.entry.LastSuccess = at
	t.entry.ConsecutiveFailures = 0
	if hash != "" && hash != t.entry.ChangeHash {
		t.entry.ChangeHash = hash
		t.entry.LastMutated = at
	}
}

// UpdateError records a failed or unusable poll.
func (t *StalenessTracker) UpdateError(at time.Time, err error) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.entry.LastError = at
	t.entry.ConsecutiveFailures++
	if err != nil {
		t.entry.LastErrorMessage = err.Error()
	}
}

// Snapshot returns the freshness metadata with staleness computed at now.
func (t *StalenessTracker) Snapshot(now time.Time) Freshness {
	if t == nil {
		return Freshness{StalenessSeconds: -1, Score: 1}
	}

	t.mu.RLock()
	snap := t.entry
	maxStale := t.maxStale
	t.mu.RUnlock()

	if snap.LastSuccess.IsZero() {
		snap.StalenessSeconds = -1
		snap.Score = 1
		return snap
	}

	age := now.Sub(snap.LastSuccess)
	if age <= 0 {
		return snap
	}
	snap.StalenessSeconds = age.Seconds()

	if maxStale <= 0 {
		maxStale = defaultMaxStale
	}
	snap.Score = age.Seconds() / maxStale.Seconds()
	if snap.Score > 1 {
		snap.Score = 1
	}
	return snap
}

func contentHash(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	sum := sha1.Sum(payload)
	return hex.EncodeToString(sum[:])
}
