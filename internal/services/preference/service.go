package preference

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"newsdesk/internal/domain/persistence"
	"newsdesk/internal/domain/profile"
	"newsdesk/internal/metrics"
	"newsdesk/pkg/errors"
	"newsdesk/pkg/logger"
)

// Mutator edits a private copy of the current profile. It may run more
// than once when a concurrent writer wins the race. A returned error
// aborts the update without retrying.
type Mutator func(p *profile.UserProfile) error

// ChangeListener is notified after a committed update
type ChangeListener func(ctx context.Context, p profile.UserProfile)

const (
	defaultMaxRetries = 5
	defaultBackoff    = 200 * time.Microsecond
)

// Store keeps user profiles in memory. Reads are lock-free; writes commit
// through a compare-and-swap on the per-user slot, so concurrent writers
// retry instead of blocking each other.
type Store struct {
	slots sync.Map // user_id -> *atomic.Pointer[profile.UserProfile]

	maxRetries int
	backoff    time.Duration
	kv         persistence.KV
	listeners  []ChangeListener
	now        func() time.Time
	log        *logger.Logger
}

// Option configures a Store
type Option func(*Store)

// WithMaxRetries bounds the read-apply-write attempts of Update
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithRetryBackoff sets the upper bound of the jittered pause between attempts
func WithRetryBackoff(d time.Duration) Option {
	return func(s *Store) { s.backoff = d }
}

// WithPersistence enables write-behind to a KV collaborator
func WithPersistence(kv persistence.KV) Option {
	return func(s *Store) { s.kv = kv }
}

// WithListener registers a hook run after every committed update
func WithListener(l ChangeListener) Option {
	return func(s *Store) { s.listeners = append(s.listeners, l) }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger overrides the logger
func WithLogger(log *logger.Logger) Option {
	return func(s *Store) { s.log = log }
}

// NewStore creates an empty preference store
func NewStore(opts ...Option) *Store {
	s := &Store{
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Component("preference_store")
	}
	return s
}

func (s *Store) slot(userID string) *atomic.Pointer[profile.UserProfile] {
	if v, ok := s.slots.Load(userID); ok {
		return v.(*atomic.Pointer[profile.UserProfile])
	}
	v, _ := s.slots.LoadOrStore(userID, new(atomic.Pointer[profile.UserProfile]))
	return v.(*atomic.Pointer[profile.UserProfile])
}

// Get returns a snapshot of the user's profile. Unknown users get an
// empty profile at version 0.
func (s *Store) Get(userID string) profile.UserProfile {
	if cur := s.slot(userID).Load(); cur != nil {
		return cur.Clone()
	}
	return profile.New(userID)
}

// Snapshot loads the profile from persistence when it is not yet in
// memory, then returns Get. Persistence failures are logged, not returned.
func (s *Store) Snapshot(ctx context.Context, userID string) profile.UserProfile {
	if err := s.Warm(ctx, userID); err != nil {
		s.log.Warnw("Profile warm-up failed, using in-memory profile", "user_id", userID, "error", err)
	}
	return s.Get(userID)
}

// Warm fills the in-memory slot from persistence if it is empty
func (s *Store) Warm(ctx context.Context, userID string) error {
	slot := s.slot(userID)
	if s.kv == nil || slot.Load() != nil {
		return nil
	}

	data, ok, err := s.kv.Load(ctx, persistence.ProfileKey(userID))
	if err != nil {
		return errors.Wrapf(err, "load profile %s", userID)
	}
	if !ok {
		return nil
	}

	var p profile.UserProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return errors.Wrapf(err, "decode profile %s", userID)
	}
	p.UserID = userID

	// A writer that got here first wins; its version is at least as new.
	slot.CompareAndSwap(nil, &p)
	return nil
}

// Update applies mutate with compare-and-swap, retrying bounded times.
// Exhausted retries fail with ErrPreferenceConflict.
func (s *Store) Update(ctx context.Context, userID string, mutate Mutator) (profile.UserProfile, error) {
	if userID == "" {
		return profile.UserProfile{}, errors.NewValidationError("user_id", "required", userID)
	}

	slot := s.slot(userID)
	if err := s.Warm(ctx, userID); err != nil {
		s.log.Warnw("Profile warm-up failed before update", "user_id", userID, "error", err)
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return profile.UserProfile{}, errors.Wrapf(errors.ErrTimeout, "update profile %s: %v", userID, err)
		}

		cur := slot.Load()
		base := profile.New(userID)
		if cur != nil {
			base = *cur
		}

		next := base.Clone()
		if err := mutate(&next); err != nil {
			metrics.RecordPreferenceUpdate("rejected", attempt)
			return profile.UserProfile{}, errors.Wrapf(err, "mutate profile %s", userID)
		}
		next.UserID = userID
		next.Version = base.Version + 1
		next.UpdatedAt = s.now()

		if err := next.Validate(); err != nil {
			metrics.RecordPreferenceUpdate("rejected", attempt)
			return profile.UserProfile{}, err
		}

		if slot.CompareAndSwap(cur, &next) {
			metrics.RecordPreferenceUpdate("committed", attempt)
			s.afterCommit(ctx, next)
			return next.Clone(), nil
		}

		s.pause()
	}

	metrics.RecordPreferenceUpdate("conflict", s.maxRetries)
	s.log.Warnw("Profile update lost every CAS attempt", "user_id", userID, "attempts", s.maxRetries)

	return profile.UserProfile{}, errors.Wrapf(errors.ErrPreferenceConflict, "user %s after %d attempts", userID, s.maxRetries)
}

func (s *Store) pause() {
	if s.backoff <= 0 {
		return
	}
	time.Sleep(rand.N(s.backoff))
}

func (s *Store) afterCommit(ctx context.Context, p profile.UserProfile) {
	if s.kv != nil {
		if data, err := json.Marshal(p); err != nil {
			s.log.Warnw("Failed to encode profile for write-behind", "user_id", p.UserID, "error", err)
		} else if err := s.kv.Store(ctx, persistence.ProfileKey(p.UserID), data, persistence.StoreOptions{Version: p.Version}); err != nil {
			s.log.Warnw("Profile write-behind failed", "user_id", p.UserID, "version", p.Version, "error", err)
		}
	}

	for _, l := range s.listeners {
		l(ctx, p.Clone())
	}

	s.log.Debugw("Profile updated", "user_id", p.UserID, "version", p.Version, "topics", len(p.TopicWeights))
}

// Len returns the number of users with a profile in memory
func (s *Store) Len() int {
	n := 0
	s.slots.Range(func(_, v any) bool {
		if v.(*atomic.Pointer[profile.UserProfile]).Load() != nil {
			n++
		}
		return true
	})
	return n
}

// SetWeight returns a Mutator that sets one topic weight
func SetWeight(topic string, weight float64) Mutator {
	return func(p *profile.UserProfile) error {
		if topic == "" {
			return errors.NewValidationError("topic", "required", topic)
		}
		p.TopicWeights[topic] = weight
		return nil
	}
}

// RemoveTopic returns a Mutator that deletes a topic weight
func RemoveTopic(topic string) Mutator {
	return func(p *profile.UserProfile) error {
		delete(p.TopicWeights, topic)
		return nil
	}
}
