package reserve

import (
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"newsdesk/internal/domain/candidate"
	"newsdesk/internal/domain/debate"
	"newsdesk/internal/metrics"
	"newsdesk/pkg/logger"
)

// Ranked is a reserve together with what the producing run knew about it
type Ranked struct {
	Candidates     []candidate.Annotated
	Records        []debate.Record // aligned with Candidates, nil when unknown
	DegradedStages []string
}

func (r Ranked) clone() Ranked {
	out := Ranked{
		Candidates:     cloneAll(r.Candidates),
		DegradedStages: append([]string(nil), r.DegradedStages...),
	}
	if len(r.Records) == len(r.Candidates) && r.Records != nil {
		out.Records = make([]debate.Record, len(r.Records))
		for i, rec := range r.Records {
			out.Records[i] = rec.Clone()
		}
	}
	return out
}

// split returns the first n entries and the rest
func (r Ranked) split(n int) (Ranked, Ranked) {
	head := Ranked{Candidates: r.Candidates[:n], DegradedStages: r.DegradedStages}
	tail := Ranked{Candidates: r.Candidates[n:], DegradedStages: r.DegradedStages}
	if r.Records != nil {
		head.Records, tail.Records = r.Records[:n], r.Records[n:]
	}
	return head.clone(), tail.clone()
}

// Entry is a ranked reserve for one (user, topic). Entries are never
// mutated after being stored; a refresh stores a new Entry.
type Entry struct {
	UserID    string
	Topic     string
	Reserve   Ranked
	CreatedAt time.Time
	TTL       time.Duration

	seq uint64 // insertion order, breaks CreatedAt ties
}

// Fresh reports whether the entry may still be served at now
func (e *Entry) Fresh(now time.Time) bool {
	return now.Sub(e.CreatedAt) < e.TTL
}

type entryKey struct {
	user  string
	topic string
}

// Config bounds the cache
type Config struct {
	DefaultTTL time.Duration
	MaxPerUser int
	MaxTotal   int
}

// Cache holds per (user, topic) reserves behind a RWMutex. Each user has
// an invalidation generation; a reserve computed under an older generation
// is refused.
type Cache struct {
	mu          sync.RWMutex
	entries     map[entryKey]*Entry
	byUser      map[string]map[string]struct{}
	generations map[string]uint64
	seq         uint64

	cfg Config
	now func() time.Time
	log *logger.Logger
}

// Option configures a Cache
type Option func(*Cache)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger overrides the logger
func WithLogger(log *logger.Logger) Option {
	return func(c *Cache) { c.log = log }
}

// NewCache creates an empty cache. Non-positive bounds fall back to defaults.
func NewCache(cfg Config, opts ...Option) *Cache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 3 * time.Hour
	}
	if cfg.MaxPerUser <= 0 {
		cfg.MaxPerUser = 8
	}
	if cfg.MaxTotal < cfg.MaxPerUser {
		cfg.MaxTotal = cfg.MaxPerUser
	}

	c := &Cache{
		entries:     make(map[entryKey]*Entry),
		byUser:      make(map[string]map[string]struct{}),
		generations: make(map[string]uint64),
		cfg:         cfg,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Component("reserve_cache")
	}
	return c
}

// Put supersedes the reserve for (user, topic). A non-positive ttl uses the
// default. An empty candidate list drops the entry so the next lookup misses.
func (c *Cache) Put(userID, topic string, candidates []candidate.Annotated, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(userID, topic, Ranked{Candidates: candidates}, ttl)
}

// Generation returns the user's invalidation generation. Capture it before
// reading the profile a reserve will be ranked under.
func (c *Cache) Generation(userID string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generations[userID]
}

// PutRanked stores r like Put, unless the user was invalidated since
// generation was captured. Reports whether the reserve was stored.
func (c *Cache) PutRanked(userID, topic string, r Ranked, ttl time.Duration, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generations[userID] != generation {
		metrics.RecordCacheEviction("superseded", 1)
		c.log.Debugw("Reserve refused, preferences changed during the run",
			"user_id", userID,
			"topic", topic,
			"generation", generation,
			"current", c.generations[userID],
		)
		return false
	}
	c.putLocked(userID, topic, r, ttl)
	return true
}

func (c *Cache) putLocked(userID, topic string, r Ranked, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	now := c.now()
	candidates := r.Candidates

	if len(candidates) == 0 {
		c.removeLocked(entryKey{userID, topic})
		return
	}

	c.seq++
	c.storeLocked(&Entry{
		UserID:    userID,
		Topic:     topic,
		Reserve:   r.clone(),
		CreatedAt: now,
		TTL:       ttl,
		seq:       c.seq,
	})

	userEvicted := c.enforceUserBoundLocked(userID)
	globalEvicted := c.enforceGlobalBoundLocked()
	metrics.RecordCacheEviction("user_bound", userEvicted)
	metrics.RecordCacheEviction("global_bound", globalEvicted)

	c.log.Debugw("Reserve cached",
		"user_id", userID,
		"topic", topic,
		"candidates", len(candidates),
		"expires", humanize.RelTime(now, now.Add(ttl), "ago", "from now"),
		"evicted", userEvicted+globalEvicted,
	)
}

// Get returns the candidates most recently put for (user, topic) while the
// entry is fresh. Stale or absent entries report fresh=false and no data.
func (c *Cache) Get(userID, topic string) ([]candidate.Annotated, bool) {
	c.mu.RLock()
	e, ok := c.entries[entryKey{userID, topic}]
	c.mu.RUnlock()

	if !ok {
		metrics.RecordCacheLookup("miss")
		return nil, false
	}
	if !e.Fresh(c.now()) {
		metrics.RecordCacheLookup("stale")
		return nil, false
	}

	metrics.RecordCacheLookup("fresh")
	return cloneAll(e.Reserve.Candidates), true
}

// Take serves up to n candidates from a fresh entry and supersedes it with
// the unserved remainder, keeping the original creation time and ttl.
func (c *Cache) Take(userID, topic string, n int) ([]candidate.Annotated, bool) {
	r, ok := c.TakeRanked(userID, topic, n)
	return r.Candidates, ok
}

// TakeRanked is Take returning the records and degradation cached with the
// candidates
func (c *Cache) TakeRanked(userID, topic string, n int) (Ranked, bool) {
	key := entryKey{userID, topic}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		metrics.RecordCacheLookup("miss")
		return Ranked{}, false
	}
	if !e.Fresh(c.now()) {
		metrics.RecordCacheLookup("stale")
		return Ranked{}, false
	}
	metrics.RecordCacheLookup("fresh")

	total := len(e.Reserve.Candidates)
	if n <= 0 || n > total {
		n = total
	}
	served, rest := e.Reserve.split(n)

	if n == total {
		c.removeLocked(key)
	} else {
		c.storeLocked(&Entry{
			UserID:    e.UserID,
			Topic:     e.Topic,
			Reserve:   rest,
			CreatedAt: e.CreatedAt,
			TTL:       e.TTL,
			seq:       e.seq,
		})
	}

	return served, true
}

// InvalidateUser drops every entry of the user immediately and advances the
// user's generation so reserves still being computed are refused
func (c *Cache) InvalidateUser(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generations[userID]++

	topics := c.byUser[userID]
	for topic := range topics {
		delete(c.entries, entryKey{userID, topic})
	}
	delete(c.byUser, userID)

	metrics.RecordCacheEviction("invalidated", len(topics))
	return len(topics)
}

// Sweep removes stale entries and returns how many were dropped
func (c *Cache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if !e.Fresh(now) {
			c.removeLocked(key)
			removed++
		}
	}

	metrics.RecordCacheEviction("expired", removed)
	return removed
}

// Len returns the number of stored entries, fresh or not
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// UserLen returns the number of entries held for one user
func (c *Cache) UserLen(userID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byUser[userID])
}

func (c *Cache) storeLocked(e *Entry) {
	c.entries[entryKey{e.UserID, e.Topic}] = e
	topics, ok := c.byUser[e.UserID]
	if !ok {
		topics = make(map[string]struct{})
		c.byUser[e.UserID] = topics
	}
	topics[e.Topic] = struct{}{}
}

func (c *Cache) removeLocked(key entryKey) {
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	if topics := c.byUser[key.user]; topics != nil {
		delete(topics, key.topic)
		if len(topics) == 0 {
			delete(c.byUser, key.user)
		}
	}
}

func (c *Cache) enforceUserBoundLocked(userID string) int {
	topics := c.byUser[userID]
	excess := len(topics) - c.cfg.MaxPerUser
	if excess <= 0 {
		return 0
	}

	keys := make([]entryKey, 0, len(topics))
	for topic := range topics {
		keys = append(keys, entryKey{userID, topic})
	}
	c.sortOldestFirst(keys)

	for _, key := range keys[:excess] {
		c.removeLocked(key)
	}
	return excess
}

func (c *Cache) enforceGlobalBoundLocked() int {
	excess := len(c.entries) - c.cfg.MaxTotal
	if excess <= 0 {
		return 0
	}

	keys := make([]entryKey, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	c.sortOldestFirst(keys)

	for _, key := range keys[:excess] {
		c.removeLocked(key)
	}
	return excess
}

// sortOldestFirst orders by creation time, then insertion order
func (c *Cache) sortOldestFirst(keys []entryKey) {
	sort.Slice(keys, func(i, j int) bool {
		a, b := c.entries[keys[i]], c.entries[keys[j]]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.seq < b.seq
	})
}

func cloneAll(in []candidate.Annotated) []candidate.Annotated {
	out := make([]candidate.Annotated, len(in))
	for i, a := range in {
		out[i] = a.Clone()
	}
	return out
}
