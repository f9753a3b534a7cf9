package repository

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/zeebo/blake3"

	"github.com/okian/ovation/internal/domain/model"
	"github.com/okian/ovation/pkg/clock"
	"github.com/okian/ovation/pkg/metrics"
)

// Treap-based, in-memory Leaderboard implementation.
//
// Ordering: score DESC, then achieved ASC, then player ASC (deterministic).
// "less" means ranks earlier, so in-order traversal yields the board from
// best to worst. Nodes carry subtree sizes, which makes Rank O(log n).

const defaultTopCacheSize = 100

type node struct {
	entry Entry
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if a should appear before b on the board.
func less(a, b Entry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.Achieved.Equal(b.Achieved) {
		return a.Achieved.Before(b.Achieved)
	}
	return a.Player < b.Player
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

// priority derives a stable heap priority from the player name so the tree
// shape does not depend on insertion order.
func priority(player string) uint64 {
	sum := blake3.Sum256([]byte(player))
	return binary.LittleEndian.Uint64(sum[:8])
}

func insert(n *node, e Entry) *node {
	if n == nil {
		return &node{entry: e, prio: priority(e.Player), size: 1}
	}
	if less(e, n.entry) {
		n.left = insert(n.left, e)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, e)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, e Entry) *node {
	if n == nil {
		return nil
	}
	if n.entry.Player == e.Player && n.entry.Score == e.Score && n.entry.Achieved.Equal(e.Achieved) {
		// Merge children by rotating the higher priority up until leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, e)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, e)
		}
	} else if less(e, n.entry) {
		n.left = deleteNode(n.left, e)
	} else {
		n.right = deleteNode(n.right, e)
	}
	fix(n)
	return n
}

// higher counts entries with a strictly greater score.
func higher(n *node, score int64) int {
	count := 0
	for n != nil {
		if n.entry.Score > score {
			count += 1 + nsize(n.left)
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// collectTopN appends up to limit entries in board order.
func collectTopN(n *node, limit int, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n.entry)
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

// assignRanks gives tied scores the same rank and skips the positions they
// occupy, so a rank is always one plus the number of better scores.
func assignRanks(entries []Entry, first int) {
	for i := range entries {
		if i > 0 && entries[i].Score == entries[i-1].Score {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = first + i
	}
}

// board is the ranking of one track.
type board struct {
	root     *node
	byPlayer map[string]Entry

	// top is the published top-cache snapshot, read without the store lock.
	top atomic.Pointer[[]Entry]
}

type TreapStore struct {
	mu           sync.RWMutex
	boards       map[model.TrackID]*board
	topCacheSize int
	clock        clock.Clock
}

// NewTreapStore constructs an empty leaderboard.
func NewTreapStore(opts ...Option) *TreapStore {
	s := &TreapStore{
		boards:       make(map[model.TrackID]*board),
		topCacheSize: defaultTopCacheSize,
		clock:        clock.Real(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Leaderboard = (*TreapStore)(nil)

// UpdateBest implements Leaderboard.UpdateBest with O(log n) expected time.
func (s *TreapStore) UpdateBest(ctx context.Context, e Entry) (bool, error) {
	start := s.clock.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency(float64(s.clock.Now().Sub(start).Microseconds()) / 1000)
	}()

	if e.Track == "" || e.Player == "" || e.Score < 0 {
		metrics.RecordErrorByComponent("repository", "invalid_entry")
		return false, fmt.Errorf("track %q player %q score %d: %w", e.Track, e.Player, e.Score, ErrInvalidEntry)
	}
	e.Rank = 0

	s.mu.Lock()
	b, ok := s.boards[e.Track]
	if !ok {
		b = &board{byPlayer: make(map[string]Entry)}
		s.boards[e.Track] = b
	}
	if old, ok := b.byPlayer[e.Player]; ok {
		if e.Score <= old.Score {
			s.mu.Unlock()
			return false, nil
		}
		b.root = deleteNode(b.root, old)
	}
	b.byPlayer[e.Player] = e
	b.root = insert(b.root, e)
	s.publish(b)
	count := len(b.byPlayer)
	s.mu.Unlock()

	metrics.RecordLeaderboardUpdate()
	metrics.UpdateLeaderboardEntries(string(e.Track), count)
	return true, nil
}

// publish rebuilds the top-cache snapshot of b. Must be called with s.mu
// held for writing.
func (s *TreapStore) publish(b *board) {
	top := make([]Entry, 0, min(s.topCacheSize, len(b.byPlayer)))
	collectTopN(b.root, s.topCacheSize, &top)
	assignRanks(top, 1)
	b.top.Store(&top)
}

// Rank returns the current rank and best run of a player in O(log n).
func (s *TreapStore) Rank(ctx context.Context, track model.TrackID, player string) (Entry, error) {
	start := s.clock.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(s.clock.Now().Sub(start).Microseconds()) / 1000)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.boards[track]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return Entry{}, fmt.Errorf("track %q: %w", track, ErrNotFound)
	}
	e, ok := b.byPlayer[player]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return Entry{}, fmt.Errorf("player %q on %q: %w", player, track, ErrNotFound)
	}
	e.Rank = 1 + higher(b.root, e.Score)
	return e, nil
}

// TopN returns the top N entries of a track. Requests that fit the top cache
// are served from the published snapshot.
func (s *TreapStore) TopN(ctx context.Context, track model.TrackID, n int) ([]Entry, error) {
	start := s.clock.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(s.clock.Now().Sub(start).Microseconds()) / 1000)
	}()

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	b, ok := s.boards[track]
	if !ok {
		s.mu.RUnlock()
		return []Entry{}, nil
	}
	if n <= s.topCacheSize {
		s.mu.RUnlock()
		top := *b.top.Load()
		out := make([]Entry, min(n, len(top)))
		copy(out, top)
		return out, nil
	}
	defer s.mu.RUnlock()

	out := make([]Entry, 0, min(n, len(b.byPlayer)))
	collectTopN(b.root, n, &out)
	assignRanks(out, 1)
	return out, nil
}

// Count returns the number of players ranked on a track.
func (s *TreapStore) Count(ctx context.Context, track model.TrackID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if b, ok := s.boards[track]; ok {
		return len(b.byPlayer)
	}
	return 0
}

// Tracks lists ranked tracks in ascending order.
func (s *TreapStore) Tracks(ctx context.Context) []model.TrackID {
	s.mu.RLock()
	out := make([]model.TrackID, 0, len(s.boards))
	for id := range s.boards {
		out = append(out, id)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
