package discovery

import (
	"container/list"
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"
)

// PeerStore is a bounded, TTL-evicting collection of (topic -> set of
// peers) with uniform random sampling on read (spec.md §3, §4.1).
//
// A single mutex guards all state, satisfying option (ii) of spec.md §5
// scoped to this component: Store never needs to hold any other
// component's lock while its own is held, so a per-component lock is
// equivalent to the single-actor model the spec allows.
type PeerStore struct {
	mu sync.Mutex

	ttl   time.Duration // 0 disables expiration
	limit int           // 0 disables the global cap

	topics map[Topic]map[peerKey]*peerEntry
	order  *list.List // insertion order, front = oldest, for global eviction
	count  int
}

type peerKey struct {
	host string
	port uint16
}

type peerEntry struct {
	topic      Topic
	key        peerKey
	peer       Peer
	insertedAt time.Time
	elem       *list.Element
}

// NewPeerStore constructs an empty store. ttl of 0 disables expiration;
// limit of 0 disables the global cap.
func NewPeerStore(ttl time.Duration, limit int) *PeerStore {
	return &PeerStore{
		ttl:    ttl,
		limit:  limit,
		topics: make(map[Topic]map[peerKey]*peerEntry),
		order:  list.New(),
	}
}

// Add inserts (topic, host, port), returning true iff the tuple was not
// already present. A duplicate insertion refreshes the entry's
// timestamp and returns false. Enforces limit by evicting the globally
// oldest entry before insert (spec.md §4.1).
func (s *PeerStore) Add(topic Topic, host string, port uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.purgeTopicLocked(topic, now)

	key := peerKey{host: host, port: port}
	bucket := s.topics[topic]
	if bucket == nil {
		bucket = make(map[peerKey]*peerEntry)
		s.topics[topic] = bucket
	}

	if existing, ok := bucket[key]; ok {
		existing.insertedAt = now
		s.order.MoveToBack(existing.elem)
		return false
	}

	if s.limit > 0 && s.count >= s.limit {
		s.evictOldestLocked()
	}

	ent := &peerEntry{topic: topic, key: key, peer: NewPeer(host, port), insertedAt: now}
	ent.elem = s.order.PushBack(ent)
	bucket[key] = ent
	s.count++
	return true
}

// Remove deletes the exact (topic, host, port) tuple. No-op if absent.
func (s *PeerStore) Remove(topic Topic, host string, port uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.topics[topic]
	if bucket == nil {
		return
	}
	key := peerKey{host: host, port: port}
	ent, ok := bucket[key]
	if !ok {
		return
	}
	s.removeEntryLocked(bucket, topic, ent)
}

// Get samples up to max peers for topic, uniformly at random without
// replacement (spec.md §4.1, §9 "random sampling"). Expired entries for
// this topic are lazily purged first.
func (s *PeerStore) Get(topic Topic, max int) []Peer {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeTopicLocked(topic, time.Now())
	bucket := s.topics[topic]
	if len(bucket) == 0 {
		return nil
	}

	all := make([]Peer, 0, len(bucket))
	for _, ent := range bucket {
		all = append(all, ent.peer)
	}
	return sampleUniform(all, max)
}

// Iterate returns every topic's full peer set in arbitrary order, used
// only for JSON export (spec.md §4.1). Expired entries are purged
// first.
func (s *PeerStore) Iterate() map[Topic][]Peer {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	out := make(map[Topic][]Peer, len(s.topics))
	for topic := range s.topics {
		s.purgeTopicLocked(topic, now)
		bucket := s.topics[topic]
		if len(bucket) == 0 {
			continue
		}
		peers := make([]Peer, 0, len(bucket))
		for _, ent := range bucket {
			peers = append(peers, ent.peer)
		}
		out[topic] = peers
	}
	return out
}

// Size returns the total peer count across every topic (I2).
func (s *PeerStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *PeerStore) purgeTopicLocked(topic Topic, now time.Time) {
	if s.ttl == 0 {
		return
	}
	bucket := s.topics[topic]
	if bucket == nil {
		return
	}
	for key, ent := range bucket {
		if now.Sub(ent.insertedAt) > s.ttl {
			s.removeEntryLocked(bucket, topic, ent)
			_ = key
		}
	}
}

func (s *PeerStore) evictOldestLocked() {
	front := s.order.Front()
	if front == nil {
		return
	}
	ent := front.Value.(*peerEntry)
	bucket := s.topics[ent.topic]
	s.removeEntryLocked(bucket, ent.topic, ent)
}

// removeEntryLocked deletes ent from bucket and the global order list,
// and drops the topic's container entirely if it becomes empty (I3).
func (s *PeerStore) removeEntryLocked(bucket map[peerKey]*peerEntry, topic Topic, ent *peerEntry) {
	delete(bucket, ent.key)
	s.order.Remove(ent.elem)
	s.count--
	if len(bucket) == 0 {
		delete(s.topics, topic)
	}
}

// sampleUniform returns up to max elements of all, in uniformly random
// order, via partial Fisher-Yates — spec.md §9 warns against returning
// the head of a list, which would amplify early-inserted peers.
func sampleUniform(all []Peer, max int) []Peer {
	n := len(all)
	if max < n {
		n = max
	}
	if n <= 0 {
		return nil
	}
	for i := 0; i < n; i++ {
		j := i + randIntn(len(all)-i)
		all[i], all[j] = all[j], all[i]
	}
	out := make([]Peer, n)
	copy(out, all[:n])
	return out
}

// randIntn returns a uniform random integer in [0, n) using a CSPRNG;
// the peer store's sampling fairness matters enough (spec.md §9) to
// avoid math/rand's weaker guarantees and global lock contention.
func randIntn(n int) int {
	if n <= 0 {
		return 0
	}
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	v := binary.BigEndian.Uint64(buf[:])
	return int(v % uint64(n))
}
