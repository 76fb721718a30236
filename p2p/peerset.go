package p2p

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/example/gnode/internal/gethlog"
)

var log = gethlog.New("p2p")

// disconnectThreshold is the number of consensus-error penalties a peer can
// accrue before it is dropped.
const disconnectThreshold = -10

// requestsPerSecond and requestBurst bound how often a single peer's
// requests are honored, generalizing a bounded-timeout guideline to
// per-peer throttling.
const (
	requestsPerSecond = 20
	requestBurst      = 40
)

// PeerSet is the flat connection roster: no Kademlia routing or other
// gossip-layer topology optimization.
type PeerSet struct {
	mu      sync.RWMutex
	peers   map[uuid.UUID]*Peer
	limiter map[uuid.UUID]*rate.Limiter
}

// NewPeerSet constructs an empty roster.
func NewPeerSet() *PeerSet {
	return &PeerSet{
		peers:   make(map[uuid.UUID]*Peer),
		limiter: make(map[uuid.UUID]*rate.Limiter),
	}
}

// Connect admits a newly handshaked peer into the roster.
func (s *PeerSet) Connect(p *Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[p.ID] = p
	s.limiter[p.ID] = rate.NewLimiter(rate.Limit(requestsPerSecond), requestBurst)
	log.Info("peer connected", "id", p.ID.String(), "peers", len(s.peers))
}

// Disconnect removes a peer and closes its transport.
func (s *PeerSet) Disconnect(id uuid.UUID) {
	s.mu.Lock()
	p, ok := s.peers[id]
	delete(s.peers, id)
	delete(s.limiter, id)
	s.mu.Unlock()
	if ok {
		p.Close()
		log.Info("peer disconnected", "id", id.String())
	}
}

// Roster returns every connected peer except excluded, used for broadcast
// (excludes the peer a block came from) and GET_NODES replies.
func (s *PeerSet) Roster(excluded uuid.UUID) []*Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Peer, 0, len(s.peers))
	for id, p := range s.peers {
		if id == excluded {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Get returns the peer with id, if connected.
func (s *PeerSet) Get(id uuid.UUID) (*Peer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.peers[id]
	return p, ok
}

// Allow reports whether a request from id is within its rate budget.
func (s *PeerSet) Allow(id uuid.UUID) bool {
	s.mu.RLock()
	l, ok := s.limiter[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return l.Allow()
}

// Penalize decrements a peer's score for a consensus-error, disconnecting it
// once the score falls past disconnectThreshold. Returns true if the peer was
// disconnected as a result.
func (s *PeerSet) Penalize(id uuid.UUID) bool {
	s.mu.Lock()
	p, ok := s.peers[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	p.score--
	disconnect := p.score <= disconnectThreshold
	s.mu.Unlock()

	if disconnect {
		log.Warn("peer exceeded consensus-error threshold", "id", id.String(), "score", p.score)
		s.Disconnect(id)
	}
	return disconnect
}

// Len reports the number of connected peers.
func (s *PeerSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}
