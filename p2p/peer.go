// Package p2p implements the peer model, connection roster, wire transport
// framing, and message dispatcher. Byte-for-byte wire compatibility with any
// other node implementation is explicitly out of scope: this package fixes
// the interface surface and a concrete, workable framing rather than a
// consensus-critical wire format.
package p2p

import (
	"github.com/google/uuid"

	"github.com/example/gnode/common"
)

// Message codes, the first byte of every wire frame.
type Code byte

const (
	CodeDisconnect Code = iota
	CodeStatus
	CodeGetNodes
	CodeNodes
	CodeNewTransactions
	CodeNewBlock
	CodeGetBlocks
	CodeBlocks
	CodeGetBlockHeaders
	CodeBlockHeaders
)

func (c Code) String() string {
	switch c {
	case CodeDisconnect:
		return "DISCONNECT"
	case CodeStatus:
		return "STATUS"
	case CodeGetNodes:
		return "GET_NODES"
	case CodeNodes:
		return "NODES"
	case CodeNewTransactions:
		return "NEW_TRANSACTIONS"
	case CodeNewBlock:
		return "NEW_BLOCK"
	case CodeGetBlocks:
		return "GET_BLOCKS"
	case CodeBlocks:
		return "BLOCKS"
	case CodeGetBlockHeaders:
		return "GET_BLOCK_HEADERS"
	case CodeBlockHeaders:
		return "BLOCK_HEADERS"
	default:
		return "UNKNOWN"
	}
}

// Status is the payload of a STATUS message: the peer's protocol/network
// identity and chain tip.
type Status struct {
	ProtocolVersion uint32
	NetworkID       uint64
	BestHash        common.Hash
	GenesisHash     common.Hash
	TotalDifficulty uint64
}

// Peer is one connected remote node. Its lifetime is bound
// to the transport: closure removes it from the roster.
type Peer struct {
	ID uuid.UUID

	Status Status

	transport Transport

	// score decrements on validation failures and disconnects the peer past
	// disconnectThreshold: repeated consensus errors exceed a threshold.
	score int
}

// NewPeer wraps an established transport as a Peer with a fresh session ID.
func NewPeer(transport Transport) *Peer {
	return &Peer{ID: uuid.New(), transport: transport}
}

// Send frames and writes one message to this peer.
func (p *Peer) Send(code Code, payload []byte) error {
	return p.transport.WriteFrame(code, payload)
}

// Receive blocks for the next frame from this peer. Used by the manager's
// per-peer read goroutine to deliver decoded messages onto its event
// thread
func (p *Peer) Receive() (Code, []byte, error) {
	return p.transport.ReadFrame()
}

// Close ends the transport, terminating the peer's lifecycle.
func (p *Peer) Close() error {
	return p.transport.Close()
}
