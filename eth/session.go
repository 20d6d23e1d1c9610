package eth

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vanta-network/ethwire/internal/ethwireerr"
	"github.com/vanta-network/ethwire/p2p"
)

const (
	defaultRequestTimeout = 8 * time.Second
	defaultStatusTimeout  = 10 * time.Second

	// knownTxCacheSize bounds how many transaction hashes a session
	// remembers having already seen from this peer, so repeated
	// announcements of the same hash aren't forwarded to the tx pool
	// collaborator over and over.
	knownTxCacheSize = 32768
)

var (
	requestTimer        = metrics.NewRegisteredTimer("eth/requests/latency", nil)
	requestTimeoutMeter = metrics.NewRegisteredMeter("eth/requests/timeout", nil)
)

var (
	errNoChainBackend   = errors.New("eth: session requires a Chain and ForkManager backend to build Status")
	errStatusTimeout    = errors.New("eth: status handshake timeout")
	errStatusValidation = errors.New("eth: status validation failed")
	errProtocolFatal    = errors.New("eth: protocol error")
)

// pendingRequest is one outstanding request-id's correlator entry (spec
// §4.6 "request correlator"): exactly one of resolve/reject/sessionClose
// fires, and it fires at most once, enforced by sync.Once.
type pendingRequest struct {
	reqID     uint64
	key       string
	once      sync.Once
	done      chan struct{}
	decode    func(payload []byte) (any, error)
	result    any
	err       error
	timer     *time.Timer
	startedAt time.Time
}

func (p *pendingRequest) settle(result any, err error) {
	p.once.Do(func() {
		p.result, p.err = result, err
		if p.timer != nil {
			p.timer.Stop()
		}
		close(p.done)
	})
}

// Session is one ETH sub-protocol conversation multiplexed over a single
// p2p.Connection: the STATUS handshake, the request correlator and
// dedup map, and the handler registry (spec §4.6).
type Session struct {
	id      string
	peer    *p2p.Peer
	rw      p2p.MsgReadWriter
	version uint
	backend Backend
	log     log.Logger

	nextReqID atomic.Uint64

	mu       sync.Mutex
	inflight map[uint64]*pendingRequest
	dedup    map[string]*pendingRequest

	localStatus  *StatusPacket
	remoteStatus *StatusPacket

	requestTimeout time.Duration
	statusTimeout  time.Duration

	knownTxs *lru.Cache[common.Hash, struct{}]

	closeOnce sync.Once
	closeCh   chan struct{}
}

func newSession(peer *p2p.Peer, rw p2p.MsgReadWriter, version uint, backend Backend) *Session {
	knownTxs, _ := lru.New[common.Hash, struct{}](knownTxCacheSize)
	return &Session{
		id:             uuid.NewString(),
		peer:           peer,
		rw:             rw,
		version:        version,
		backend:        backend,
		log:            log.New("session", "eth", "peer", peer.String()),
		inflight:       make(map[uint64]*pendingRequest),
		dedup:          make(map[string]*pendingRequest),
		requestTimeout: defaultRequestTimeout,
		statusTimeout:  defaultStatusTimeout,
		knownTxs:       knownTxs,
		closeCh:        make(chan struct{}),
	}
}

// filterUnknown returns the subset of hashes this session has not already
// recorded as seen, marking all of them (known and new) as seen for next
// time.
func (s *Session) filterUnknown(hashes []common.Hash) []common.Hash {
	fresh := hashes[:0:0]
	for _, h := range hashes {
		if _, ok := s.knownTxs.Get(h); ok {
			continue
		}
		s.knownTxs.Add(h, struct{}{})
		fresh = append(fresh, h)
	}
	return fresh
}

// run performs the STATUS handshake and then dispatches inbound messages
// until the connection closes or a protocol-fatal error occurs. It is the
// function a p2p.Protocol's Run hook is wired to.
func (s *Session) run() error {
	if err := s.exchangeStatus(); err != nil {
		s.emit(SessionEvent{Kind: EventError, Reason: err})
		return err
	}
	s.emit(SessionEvent{Kind: EventConnect})
	s.emit(SessionEvent{Kind: EventStatus, Status: s.remoteStatus})

	defer s.closeSession()

	for {
		msg, err := s.rw.ReadMsg()
		if err != nil {
			return err
		}
		if err := s.dispatch(msg); err != nil {
			s.log.Debug("protocol-fatal error dispatching message", "code", msg.Code, "err", err)
			return err
		}
	}
}

func (s *Session) emit(ev SessionEvent) {
	if s.backend.EventSink != nil {
		s.backend.EventSink(s.id, ev)
	}
}

func (s *Session) closeSession() {
	s.closeOnce.Do(func() {
		close(s.closeCh)
		s.mu.Lock()
		pending := make([]*pendingRequest, 0, len(s.inflight))
		for _, p := range s.inflight {
			pending = append(pending, p)
		}
		s.inflight = make(map[uint64]*pendingRequest)
		s.dedup = make(map[string]*pendingRequest)
		s.mu.Unlock()

		for _, p := range pending {
			p.settle(nil, ethwireerr.New(ethwireerr.KindSessionClosed, p.reqID, s.id, nil))
		}
		var reason error
		var byUs bool
		if s.peer != nil {
			r, initiatedByUs := s.peer.CloseReason()
			reason, byUs = r, initiatedByUs
		}
		s.emit(SessionEvent{Kind: EventClose, Reason: reason, InitiatedByUs: byUs})
	})
}

func (s *Session) buildStatus() (*StatusPacket, error) {
	if s.backend.Chain == nil || s.backend.Forks == nil {
		return nil, errNoChainBackend
	}
	head := s.backend.Chain.LatestHeader()
	genesis := s.backend.Forks.GenesisHash()

	networkID := s.backend.NetworkID
	if networkID == 0 {
		networkID = s.backend.Chain.ChainID().Uint64()
	}

	var genesisArr [32]byte
	copy(genesisArr[:], genesis[:])
	forkID := NewForkID(genesisArr, s.backend.Forks.ForkHistory(), head.Number.Uint64(), head.Time)

	return &StatusPacket{
		ProtocolVersion: uint32(s.version),
		NetworkID:       networkID,
		TD:              s.backend.Chain.TotalDifficulty(),
		Head:            head.Hash(),
		Genesis:         genesis,
		ForkID:          forkID,
	}, nil
}

// exchangeStatus sends our Status and awaits the peer's, validating it
// per spec §4.6: protocol-version equal, network/chain-id equal,
// genesis-hash equal, forkId accepted per EIP-2124. Until both STATUS
// messages are exchanged, all non-STATUS messages are rejected.
func (s *Session) exchangeStatus() error {
	local, err := s.buildStatus()
	if err != nil {
		return err
	}
	s.localStatus = local

	errCh := make(chan error, 2)
	go func() {
		payload, err := rlp.EncodeToBytes(local)
		if err != nil {
			errCh <- err
			return
		}
		errCh <- s.rw.WriteMsg(p2p.Msg{Code: StatusMsg, Payload: payload})
	}()
	go func() {
		msg, err := s.rw.ReadMsg()
		if err != nil {
			errCh <- err
			return
		}
		if msg.Code != StatusMsg {
			errCh <- fmt.Errorf("eth: expected Status, got code %#x", msg.Code)
			return
		}
		var remote StatusPacket
		if err := msg.Decode(&remote); err != nil {
			errCh <- fmt.Errorf("eth: malformed Status: %w", err)
			return
		}
		s.remoteStatus = &remote
		errCh <- nil
	}()

	timer := time.NewTimer(s.statusTimeout)
	defer timer.Stop()
	for i := 0; i < 2; i++ {
		select {
		case err := <-errCh:
			if err != nil {
				return err
			}
		case <-timer.C:
			return errStatusTimeout
		}
	}
	return s.validateStatus()
}

func (s *Session) validateStatus() error {
	local, remote := s.localStatus, s.remoteStatus
	if remote.ProtocolVersion != local.ProtocolVersion {
		return fmt.Errorf("%w: protocol version mismatch: local=%d remote=%d", errStatusValidation, local.ProtocolVersion, remote.ProtocolVersion)
	}
	if remote.NetworkID != local.NetworkID {
		return fmt.Errorf("%w: network id mismatch: local=%d remote=%d", errStatusValidation, local.NetworkID, remote.NetworkID)
	}
	if remote.Genesis != local.Genesis {
		return fmt.Errorf("%w: genesis hash mismatch", errStatusValidation)
	}
	if s.backend.Forks != nil {
		head := s.backend.Chain.LatestHeader()
		var genesisArr [32]byte
		copy(genesisArr[:], local.Genesis[:])
		if err := ValidateForkID(local.ForkID, remote.ForkID, genesisArr, s.backend.Forks.ForkHistory(), head.Number.Uint64(), head.Time); err != nil {
			return fmt.Errorf("%w: %v", errStatusValidation, err)
		}
	}
	return nil
}

// dispatch routes one inbound message to either the request correlator
// (if its code is a known response) or the handler registry.
func (s *Session) dispatch(msg p2p.Msg) error {
	switch msg.Code {
	case StatusMsg:
		return fmt.Errorf("%w: duplicate Status after handshake", errProtocolFatal)

	case BlockHeadersMsg:
		return s.resolveResponse(msg, func(b []byte) (any, error) {
			var p BlockHeadersPacket
			err := rlp.DecodeBytes(b, &p)
			return p, err
		})
	case BlockBodiesMsg:
		return s.resolveResponse(msg, func(b []byte) (any, error) {
			var p BlockBodiesPacket
			err := rlp.DecodeBytes(b, &p)
			return p, err
		})
	case PooledTransactionsMsg:
		return s.resolveResponse(msg, func(b []byte) (any, error) {
			var p PooledTransactionsPacket
			err := rlp.DecodeBytes(b, &p)
			return p, err
		})
	case NodeDataMsg:
		return s.resolveResponse(msg, func(b []byte) (any, error) {
			var p NodeDataPacket
			err := rlp.DecodeBytes(b, &p)
			return p, err
		})
	case ReceiptsMsg:
		return s.resolveResponse(msg, func(b []byte) (any, error) {
			var p ReceiptsPacket
			err := rlp.DecodeBytes(b, &p)
			return p, err
		})

	case NewBlockHashesMsg:
		var p NewBlockHashesPacket
		if err := msg.Decode(&p); err != nil {
			return fmt.Errorf("%w: %v", errProtocolFatal, err)
		}
		if s.backend.Sync != nil {
			s.backend.Sync.HandleNewBlockHashes([]HashNumber(p), s.peer.String())
		}
		return nil
	case TransactionsMsg:
		var p TransactionsPacket
		if err := msg.Decode(&p); err != nil {
			return fmt.Errorf("%w: %v", errProtocolFatal, err)
		}
		if s.backend.Txs != nil {
			fresh := make([]Transaction, 0, len(p))
			for _, t := range toTransactionSlice(p) {
				if _, seen := s.knownTxs.Get(t.Hash()); seen {
					continue
				}
				s.knownTxs.Add(t.Hash(), struct{}{})
				fresh = append(fresh, t)
			}
			if len(fresh) > 0 {
				s.backend.Txs.HandleAnnouncedTxs(fresh, s.peer.String())
			}
		}
		return nil
	case NewBlockMsg:
		var p NewBlockPacket
		if err := msg.Decode(&p); err != nil {
			return fmt.Errorf("%w: %v", errProtocolFatal, err)
		}
		if s.backend.Sync != nil {
			s.backend.Sync.HandleNewBlock(p.Block, s.peer.String())
		}
		return nil
	case NewPooledTransactionHashesMsg:
		hashes, err := s.decodePooledTxHashes(msg.Payload)
		if err != nil {
			return fmt.Errorf("%w: %v", errProtocolFatal, err)
		}
		if s.backend.Txs != nil {
			if fresh := s.filterUnknown(hashes); len(fresh) > 0 {
				s.backend.Txs.HandleAnnouncedTxHashes(fresh, s.peer.String())
			}
		}
		return nil

	case GetBlockHeadersMsg:
		return s.handleGetBlockHeaders(msg)
	case GetBlockBodiesMsg:
		return s.handleGetBlockBodies(msg)
	case GetPooledTransactionsMsg:
		return s.handleGetPooledTransactions(msg)
	case GetNodeDataMsg:
		return s.handleGetNodeData(msg)
	case GetReceiptsMsg:
		return s.handleGetReceipts(msg)

	default:
		s.log.Trace("unrecognized eth message code, ignoring", "code", msg.Code)
		s.emit(SessionEvent{Kind: EventMessage, Code: msg.Code, Payload: msg.Payload})
		return nil
	}
}

func (s *Session) decodePooledTxHashes(payload []byte) ([]common.Hash, error) {
	if s.version >= ETH68 {
		var p NewPooledTransactionHashesPacket68
		if err := rlp.DecodeBytes(payload, &p); err != nil {
			return nil, err
		}
		return p.Hashes, nil
	}
	var p NewPooledTransactionHashesPacket67
	if err := rlp.DecodeBytes(payload, &p); err != nil {
		return nil, err
	}
	return []common.Hash(p), nil
}

func toTransactionSlice(p TransactionsPacket) []Transaction {
	out := make([]Transaction, len(p))
	for i, t := range p {
		out[i] = t
	}
	return out
}

// resolveResponse looks up the pending request matching payload's leading
// reqId and settles it; an unmatched id is surfaced as an event but does
// not fail the session (spec §4.6 "request correlator").
func (s *Session) resolveResponse(msg p2p.Msg, decode func([]byte) (any, error)) error {
	var envelope struct {
		ReqID uint64
		Rest  []rlp.RawValue `rlp:"tail"`
	}
	if err := rlp.DecodeBytes(msg.Payload, &envelope); err != nil {
		return fmt.Errorf("%w: %v", errProtocolFatal, err)
	}

	s.mu.Lock()
	pending, ok := s.inflight[envelope.ReqID]
	if ok {
		delete(s.inflight, envelope.ReqID)
		delete(s.dedup, pending.key)
	}
	s.mu.Unlock()

	if !ok {
		s.emit(SessionEvent{Kind: EventMessage, Code: msg.Code, Payload: msg.Payload})
		return nil
	}

	result, err := decode(msg.Payload)
	if err != nil {
		pending.settle(nil, ethwireerr.New(ethwireerr.KindRequestDecode, envelope.ReqID, s.id, err))
		return nil
	}
	pending.settle(result, nil)
	return nil
}

// request sends the packet buildPacket produces once a fresh reqId is
// assigned, and blocks until the matching response resolves, times out,
// or the session closes. Identical concurrent requests (same key) share
// one in-flight promise, per spec §4.6 "request deduplication".
func (s *Session) request(code uint64, key string, buildPacket func(reqID uint64) any, decode func([]byte) (any, error)) (any, error) {
	s.mu.Lock()
	if existing, ok := s.dedup[key]; ok {
		s.mu.Unlock()
		return s.await(existing)
	}

	id := s.nextReqID.Add(1)
	pending := &pendingRequest{reqID: id, key: key, done: make(chan struct{}), decode: decode, startedAt: time.Now()}
	pending.timer = time.AfterFunc(s.requestTimeout, func() {
		s.mu.Lock()
		delete(s.inflight, id)
		delete(s.dedup, key)
		s.mu.Unlock()
		requestTimeoutMeter.Mark(1)
		pending.settle(nil, ethwireerr.New(ethwireerr.KindRequestTimeout, id, s.id, nil))
	})
	s.inflight[id] = pending
	s.dedup[key] = pending
	s.mu.Unlock()

	payload, err := rlp.EncodeToBytes(buildPacket(id))
	if err != nil {
		s.mu.Lock()
		delete(s.inflight, id)
		delete(s.dedup, key)
		s.mu.Unlock()
		pending.settle(nil, err)
		return nil, err
	}
	if err := s.rw.WriteMsg(p2p.Msg{Code: code, Payload: payload}); err != nil {
		s.mu.Lock()
		delete(s.inflight, id)
		delete(s.dedup, key)
		s.mu.Unlock()
		return nil, err
	}

	return s.await(pending)
}

func (s *Session) await(pending *pendingRequest) (any, error) {
	select {
	case <-pending.done:
		requestTimer.UpdateSince(pending.startedAt)
		return pending.result, pending.err
	case <-s.closeCh:
		return nil, ethwireerr.New(ethwireerr.KindSessionClosed, pending.reqID, s.id, nil)
	}
}

