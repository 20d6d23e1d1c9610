package p2p

import (
	"github.com/ethereum/go-ethereum/rlp"
)

// Msg is one decoded sub-protocol message: a local (offset-subtracted)
// code and its raw RLP payload.
type Msg struct {
	Code    uint64
	Payload []byte
}

// Decode unmarshals the message payload into val using RLP.
func (m Msg) Decode(val interface{}) error {
	return rlp.DecodeBytes(m.Payload, val)
}

// MsgReadWriter is the per-sub-protocol view of a Connection: ReadMsg blocks
// for the next message dispatched to this sub-protocol; WriteMsg sends a
// message with a local code, which the multiplexer re-offsets before
// framing it onto the wire.
type MsgReadWriter interface {
	ReadMsg() (Msg, error)
	WriteMsg(Msg) error
}

// msgPipe connects a sub-protocol's Run goroutine to the Connection's
// dispatch loop: inbound messages for this sub-protocol are pushed onto in,
// outbound messages written by Run are read from out by the connection's
// writer.
type msgPipe struct {
	in  chan Msg
	out chan Msg
	err chan error
}

func newMsgPipe() *msgPipe {
	return &msgPipe{
		in:  make(chan Msg),
		out: make(chan Msg, 16),
		err: make(chan error, 1),
	}
}

func (p *msgPipe) ReadMsg() (Msg, error) {
	select {
	case m := <-p.in:
		return m, nil
	case err := <-p.err:
		return Msg{}, err
	}
}

func (p *msgPipe) WriteMsg(m Msg) error {
	select {
	case p.out <- m:
		return nil
	case err := <-p.err:
		return err
	}
}

func (p *msgPipe) closeWithError(err error) {
	select {
	case p.err <- err:
	default:
	}
}
