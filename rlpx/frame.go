package rlpx

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"hash"
	"io"
	"net"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/golang/snappy"
)

const (
	maxUint24 = 0xffffff
	// snappyProtocolVersion is the Hello protocol version at and above which
	// frame payloads are Snappy-compressed, per spec §4.3.
	snappyProtocolVersion = 5
)

var (
	ErrFrameTooLarge = errors.New("rlpx: frame body exceeds 24-bit length")
	ErrBadHeaderMAC  = errors.New("rlpx: header MAC mismatch")
	ErrBadFrameMAC   = errors.New("rlpx: frame MAC mismatch")
)

// Conn wraps an authenticated TCP connection with the RLPx frame codec: an
// encrypted, MAC-chained header/body/MAC structure per frame, and an
// optional Snappy compression gate activated once both sides' Hello
// advertise protocol version >= 5.
type Conn struct {
	conn net.Conn

	enc cipher.Stream
	dec cipher.Stream

	egressMAC, ingressMAC hash.Hash
	macCipher             cipher.Block

	snappy bool

	writeMu sync.Mutex
}

// NewConn wraps conn using secrets derived from a completed handshake.
func NewConn(conn net.Conn, secrets *Secrets) (*Conn, error) {
	encStream, err := newCTR(secrets.AES)
	if err != nil {
		return nil, err
	}
	decStream, err := newCTR(secrets.AES)
	if err != nil {
		return nil, err
	}
	macBlock, err := aes.NewCipher(secrets.MAC)
	if err != nil {
		return nil, err
	}
	return &Conn{
		conn:       conn,
		enc:        encStream,
		dec:        decStream,
		egressMAC:  secrets.EgressMAC,
		ingressMAC: secrets.IngressMAC,
		macCipher:  macBlock,
	}, nil
}

// EnableSnappy activates the Snappy compression gate; called once both
// Hello messages have been exchanged and the negotiated protocol version is
// >= 5 (spec §4.3).
func (c *Conn) EnableSnappy() { c.snappy = true }

// WriteMsg frames and sends one message: rlp(code) || payload, where
// payload is Snappy-compressed iff the gate is enabled.
func (c *Conn) WriteMsg(code uint64, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	codeBytes, err := rlp.EncodeToBytes(code)
	if err != nil {
		return err
	}
	if c.snappy {
		payload = snappy.Encode(nil, payload)
	}
	body := append(codeBytes, payload...)
	if len(body) > maxUint24 {
		return ErrFrameTooLarge
	}

	header := make([]byte, 16)
	putUint24(header, uint32(len(body)))
	// header-data: an empty RLP list, per the RLPx spec's optional
	// capability-id/context-id metadata (unused here).
	headerData, _ := rlp.EncodeToBytes([]interface{}{})
	copy(header[3:], headerData)

	c.enc.XORKeyStream(header, header)
	headerMAC := updateMAC(c.egressMAC, c.macCipher, header)

	padded := make([]byte, ((len(body)+15)/16)*16)
	copy(padded, body)
	c.enc.XORKeyStream(padded, padded)
	frameMAC := updateMAC(c.egressMAC, c.macCipher, padded)

	if _, err := c.conn.Write(header); err != nil {
		return err
	}
	if _, err := c.conn.Write(headerMAC); err != nil {
		return err
	}
	if _, err := c.conn.Write(padded); err != nil {
		return err
	}
	_, err = c.conn.Write(frameMAC)
	return err
}

// ReadMsg reads and decodes one framed message, returning its sub-protocol
// code and decompressed payload.
func (c *Conn) ReadMsg() (code uint64, payload []byte, err error) {
	header := make([]byte, 16)
	if _, err = io.ReadFull(c.conn, header); err != nil {
		return 0, nil, err
	}
	headerMAC := make([]byte, 16)
	if _, err = io.ReadFull(c.conn, headerMAC); err != nil {
		return 0, nil, err
	}
	expectedHeaderMAC := updateMAC(c.ingressMAC, c.macCipher, header)
	if !hmacEqual(expectedHeaderMAC, headerMAC) {
		return 0, nil, ErrBadHeaderMAC
	}
	c.dec.XORKeyStream(header, header)
	bodySize := readUint24(header)

	paddedSize := ((int(bodySize) + 15) / 16) * 16
	padded := make([]byte, paddedSize)
	if _, err = io.ReadFull(c.conn, padded); err != nil {
		return 0, nil, err
	}
	frameMAC := make([]byte, 16)
	if _, err = io.ReadFull(c.conn, frameMAC); err != nil {
		return 0, nil, err
	}
	expectedFrameMAC := updateMAC(c.ingressMAC, c.macCipher, padded)
	if !hmacEqual(expectedFrameMAC, frameMAC) {
		return 0, nil, ErrBadFrameMAC
	}
	c.dec.XORKeyStream(padded, padded)
	body := padded[:bodySize]

	var consumed int
	code, consumed, err = decodeRLPUint(body)
	if err != nil {
		return 0, nil, err
	}
	payload = body[consumed:]
	if c.snappy {
		payload, err = snappy.Decode(nil, payload)
		if err != nil {
			return 0, nil, err
		}
	}
	return code, payload, nil
}

// updateMAC folds data into mac's running state and returns the next
// 16-byte MAC tag, per the RLPx spec's chained-MAC construction: the
// previous MAC digest is AES-ECB-encrypted, XORed with the new data's
// digest-seed, and fed back into the hash.
func updateMAC(mac hash.Hash, block cipher.Block, data []byte) []byte {
	aesBuf := make([]byte, 16)
	block.Encrypt(aesBuf, mac.Sum(nil)[:16])
	for i := range aesBuf {
		aesBuf[i] ^= data[i%len(data)]
	}
	mac.Write(aesBuf)
	sum := mac.Sum(nil)
	return sum[:16]
}

func hmacEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func readUint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// decodeRLPUint decodes the message code, an RLP-encoded non-negative
// integer occupying the first few bytes of a frame body, and returns the
// number of bytes it consumed so the remainder can be sliced off as the
// message payload without a second full RLP pass.
func decodeRLPUint(body []byte) (value uint64, consumed int, err error) {
	if len(body) == 0 {
		return 0, 0, io.ErrUnexpectedEOF
	}
	first := body[0]
	if first < 0x80 {
		return uint64(first), 1, nil
	}
	if first > 0xb7 {
		return 0, 0, errors.New("rlpx: message code encoded as long RLP string")
	}
	n := int(first - 0x80)
	if n > 8 || len(body) < 1+n {
		return 0, 0, errors.New("rlpx: malformed message code")
	}
	var v uint64
	for _, b := range body[1 : 1+n] {
		v = v<<8 | uint64(b)
	}
	return v, 1 + n, nil
}
