package rlpx

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// authMsgV4 is the EIP-8 auth message body, signed over the initiator's
// static-key/ephemeral-key ECDH secret XORed with its nonce.
type authMsgV4 struct {
	Signature       [65]byte
	InitiatorPubkey [64]byte
	Nonce           [32]byte
	Version         uint

	// Rest is ignored for forward compatibility, per EIP-8.
	Rest []rlp.RawValue `rlp:"tail"`
}

type authRespV4 struct {
	RandomPubkey [64]byte
	Nonce        [32]byte
	Version      uint

	Rest []rlp.RawValue `rlp:"tail"`
}

const handshakeVersion = 4

// Handshaker drives the ECIES auth/ack exchange for one connection. It is
// constructed once per dial/accept and discarded after Run succeeds.
type Handshaker struct {
	prv       *ecdsa.PrivateKey
	remote    *ecdsa.PublicKey // known for outbound, nil until auth decrypted for inbound
	initNonce []byte
	respNonce []byte
	randomPrv *ecdsa.PrivateKey

	initiator bool

	authCiphertext []byte
	ackCiphertext  []byte
}

// NewHandshaker prepares a handshake. remote is required for the initiator
// side and nil for the receiver side (the remote static key is recovered
// from the decrypted auth message).
func NewHandshaker(prv *ecdsa.PrivateKey, remote *ecdsa.PublicKey, initiator bool) *Handshaker {
	return &Handshaker{prv: prv, remote: remote, initiator: initiator}
}

// Run performs the handshake over conn (already connected) with deadline,
// returning the derived session Secrets. On any error the connection
// should be closed by the caller; the handshake never closes conn itself.
func (h *Handshaker) Run(conn net.Conn, deadline time.Duration) (*Secrets, error) {
	if deadline > 0 {
		if err := conn.SetDeadline(time.Now().Add(deadline)); err != nil {
			return nil, err
		}
		defer conn.SetDeadline(time.Time{})
	}
	if h.initiator {
		return h.runInitiator(conn)
	}
	return h.runReceiver(conn)
}

func (h *Handshaker) runInitiator(conn net.Conn) (*Secrets, error) {
	nonce := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	h.initNonce = nonce

	randomPrv, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	h.randomPrv = randomPrv

	staticSecret, err := ecdhSecret(h.prv, h.remote)
	if err != nil {
		return nil, err
	}

	msg := new(authMsgV4)
	msg.Version = handshakeVersion
	copy(msg.Nonce[:], nonce)
	copy(msg.InitiatorPubkey[:], exportPubkey(&h.prv.PublicKey))

	signed := xor(staticSecret, nonce)
	sig, err := crypto.Sign(signed, randomPrv)
	if err != nil {
		return nil, err
	}
	copy(msg.Signature[:], sig)

	plain, err := rlp.EncodeToBytes(msg)
	if err != nil {
		return nil, err
	}
	packet, err := sealEIP8(h.remote, plain)
	if err != nil {
		return nil, err
	}
	h.authCiphertext = packet
	if _, err := conn.Write(packet); err != nil {
		return nil, err
	}

	ackCiphertext, ackPlain, err := readHandshakeMsg(conn, h.prv)
	if err != nil {
		return nil, err
	}
	h.ackCiphertext = ackCiphertext

	var ack authRespV4
	if err := rlp.DecodeBytes(ackPlain, &ack); err != nil {
		return nil, ErrBadAck
	}
	h.respNonce = ack.Nonce[:]
	remoteEphemeral, err := importPubkey(ack.RandomPubkey[:])
	if err != nil {
		return nil, err
	}

	ephemeralSecret, err := ecdhSecret(h.randomPrv, remoteEphemeral)
	if err != nil {
		return nil, err
	}
	return deriveSecrets(ephemeralSecret, h.initNonce, h.respNonce, true, h.authCiphertext, h.ackCiphertext)
}

func (h *Handshaker) runReceiver(conn net.Conn) (*Secrets, error) {
	authCiphertext, authPlain, err := readHandshakeMsg(conn, h.prv)
	if err != nil {
		return nil, err
	}
	h.authCiphertext = authCiphertext

	var auth authMsgV4
	if err := rlp.DecodeBytes(authPlain, &auth); err != nil {
		return nil, ErrBadAuth
	}
	h.initNonce = auth.Nonce[:]
	initiatorPub, err := importPubkey(auth.InitiatorPubkey[:])
	if err != nil {
		return nil, err
	}
	h.remote = initiatorPub

	staticSecret, err := ecdhSecret(h.prv, initiatorPub)
	if err != nil {
		return nil, err
	}
	signed := xor(staticSecret, h.initNonce)
	remoteEphemeralPub, err := crypto.SigToPub(signed, auth.Signature[:])
	if err != nil {
		return nil, ErrBadAuth
	}

	respNonce := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, respNonce); err != nil {
		return nil, err
	}
	h.respNonce = respNonce

	randomPrv, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	h.randomPrv = randomPrv

	resp := new(authRespV4)
	resp.Version = handshakeVersion
	copy(resp.Nonce[:], respNonce)
	copy(resp.RandomPubkey[:], exportPubkey(&randomPrv.PublicKey))

	plain, err := rlp.EncodeToBytes(resp)
	if err != nil {
		return nil, err
	}
	packet, err := sealEIP8(h.remote, plain)
	if err != nil {
		return nil, err
	}
	h.ackCiphertext = packet
	if _, err := conn.Write(packet); err != nil {
		return nil, err
	}

	ephemeralSecret, err := ecdhSecret(randomPrv, remoteEphemeralPub)
	if err != nil {
		return nil, err
	}
	return deriveSecrets(ephemeralSecret, h.initNonce, h.respNonce, false, h.authCiphertext, h.ackCiphertext)
}

// RemoteStaticKey returns the remote node's static public key, known after
// a successful handshake (or, for the initiator, from the start).
func (h *Handshaker) RemoteStaticKey() *ecdsa.PublicKey { return h.remote }

// sealEIP8 wraps plaintext in the EIP-8 tagged form: a uint16 big-endian
// size prefix (authenticated as ECIES shared data) followed by the ECIES
// ciphertext, padded so the overall size is unpredictable to a passive
// observer (a small random pad, per the RLPx spec's recommendation).
func sealEIP8(pub *ecdsa.PublicKey, plain []byte) ([]byte, error) {
	pad := make([]byte, 100+randIntn(100))
	if _, err := io.ReadFull(rand.Reader, pad); err != nil {
		return nil, err
	}
	padded := append(plain, pad...)

	prefix := make([]byte, 2)
	// encrypted size = plaintext + 65 (pubkey) + 16 (IV) + 32 (MAC)
	binary.BigEndian.PutUint16(prefix, uint16(len(padded)+eciesOverhead))

	enc, err := eciesEncrypt(pub, padded, prefix)
	if err != nil {
		return nil, err
	}
	return append(prefix, enc...), nil
}

const eciesOverhead = 65 + 16 + 32

func randIntn(n int) int {
	b := make([]byte, 1)
	io.ReadFull(rand.Reader, b)
	return int(b[0]) % n
}

// readHandshakeMsg reads and decrypts one EIP-8 tagged handshake message
// from conn, returning both the raw ciphertext (size-prefix included, used
// in MAC derivation) and the decrypted plaintext.
func readHandshakeMsg(conn net.Conn, prv *ecdsa.PrivateKey) (ciphertext, plain []byte, err error) {
	prefix := make([]byte, 2)
	if _, err = io.ReadFull(conn, prefix); err != nil {
		return nil, nil, err
	}
	size := binary.BigEndian.Uint16(prefix)
	if size < eciesOverhead {
		return nil, nil, errors.New("rlpx: handshake message too short")
	}
	rest := make([]byte, size)
	if _, err = io.ReadFull(conn, rest); err != nil {
		return nil, nil, err
	}
	plain, err = eciesDecrypt(prv, rest, prefix)
	if err != nil {
		return nil, nil, err
	}
	ciphertext = append(prefix, rest...)
	return ciphertext, plain, nil
}

func ecdhSecret(prv *ecdsa.PrivateKey, pub *ecdsa.PublicKey) ([]byte, error) {
	x, _ := pub.Curve.ScalarMult(pub.X, pub.Y, prv.D.Bytes())
	return x.Bytes(), nil
}

func exportPubkey(pub *ecdsa.PublicKey) []byte {
	return crypto.FromECDSAPub(pub)[1:] // drop the 0x04 prefix, RLPx keys are raw 64 bytes
}

func importPubkey(raw []byte) (*ecdsa.PublicKey, error) {
	if len(raw) != 64 {
		return nil, errors.New("rlpx: invalid public key length")
	}
	full := append([]byte{0x04}, raw...)
	return crypto.UnmarshalPubkey(full)
}
