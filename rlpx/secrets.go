// Package rlpx implements the RLPx transport's cryptographic session
// establishment and frame codec: the ECIES-encrypted auth/ack handshake,
// session key derivation, and the header/body/MAC framing used to carry
// sub-protocol messages over an authenticated TCP connection.
package rlpx

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"hash"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"
	"golang.org/x/crypto/sha3"
)

var (
	ErrHandshakeTimeout = errors.New("rlpx: handshake timed out")
	ErrBadAuth          = errors.New("rlpx: invalid auth message")
	ErrBadAck           = errors.New("rlpx: invalid ack message")
)

// Secrets holds the symmetric session keys derived from an ECIES handshake,
// per spec §4.3: an AES-CTR stream cipher and keyed hash for each direction,
// initialised with an ingress/egress MAC chain seeded from the handshake
// nonces.
type Secrets struct {
	AES, MAC              []byte
	EgressMAC, IngressMAC hash.Hash
	Token                 []byte
}

// deriveSecrets implements the RLPx key-derivation function: given the
// shared secret from ECDH(ephemeralPriv, remoteEphemeralPub) and both
// sides' nonces, compute the AES key, MAC key and the two directional MAC
// hash states.
func deriveSecrets(ephemeralSharedSecret, initNonce, respNonce []byte, initiator bool, authCiphertext, ackCiphertext []byte) (*Secrets, error) {
	ecdheSecret := ephemeralSharedSecret

	// shared-secret = keccak256(ecdheSecret || keccak256(respNonce || initNonce))
	sharedSecret := crypto.Keccak256(ecdheSecret, crypto.Keccak256(respNonce, initNonce))
	aesSecret := crypto.Keccak256(ecdheSecret, sharedSecret)
	s := &Secrets{AES: aesSecret, MAC: crypto.Keccak256(ecdheSecret, aesSecret)}

	mac1 := sha3.NewLegacyKeccak256()
	mac2 := sha3.NewLegacyKeccak256()
	if initiator {
		mac1.Write(xor(s.MAC, respNonce))
		mac1.Write(authCiphertext)
		mac2.Write(xor(s.MAC, initNonce))
		mac2.Write(ackCiphertext)
	} else {
		mac1.Write(xor(s.MAC, initNonce))
		mac1.Write(ackCiphertext)
		mac2.Write(xor(s.MAC, respNonce))
		mac2.Write(authCiphertext)
	}
	if initiator {
		s.EgressMAC, s.IngressMAC = mac1, mac2
	} else {
		s.EgressMAC, s.IngressMAC = mac2, mac1
	}
	s.Token = crypto.Keccak256(sharedSecret)
	return s, nil
}

func xor(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range out {
		out[i] = a[i] ^ b[i%len(b)]
	}
	return out
}

// newCTR constructs an AES-CTR stream with a zero IV, matching the RLPx
// frame codec's convention of deriving per-frame keystreams purely from the
// running block-cipher state rather than a nonce.
func newCTR(key []byte) (cipher.Stream, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, block.BlockSize())
	return cipher.NewCTR(block, iv), nil
}

// eciesDecrypt unwraps an ECIES ciphertext encrypted to priv, with shared
// data `s1` authenticated (used for the EIP-8 tagged form, where the
// plaintext size prefix is authenticated data).
func eciesDecrypt(priv *ecdsa.PrivateKey, ct, s1 []byte) ([]byte, error) {
	eciesPriv := ecies.ImportECDSA(priv)
	return eciesPriv.Decrypt(ct, nil, s1)
}

func eciesEncrypt(pub *ecdsa.PublicKey, plain, s1 []byte) ([]byte, error) {
	eciesPub := ecies.ImportECDSAPublic(pub)
	return ecies.Encrypt(rand.Reader, eciesPub, plain, nil, s1)
}
