package rlpx

import (
	"net"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"
)

func TestHandshakeAndFrameRoundTrip(t *testing.T) {
	initiatorKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	receiverKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	type result struct {
		conn *Conn
		err  error
	}
	initCh := make(chan result, 1)
	recvCh := make(chan result, 1)

	go func() {
		conn, _, err := Handshake(a, initiatorKey, &receiverKey.PublicKey, time.Second)
		initCh <- result{conn, err}
	}()
	go func() {
		conn, _, err := Handshake(b, receiverKey, nil, time.Second)
		recvCh <- result{conn, err}
	}()

	initRes := <-initCh
	recvRes := <-recvCh
	require.NoError(t, initRes.err)
	require.NoError(t, recvRes.err)

	var writeErr, readErr error
	payload := []byte("hello rlpx")
	done := make(chan struct{})
	go func() {
		writeErr = initRes.conn.WriteMsg(0x00, payload)
		close(done)
	}()

	code, got, err := recvRes.conn.ReadMsg()
	<-done
	readErr = err

	require.NoError(t, writeErr)
	require.NoError(t, readErr)
	require.Equal(t, uint64(0x00), code)
	require.Equal(t, payload, got)
}

func TestFrameRejectsTooLargeBody(t *testing.T) {
	secrets := &Secrets{AES: make([]byte, 32), MAC: make([]byte, 32), EgressMAC: sha3.NewLegacyKeccak256(), IngressMAC: sha3.NewLegacyKeccak256()}
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	conn, err := NewConn(a, secrets)
	require.NoError(t, err)

	huge := make([]byte, maxUint24+1)
	err = conn.WriteMsg(0, huge)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}
