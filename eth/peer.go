// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package eth

import "github.com/ethereum/go-ethereum/common"

// PeerInfo is a short summary of the `eth` sub-protocol metadata known
// about a connected peer, returned by Session.PeerInfo for any
// status/metrics surface the embedding application builds on top. It is
// not sent over the session's event sink.
type PeerInfo struct {
	Version   uint           `json:"version"`
	NetworkID uint64         `json:"networkId"`
	Head      common.Hash    `json:"head"`
	Address   common.Address `json:"address"`
	ClientID  string         `json:"clientId"`
}

// PeerInfo gathers the `eth` protocol metadata known about this session's
// remote peer, pairing the negotiated version and dialed identity with
// whatever STATUS head hash the peer last announced.
func (s *Session) PeerInfo() *PeerInfo {
	s.mu.Lock()
	remote := s.remoteStatus
	s.mu.Unlock()

	info := &PeerInfo{
		Version:  s.version,
		Address:  s.peer.Address(),
		ClientID: s.peer.ClientID(),
	}
	if remote != nil {
		info.NetworkID = remote.NetworkID
		info.Head = remote.Head
	}
	return info
}
