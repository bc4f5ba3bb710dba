/*
 * This file is part of Kumo.
 *
 * Kumo is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * Kumo is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with Kumo.  If not, see <http://www.gnu.org/licenses/>.
 */

// Package storage holds swarm peers behind a backend-agnostic interface.
// The in-process backend serves single-node deployments; the redis
// backend lets several tracker nodes share one peer view. A process uses
// exactly one backend, selected at startup.
package storage

import (
	"net/netip"
	"strconv"

	"kumo/database/types"
)

// Connectable is the verifier's tri-state verdict cached on a peer.
type Connectable int8

const (
	ConnectableUnknown Connectable = iota
	ConnectableYes
	ConnectableNo
)

// SortScore orders peers for selection: known-connectable first,
// unknown second, known-unreachable last.
func (c Connectable) SortScore() int {
	switch c {
	case ConnectableYes:
		return 0
	case ConnectableNo:
		return 2
	default:
		return 1
	}
}

// PeerKey identifies a peer within a swarm. A client that restarts on a
// new port becomes a new peer.
type PeerKey struct {
	IP   netip.Addr
	Port uint16
}

func NewPeerKey(ip netip.Addr, port uint16) PeerKey {
	return PeerKey{IP: ip.Unmap(), Port: port}
}

func (k PeerKey) String() string {
	return netip.AddrPortFrom(k.IP, k.Port).String()
}

func PeerKeyFromString(s string) (PeerKey, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return PeerKey{}, err
	}

	return NewPeerKey(ap.Addr(), ap.Port()), nil
}

// Peer is the volatile swarm-local state for one (ip, port).
type Peer struct {
	ID     types.PeerID
	UserID uint32 // 0 when anonymous (UDP announces carry no passkey)

	IP   netip.Addr
	Port uint16

	Uploaded   uint64
	Downloaded uint64
	Left       uint64

	UpdatedAt int64 // unix seconds of the last announce

	// AnnounceKey is the anti-spoof token: 8 random bytes hex-encoded,
	// issued on first announce and required on every one after.
	AnnounceKey string

	Connectable Connectable
}

func (p *Peer) Seeding() bool {
	return p.Left == 0
}

func (p *Peer) Key() PeerKey {
	return NewPeerKey(p.IP, p.Port)
}

func (p *Peer) AddrString() string {
	return netip.AddrPortFrom(p.IP.Unmap(), p.Port).String()
}

// PeerStore is the backend contract the swarm worker drives. PutPeer
// must update peer data and the last-update index as one observable
// step; CleanupExpired drops every peer with UpdatedAt < cutoff along
// with its index entry.
type PeerStore interface {
	GetPeer(h types.TorrentHash, key PeerKey) (*Peer, error)
	PutPeer(h types.TorrentHash, key PeerKey, peer *Peer) error
	DeletePeer(h types.TorrentHash, key PeerKey) error
	GetAllPeers(h types.TorrentHash) (map[PeerKey]*Peer, error)
	CountPeers(h types.TorrentHash) (int, error)
	CleanupExpired(h types.TorrentHash, cutoff int64) (int, error)

	// Counts returns (seeders, leechers) over non-expired peers.
	Counts(h types.TorrentHash) (uint32, uint32, error)

	Clear(h types.TorrentHash) error
}

func itoa(v uint64) string {
	return strconv.FormatUint(v, 10)
}
