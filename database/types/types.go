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

// Package types holds the fixed-size wire identifiers and the cached row
// representations shared between the durable store, the gate and the swarm.
package types

import (
	"database/sql/driver"
	"encoding/hex"
	"errors"
)

const (
	// TorrentHashSize is the length of a SHA-1 info_hash.
	TorrentHashSize = 20

	// PeerIDSize is the length of a client peer_id (BEP 20).
	PeerIDSize = 20

	// PasskeySize is the length of a user passkey (32 hex characters).
	PasskeySize = 32
)

var (
	errWrongTorrentHashSize = errors.New("wrong torrent hash size")
	errWrongPeerIDSize      = errors.New("wrong peer id size")
	errInvalidType          = errors.New("unsupported type for scan")
)

// TorrentHash is a raw 20-byte info_hash.
type TorrentHash [TorrentHashSize]byte

func TorrentHashFromBytes(buf []byte) (h TorrentHash) {
	if len(buf) != TorrentHashSize {
		return
	}

	copy(h[:], buf)

	return h
}

func (h TorrentHash) Hex() string {
	return hex.EncodeToString(h[:])
}

func (h *TorrentHash) Scan(src any) error {
	if src == nil {
		return nil
	} else if buf, ok := src.([]byte); ok {
		if len(buf) != TorrentHashSize {
			return errWrongTorrentHashSize
		}

		copy((*h)[:], buf)

		return nil
	}

	return errInvalidType
}

func (h TorrentHash) Value() (driver.Value, error) {
	return h[:], nil
}

// PeerID is a raw 20-byte client identifier sent on every announce.
type PeerID [PeerIDSize]byte

func PeerIDFromBytes(buf []byte) (id PeerID) {
	if len(buf) != PeerIDSize {
		return
	}

	copy(id[:], buf)

	return id
}

// ClientPrefix returns the first n bytes of the peer id, used for client
// whitelist matching.
func (id PeerID) ClientPrefix(n int) string {
	if n > PeerIDSize {
		n = PeerIDSize
	}

	return string(id[:n])
}

type UserTorrentPair struct {
	UserID    uint32
	TorrentID uint32
}
