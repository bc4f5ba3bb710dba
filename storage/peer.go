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

package storage

import (
	"encoding/binary"
	"errors"
	"net/netip"

	"kumo/database/types"
)

// Compact binary codec for peers held in the external backend.
// Bump when fields are altered on Peer.
const peerCodecVersion = 1

var errPeerCodec = errors.New("malformed peer record")

// AppendBinary serializes the peer into buf.
func (p *Peer) AppendBinary(buf []byte) []byte {
	buf = append(buf, peerCodecVersion)
	buf = append(buf, p.ID[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, p.UserID)

	addr := p.IP.As16()
	buf = append(buf, addr[:]...)

	if p.IP.Unmap().Is4() {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	buf = binary.LittleEndian.AppendUint16(buf, p.Port)
	buf = binary.LittleEndian.AppendUint64(buf, p.Uploaded)
	buf = binary.LittleEndian.AppendUint64(buf, p.Downloaded)
	buf = binary.LittleEndian.AppendUint64(buf, p.Left)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(p.UpdatedAt))
	buf = append(buf, byte(p.Connectable))

	buf = binary.AppendUvarint(buf, uint64(len(p.AnnounceKey)))
	buf = append(buf, p.AnnounceKey...)

	return buf
}

// PeerFromBinary is the inverse of AppendBinary.
func PeerFromBinary(buf []byte) (*Peer, error) {
	// version + id + user + addr + is4 + port + 4*u64 + connectable
	const fixed = 1 + types.PeerIDSize + 4 + 16 + 1 + 2 + 32 + 1

	if len(buf) < fixed+1 || buf[0] != peerCodecVersion {
		return nil, errPeerCodec
	}

	p := &Peer{}
	off := 1

	copy(p.ID[:], buf[off:off+types.PeerIDSize])
	off += types.PeerIDSize

	p.UserID = binary.LittleEndian.Uint32(buf[off:])
	off += 4

	var addr [16]byte

	copy(addr[:], buf[off:off+16])
	off += 16

	if buf[off] == 1 {
		p.IP = netip.AddrFrom16(addr).Unmap()
	} else {
		p.IP = netip.AddrFrom16(addr)
	}

	off++

	p.Port = binary.LittleEndian.Uint16(buf[off:])
	off += 2

	p.Uploaded = binary.LittleEndian.Uint64(buf[off:])
	off += 8

	p.Downloaded = binary.LittleEndian.Uint64(buf[off:])
	off += 8

	p.Left = binary.LittleEndian.Uint64(buf[off:])
	off += 8

	p.UpdatedAt = int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8

	p.Connectable = Connectable(buf[off])
	off++

	keyLen, n := binary.Uvarint(buf[off:])
	if n <= 0 {
		return nil, errPeerCodec
	}

	off += n
	if len(buf) < off+int(keyLen) {
		return nil, errPeerCodec
	}

	p.AnnounceKey = string(buf[off : off+int(keyLen)])

	return p, nil
}
