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

// Package udp speaks the BEP 15 tracker protocol. Frames are fixed
// big-endian layouts; anything shorter than its minimum length is
// dropped without a reply.
package udp

import (
	"encoding/binary"
	"errors"

	"kumo/database/types"
)

const protocolMagic uint64 = 0x41727101980

const (
	actionConnect uint32 = iota
	actionAnnounce
	actionScrape
	actionError
)

// Wire events; these differ from the HTTP event strings.
const (
	eventNone uint32 = iota
	eventCompleted
	eventStarted
	eventStopped
)

const (
	connectRequestLength  = 16
	announceRequestLength = 98
	scrapeRequestLength   = 36 // header plus at least one info_hash
)

var errShortPacket = errors.New("short packet")

type connectRequest struct {
	transactionID uint32
}

type announceRequest struct {
	connectionID  uint64
	transactionID uint32
	infoHash      types.TorrentHash
	peerID        types.PeerID
	downloaded    uint64
	left          uint64
	uploaded      uint64
	event         uint32
	ip            uint32
	key           uint32
	numWant       int32
	port          uint16
}

type scrapeRequest struct {
	connectionID  uint64
	transactionID uint32
	infoHashes    []types.TorrentHash
}

func parseConnect(packet []byte) (*connectRequest, error) {
	if len(packet) < connectRequestLength {
		return nil, errShortPacket
	}

	if binary.BigEndian.Uint64(packet[0:8]) != protocolMagic {
		return nil, errors.New("bad protocol magic")
	}

	return &connectRequest{
		transactionID: binary.BigEndian.Uint32(packet[12:16]),
	}, nil
}

func parseAnnounce(packet []byte) (*announceRequest, error) {
	if len(packet) < announceRequestLength {
		return nil, errShortPacket
	}

	req := &announceRequest{
		connectionID:  binary.BigEndian.Uint64(packet[0:8]),
		transactionID: binary.BigEndian.Uint32(packet[12:16]),
		infoHash:      types.TorrentHashFromBytes(packet[16:36]),
		peerID:        types.PeerIDFromBytes(packet[36:56]),
		downloaded:    binary.BigEndian.Uint64(packet[56:64]),
		left:          binary.BigEndian.Uint64(packet[64:72]),
		uploaded:      binary.BigEndian.Uint64(packet[72:80]),
		event:         binary.BigEndian.Uint32(packet[80:84]),
		ip:            binary.BigEndian.Uint32(packet[84:88]),
		key:           binary.BigEndian.Uint32(packet[88:92]),
		numWant:       int32(binary.BigEndian.Uint32(packet[92:96])),
		port:          binary.BigEndian.Uint16(packet[96:98]),
	}

	return req, nil
}

func parseScrape(packet []byte) (*scrapeRequest, error) {
	if len(packet) < scrapeRequestLength {
		return nil, errShortPacket
	}

	req := &scrapeRequest{
		connectionID:  binary.BigEndian.Uint64(packet[0:8]),
		transactionID: binary.BigEndian.Uint32(packet[12:16]),
	}

	for rest := packet[16:]; len(rest) >= types.TorrentHashSize; rest = rest[types.TorrentHashSize:] {
		req.infoHashes = append(req.infoHashes, types.TorrentHashFromBytes(rest[:types.TorrentHashSize]))
	}

	return req, nil
}

func buildConnectResponse(transactionID uint32, connectionID uint64) []byte {
	resp := make([]byte, 16)

	binary.BigEndian.PutUint32(resp[0:4], actionConnect)
	binary.BigEndian.PutUint32(resp[4:8], transactionID)
	binary.BigEndian.PutUint64(resp[8:16], connectionID)

	return resp
}

func buildAnnounceResponse(transactionID, interval, leechers, seeders uint32, peers []byte) []byte {
	resp := make([]byte, 20+len(peers))

	binary.BigEndian.PutUint32(resp[0:4], actionAnnounce)
	binary.BigEndian.PutUint32(resp[4:8], transactionID)
	binary.BigEndian.PutUint32(resp[8:12], interval)
	binary.BigEndian.PutUint32(resp[12:16], leechers)
	binary.BigEndian.PutUint32(resp[16:20], seeders)
	copy(resp[20:], peers)

	return resp
}

type scrapeEntry struct {
	seeders   uint32
	completed uint32
	leechers  uint32
}

func buildScrapeResponse(transactionID uint32, entries []scrapeEntry) []byte {
	resp := make([]byte, 8+12*len(entries))

	binary.BigEndian.PutUint32(resp[0:4], actionScrape)
	binary.BigEndian.PutUint32(resp[4:8], transactionID)

	for i, entry := range entries {
		offset := 8 + 12*i

		binary.BigEndian.PutUint32(resp[offset:offset+4], entry.seeders)
		binary.BigEndian.PutUint32(resp[offset+4:offset+8], entry.completed)
		binary.BigEndian.PutUint32(resp[offset+8:offset+12], entry.leechers)
	}

	return resp
}

func buildErrorResponse(transactionID uint32, message string) []byte {
	resp := make([]byte, 8+len(message))

	binary.BigEndian.PutUint32(resp[0:4], actionError)
	binary.BigEndian.PutUint32(resp[4:8], transactionID)
	copy(resp[8:], message)

	return resp
}
