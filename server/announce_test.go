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

package server

import (
	"bytes"
	"net/netip"
	"testing"

	"kumo/database/types"
	"kumo/storage"
)

func TestRatioAllowed(t *testing.T) {
	grace := uint64(10 << 30)

	cases := []struct {
		name     string
		up       uint64
		down     uint64
		required float64
		allowed  bool
	}{
		{"zero downloaded", 0, 0, 0.3, true},
		{"below grace", 0, grace - 1, 0.3, true},
		{"low ratio past grace", 100_000_000, 11 << 30, 0.3, false},
		{"at threshold", 3 << 30, 10 << 30, 0.3, true},
		{"above threshold", 8 << 30, 10 << 30, 0.3, true},
		{"strict per-user ratio", 4 << 30, 10 << 30, 0.5, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ratioAllowed(c.up, c.down, c.required, grace); got != c.allowed {
				t.Fatalf("Expected %v for up=%d down=%d required=%v, got %v",
					c.allowed, c.up, c.down, c.required, got)
			}
		})
	}
}

func TestCreditDeltas(t *testing.T) {
	now := int64(1_700_000_000)

	torrent := &types.Torrent{}
	torrent.SetUpMultiplier(1.0)
	torrent.SetDownMultiplier(1.0)

	up, down := creditDeltas(1000, 500, torrent, now)
	if up != 1000 || down != 500 {
		t.Fatalf("Expected 1000/500 at neutral multipliers, got %d/%d", up, down)
	}

	torrent.SetUpMultiplier(2.0)
	torrent.SetDownMultiplier(0.5)

	up, down = creditDeltas(1000, 500, torrent, now)
	if up != 2000 || down != 250 {
		t.Fatalf("Expected 2000/250, got %d/%d", up, down)
	}
}

func TestCreditDeltasFreeleech(t *testing.T) {
	now := int64(1_700_000_000)

	torrent := &types.Torrent{}
	torrent.SetUpMultiplier(1.0)
	torrent.SetDownMultiplier(1.0)
	torrent.Freeleech.Store(true)

	// Download side is free, upload still counts
	up, down := creditDeltas(1000, 500, torrent, now)
	if up != 1000 || down != 0 {
		t.Fatalf("Expected 1000/0 under freeleech, got %d/%d", up, down)
	}

	// Expired window restores the configured multiplier
	torrent.FreeleechUntil.Store(now - 60)

	up, down = creditDeltas(1000, 500, torrent, now)
	if up != 1000 || down != 500 {
		t.Fatalf("Expected 1000/500 after freeleech expiry, got %d/%d", up, down)
	}
}

func TestCompactPeersIPv4(t *testing.T) {
	peers := []*storage.Peer{
		{IP: netip.MustParseAddr("192.0.2.1"), Port: 6881},
		{IP: netip.MustParseAddr("192.0.2.2"), Port: 51413},
	}

	peers4, peers6 := compactPeers(peers)

	if len(peers6) != 0 {
		t.Fatalf("Expected no v6 records, got %d bytes", len(peers6))
	}

	expected := []byte{
		192, 0, 2, 1, 0x1a, 0xe1, // 6881
		192, 0, 2, 2, 0xc8, 0xd5, // 51413
	}

	if !bytes.Equal(peers4, expected) {
		t.Fatalf("Expected %v, got %v", expected, peers4)
	}
}

func TestCompactPeersMixed(t *testing.T) {
	peers := []*storage.Peer{
		{IP: netip.MustParseAddr("10.0.0.1"), Port: 80},
		{IP: netip.MustParseAddr("2001:db8::1"), Port: 6881},
	}

	peers4, peers6 := compactPeers(peers)

	if len(peers4) != 6 {
		t.Fatalf("Expected one 6-byte v4 record, got %d bytes", len(peers4))
	}

	if len(peers6) != 18 {
		t.Fatalf("Expected one 18-byte v6 record, got %d bytes", len(peers6))
	}

	addr := netip.MustParseAddr("2001:db8::1").As16()
	if !bytes.Equal(peers6[:16], addr[:]) || peers6[16] != 0x1a || peers6[17] != 0xe1 {
		t.Fatalf("Expected v6 address followed by big-endian port, got %v", peers6)
	}
}
