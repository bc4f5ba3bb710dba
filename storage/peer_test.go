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
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPeerCodecRoundtrip(t *testing.T) {
	peers := []*Peer{
		testPeer("192.0.2.1", 6881, 0),
		testPeer("2001:db8::1", 51413, 12345),
	}

	for _, peer := range peers {
		decoded, err := PeerFromBinary(peer.AppendBinary(nil))
		if err != nil {
			t.Fatalf("%s: %v", peer.AddrString(), err)
		}

		if diff := cmp.Diff(peer, decoded, cmpAddrs); diff != "" {
			t.Fatalf("%s roundtrip differs (-want +got):\n%s", peer.AddrString(), diff)
		}
	}
}

func TestPeerCodecEmptyKey(t *testing.T) {
	peer := testPeer("192.0.2.9", 6881, 0)
	peer.AnnounceKey = ""

	decoded, err := PeerFromBinary(peer.AppendBinary(nil))
	if err != nil {
		t.Fatal(err)
	}

	if decoded.AnnounceKey != "" {
		t.Fatalf("Expected empty key, got %q", decoded.AnnounceKey)
	}
}

func TestPeerCodecRejectsMalformed(t *testing.T) {
	peer := testPeer("192.0.2.10", 6881, 0)
	encoded := peer.AppendBinary(nil)

	cases := map[string][]byte{
		"empty":         {},
		"truncated":     encoded[:20],
		"bad version":   append([]byte{99}, encoded[1:]...),
		"short key":     encoded[:len(encoded)-4],
	}

	for name, buf := range cases {
		if _, err := PeerFromBinary(buf); err == nil {
			t.Errorf("%s: expected decode error", name)
		}
	}
}

func TestPeerCodecPreservesAddressFamily(t *testing.T) {
	v4 := testPeer("192.0.2.11", 6881, 0)

	decoded, err := PeerFromBinary(v4.AppendBinary(nil))
	if err != nil {
		t.Fatal(err)
	}

	if !decoded.IP.Is4() {
		t.Fatalf("Expected IPv4 to come back as IPv4, got %s", decoded.IP)
	}

	v6 := testPeer("2001:db8::2", 6881, 0)

	decoded, err = PeerFromBinary(v6.AppendBinary(nil))
	if err != nil {
		t.Fatal(err)
	}

	if decoded.IP != netip.MustParseAddr("2001:db8::2") {
		t.Fatalf("Expected IPv6 preserved, got %s", decoded.IP)
	}
}
