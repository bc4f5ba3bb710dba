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

package swarm

import (
	"fmt"
	"net/netip"
	"testing"

	"kumo/storage"
)

func buildSwarm(seeders, leechers int) map[storage.PeerKey]*storage.Peer {
	peers := make(map[storage.PeerKey]*storage.Peer)

	for i := 0; i < seeders; i++ {
		p := &storage.Peer{
			IP:   netip.MustParseAddr(fmt.Sprintf("192.0.2.%d", i+1)),
			Port: 6881,
			Left: 0,
		}
		peers[p.Key()] = p
	}

	for i := 0; i < leechers; i++ {
		p := &storage.Peer{
			IP:   netip.MustParseAddr(fmt.Sprintf("198.51.100.%d", i+1)),
			Port: 6881,
			Left: 1000,
		}
		peers[p.Key()] = p
	}

	return peers
}

func countSeeders(peers []*storage.Peer) int {
	n := 0

	for _, p := range peers {
		if p.Seeding() {
			n++
		}
	}

	return n
}

func TestSelectionPrefersSeedersForLeechers(t *testing.T) {
	peers := buildSwarm(5, 5)
	requester := storage.NewPeerKey(netip.MustParseAddr("203.0.113.1"), 6881)

	selected := selectPeers(peers, requester, false, 5)

	if len(selected) != 5 {
		t.Fatalf("Expected 5 peers, got %d", len(selected))
	}

	if n := countSeeders(selected); n < 3 {
		t.Fatalf("Expected majority seeders, got %d/5", n)
	}
}

func TestSelectionUniformForSeeders(t *testing.T) {
	peers := buildSwarm(5, 5)
	requester := storage.NewPeerKey(netip.MustParseAddr("203.0.113.1"), 6881)

	// A seeding requester draws from the whole swarm, not leechers
	// first. With 5 seeders among 10 peers a run of 20 all-leecher
	// draws is practically impossible.
	sawSeeder := false

	for i := 0; i < 20; i++ {
		if countSeeders(selectPeers(peers, requester, true, 5)) > 0 {
			sawSeeder = true
			break
		}
	}

	if !sawSeeder {
		t.Fatal("Expected a seeding requester to also receive seeders")
	}
}

func TestSelectionPreferSeedersDisabled(t *testing.T) {
	defer func(previous bool) { preferSeeders = previous }(preferSeeders)
	preferSeeders = false

	peers := buildSwarm(5, 5)
	requester := storage.NewPeerKey(netip.MustParseAddr("203.0.113.1"), 6881)

	sawLeecher := false

	for i := 0; i < 20; i++ {
		selected := selectPeers(peers, requester, false, 5)
		if countSeeders(selected) < len(selected) {
			sawLeecher = true
			break
		}
	}

	if !sawLeecher {
		t.Fatal("Expected uniform selection to also hand leechers to a leecher")
	}
}

func TestSelectionExcludesRequester(t *testing.T) {
	peers := buildSwarm(3, 0)
	requester := storage.NewPeerKey(netip.MustParseAddr("192.0.2.1"), 6881)

	selected := selectPeers(peers, requester, false, 10)

	if len(selected) != 2 {
		t.Fatalf("Expected 2 peers, got %d", len(selected))
	}

	for _, p := range selected {
		if p.Key() == requester {
			t.Fatal("Requester made it into its own peer list")
		}
	}
}

func TestSelectionCapsNumWant(t *testing.T) {
	peers := buildSwarm(60, 0)
	requester := storage.NewPeerKey(netip.MustParseAddr("203.0.113.1"), 6881)

	if got := len(selectPeers(peers, requester, false, 200)); got != maxPeersPerAnnounce {
		t.Fatalf("Expected cap at %d, got %d", maxPeersPerAnnounce, got)
	}

	if got := len(selectPeers(peers, requester, false, 10)); got != 10 {
		t.Fatalf("Expected 10, got %d", got)
	}

	if got := len(selectPeers(peers, requester, false, 0)); got != 0 {
		t.Fatalf("Expected none for numwant 0, got %d", got)
	}
}

func TestSelectionConnectableFirst(t *testing.T) {
	peers := buildSwarm(0, 10)

	reachable := &storage.Peer{
		IP:          netip.MustParseAddr("203.0.113.9"),
		Port:        9000,
		Left:        1000,
		Connectable: storage.ConnectableYes,
	}
	peers[reachable.Key()] = reachable

	requester := storage.NewPeerKey(netip.MustParseAddr("203.0.113.1"), 6881)

	selected := selectPeers(peers, requester, false, 3)
	if len(selected) != 3 {
		t.Fatalf("Expected 3 peers, got %d", len(selected))
	}

	if selected[0].Port != 9000 {
		t.Fatal("Expected the verified-connectable peer to sort first")
	}
}
