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
	"sort"

	"kumo/config"
	"kumo/storage"
	"kumo/util"
)

// maxPeersPerAnnounce caps the peer list regardless of what numwant
// the client asked for.
const maxPeersPerAnnounce = 50

// preferSeeders steers leechers towards seeders; when disabled the
// second sort band is uniform for everyone.
var preferSeeders bool

func init() {
	preferSeeders, _ = config.GetBool("prefer_seeders", true)
}

type candidate struct {
	peer *storage.Peer
	rnd  uint32
}

// selectPeers orders the swarm for one requester and returns up to
// min(numWant, 50) peers. Verified-connectable peers sort first, then
// seeders for a leeching requester; a seeding requester draws from the
// whole swarm uniformly, with a random shuffle inside each band.
func selectPeers(all map[storage.PeerKey]*storage.Peer, exclude storage.PeerKey,
	requesterSeeding bool, numWant int) []*storage.Peer {
	if numWant > maxPeersPerAnnounce {
		numWant = maxPeersPerAnnounce
	}

	if numWant <= 0 || len(all) == 0 {
		return nil
	}

	candidates := make([]candidate, 0, len(all))

	for key, peer := range all {
		if key == exclude {
			continue
		}

		candidates = append(candidates, candidate{peer: peer, rnd: util.UnsafeUint32()})
	}

	seederScore := func(p *storage.Peer) int {
		if !requesterSeeding && p.Seeding() {
			return 0
		}

		if !preferSeeders {
			return 0
		}

		return 1
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]

		if sa, sb := a.peer.Connectable.SortScore(), b.peer.Connectable.SortScore(); sa != sb {
			return sa < sb
		}

		if ua, ub := seederScore(a.peer), seederScore(b.peer); ua != ub {
			return ua < ub
		}

		return a.rnd < b.rnd
	})

	if len(candidates) > numWant {
		candidates = candidates[:numWant]
	}

	peers := make([]*storage.Peer, len(candidates))
	for i, c := range candidates {
		peers[i] = c.peer
	}

	return peers
}
