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
	"sync"

	"kumo/database/types"
)

// Memory is the in-process backend: one map of peers per swarm. The
// swarm worker already serializes access within a single info_hash; the
// store-level lock only guards the swarm map itself across workers.
type Memory struct {
	mu     sync.RWMutex
	swarms map[types.TorrentHash]map[PeerKey]*Peer
}

func NewMemory() *Memory {
	return &Memory{
		swarms: make(map[types.TorrentHash]map[PeerKey]*Peer),
	}
}

func (m *Memory) GetPeer(h types.TorrentHash, key PeerKey) (*Peer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	peer, exists := m.swarms[h][key]
	if !exists {
		return nil, nil
	}

	clone := *peer

	return &clone, nil
}

func (m *Memory) PutPeer(h types.TorrentHash, key PeerKey, peer *Peer) error {
	clone := *peer

	m.mu.Lock()
	defer m.mu.Unlock()

	swarm, exists := m.swarms[h]
	if !exists {
		swarm = make(map[PeerKey]*Peer)
		m.swarms[h] = swarm
	}

	swarm[key] = &clone

	return nil
}

func (m *Memory) DeletePeer(h types.TorrentHash, key PeerKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	swarm, exists := m.swarms[h]
	if !exists {
		return nil
	}

	delete(swarm, key)

	if len(swarm) == 0 {
		delete(m.swarms, h)
	}

	return nil
}

func (m *Memory) GetAllPeers(h types.TorrentHash) (map[PeerKey]*Peer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	swarm := m.swarms[h]
	peers := make(map[PeerKey]*Peer, len(swarm))

	for key, peer := range swarm {
		clone := *peer
		peers[key] = &clone
	}

	return peers, nil
}

func (m *Memory) CountPeers(h types.TorrentHash) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.swarms[h]), nil
}

func (m *Memory) CleanupExpired(h types.TorrentHash, cutoff int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	swarm := m.swarms[h]
	removed := 0

	for key, peer := range swarm {
		if peer.UpdatedAt < cutoff {
			delete(swarm, key)
			removed++
		}
	}

	if len(swarm) == 0 {
		delete(m.swarms, h)
	}

	return removed, nil
}

func (m *Memory) Counts(h types.TorrentHash) (uint32, uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var seeders, leechers uint32

	for _, peer := range m.swarms[h] {
		if peer.Seeding() {
			seeders++
		} else {
			leechers++
		}
	}

	return seeders, leechers, nil
}

func (m *Memory) Clear(h types.TorrentHash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.swarms, h)

	return nil
}
