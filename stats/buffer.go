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

// Package stats buffers per-user transfer deltas and per-torrent counts
// between flushes. Writers only touch atomic cells; the collector swaps
// the whole buffer out and walks the detached snapshot.
package stats

import (
	"sync"
	"sync/atomic"
)

type userDelta struct {
	up   atomic.Uint64
	down atomic.Uint64
}

type torrentCell struct {
	// seeders/leechers are snapshots (last write wins); the snatch
	// delta accumulates until drained
	counts      atomic.Uint64 // high 32 bits seeders, low 32 leechers
	snatchDelta atomic.Uint32
}

type buffer struct {
	users    sync.Map // uint32 -> *userDelta
	torrents sync.Map // uint32 -> *torrentCell
}

type Buffer struct {
	current atomic.Pointer[buffer]

	// Serializes Drain against itself; writers never take it
	drainMutex sync.Mutex
}

func NewBuffer() *Buffer {
	b := &Buffer{}
	b.current.Store(&buffer{})

	return b
}

// RecordUser accumulates a transfer delta. Anonymous announces
// (userID 0, the UDP path) are dropped: there is nobody to credit.
func (b *Buffer) RecordUser(userID uint32, deltaUp, deltaDown uint64) {
	if userID == 0 || (deltaUp == 0 && deltaDown == 0) {
		return
	}

	buf := b.current.Load()

	value, exists := buf.users.Load(userID)
	if !exists {
		value, _ = buf.users.LoadOrStore(userID, &userDelta{})
	}

	cell := value.(*userDelta)
	cell.up.Add(deltaUp)
	cell.down.Add(deltaDown)
}

// RecordTorrent overwrites the count snapshot for a torrent and adds
// snatchDelta to its pending completed counter.
func (b *Buffer) RecordTorrent(torrentID, seeders, leechers, snatchDelta uint32) {
	buf := b.current.Load()

	value, exists := buf.torrents.Load(torrentID)
	if !exists {
		value, _ = buf.torrents.LoadOrStore(torrentID, &torrentCell{})
	}

	cell := value.(*torrentCell)
	cell.counts.Store(uint64(seeders)<<32 | uint64(leechers))

	if snatchDelta > 0 {
		cell.snatchDelta.Add(snatchDelta)
	}
}

type UserEntry struct {
	UserID uint32
	Up     uint64
	Down   uint64
}

type TorrentEntry struct {
	TorrentID   uint32
	Seeders     uint32
	Leechers    uint32
	SnatchDelta uint32
}

// Drain atomically replaces the buffer with a fresh one and returns the
// detached contents. Writers racing the swap land in one buffer or the
// other, never in neither.
func (b *Buffer) Drain() ([]UserEntry, []TorrentEntry) {
	b.drainMutex.Lock()
	old := b.current.Swap(&buffer{})
	b.drainMutex.Unlock()

	var users []UserEntry

	old.users.Range(func(key, value any) bool {
		cell := value.(*userDelta)
		users = append(users, UserEntry{
			UserID: key.(uint32),
			Up:     cell.up.Load(),
			Down:   cell.down.Load(),
		})

		return true
	})

	var torrents []TorrentEntry

	old.torrents.Range(func(key, value any) bool {
		cell := value.(*torrentCell)
		counts := cell.counts.Load()

		torrents = append(torrents, TorrentEntry{
			TorrentID:   key.(uint32),
			Seeders:     uint32(counts >> 32),
			Leechers:    uint32(counts),
			SnatchDelta: cell.snatchDelta.Load(),
		})

		return true
	})

	return users, torrents
}
