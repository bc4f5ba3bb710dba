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

package database

import (
	"strconv"
)

/*
 * Writers build one "(v,v,v)" tuple per update into a pooled buffer and
 * hand it to the matching channel; the flush goroutines concatenate the
 * tuples into a single multi-row statement. Buffers are taken here and
 * given back in flush.go.
 *
 * A full channel never blocks the request path: the send is retried from
 * a fresh goroutine instead.
 */

func (db *Database) QueueUserDelta(userID uint32, deltaUp, deltaDown uint64) {
	uq := db.bufferPool.Take()

	uq.WriteString("(")
	uq.WriteString(strconv.FormatUint(uint64(userID), 10))
	uq.WriteString(",")
	uq.WriteString(strconv.FormatUint(deltaUp, 10))
	uq.WriteString(",")
	uq.WriteString(strconv.FormatUint(deltaDown, 10))
	uq.WriteString(")")

	select {
	case db.userChannel <- uq:
	default:
		go func() {
			db.userChannel <- uq
		}()
	}
}

func (db *Database) QueueTorrentSync(torrentID, seeders, leechers, snatchedDelta uint32) {
	tq := db.bufferPool.Take()

	tq.WriteString("(")
	tq.WriteString(strconv.FormatUint(uint64(torrentID), 10))
	tq.WriteString(",")
	tq.WriteString(strconv.FormatUint(uint64(seeders), 10))
	tq.WriteString(",")
	tq.WriteString(strconv.FormatUint(uint64(leechers), 10))
	tq.WriteString(",")
	tq.WriteString(strconv.FormatUint(uint64(snatchedDelta), 10))
	tq.WriteString(")")

	select {
	case db.torrentChannel <- tq:
	default:
		go func() {
			db.torrentChannel <- tq
		}()
	}
}

func (db *Database) QueueSnatch(userID, torrentID uint32, now int64) {
	sn := db.bufferPool.Take()

	sn.WriteString("(")
	sn.WriteString(strconv.FormatUint(uint64(userID), 10))
	sn.WriteString(",")
	sn.WriteString(strconv.FormatUint(uint64(torrentID), 10))
	sn.WriteString(",")
	sn.WriteString(strconv.FormatInt(now, 10))
	sn.WriteString(",")
	sn.WriteString(strconv.FormatInt(now, 10))
	sn.WriteString(")")

	select {
	case db.snatchChannel <- sn:
	default:
		go func() {
			db.snatchChannel <- sn
		}()
	}
}

type seedtimeDelta struct {
	userID    uint32
	torrentID uint32
	delta     int64
	now       int64
}

// QueueSeedtime accrues seconds of seeding onto an existing snatch row.
// Rows are updated rather than upserted so cross-seeders without a
// recorded snatch never grow a bogus one.
func (db *Database) QueueSeedtime(userID, torrentID uint32, delta, now int64) {
	if delta <= 0 {
		return
	}

	entry := seedtimeDelta{userID: userID, torrentID: torrentID, delta: delta, now: now}

	select {
	case db.seedtimeChannel <- entry:
	default:
		go func() {
			db.seedtimeChannel <- entry
		}()
	}
}
