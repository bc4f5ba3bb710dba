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

package types

// Snatch is a completed download by a user, tracked for hit-and-run
// detection. Unique per (UserID, TorrentID).
type Snatch struct {
	UserID       uint32
	TorrentID    uint32
	CompletedAt  int64
	Seedtime     int64 // seconds
	LastAnnounce int64
	HnR          bool
}

// Ban blocks a single IP or a CIDR range, optionally until ExpiresAt.
type Ban struct {
	ID        uint32
	IP        string // "1.2.3.4" or "10.0.0.0/8"
	Reason    string
	ExpiresAt int64 // unix seconds; 0 means permanent
}

// WhitelistEntry approves clients whose peer_id starts with Prefix.
type WhitelistEntry struct {
	Prefix string // 1-8 raw bytes
	Name   string
}
