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

import (
	"math"
	"sync/atomic"
)

// Torrent is the cached view of a torrent row: counters mirrored for
// scrape plus the multiplier/freeleech settings applied at stat-record
// time. Counts are refreshed by the swarm sync, settings by the reload
// goroutine and the admin surface.
type Torrent struct {
	ID atomic.Uint32

	Seeders  atomic.Uint32
	Leechers atomic.Uint32
	Snatched atomic.Uint32

	Freeleech      atomic.Bool
	FreeleechUntil atomic.Int64 // unix seconds; 0 means no scheduled end

	UpMultiplier   atomic.Uint64 // math.Float64bits
	DownMultiplier atomic.Uint64 // math.Float64bits
}

func (t *Torrent) UpMultiplierValue() float64 {
	return math.Float64frombits(t.UpMultiplier.Load())
}

func (t *Torrent) SetUpMultiplier(m float64) {
	t.UpMultiplier.Store(math.Float64bits(m))
}

func (t *Torrent) DownMultiplierValue() float64 {
	return math.Float64frombits(t.DownMultiplier.Load())
}

func (t *Torrent) SetDownMultiplier(m float64) {
	t.DownMultiplier.Store(math.Float64bits(m))
}

// FreeleechActive reports whether freeleech applies at the given instant.
func (t *Torrent) FreeleechActive(now int64) bool {
	if !t.Freeleech.Load() {
		return false
	}

	until := t.FreeleechUntil.Load()

	return until == 0 || now < until
}

// EffectiveDownMultiplier is the download multiplier with freeleech
// forcing it to zero while active.
func (t *Torrent) EffectiveDownMultiplier(now int64) float64 {
	if t.FreeleechActive(now) {
		return 0
	}

	return t.DownMultiplierValue()
}
