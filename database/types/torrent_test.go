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

import "testing"

func TestFreeleechActive(t *testing.T) {
	now := int64(1_700_000_000)

	cases := []struct {
		name   string
		flag   bool
		until  int64
		active bool
	}{
		{"disabled", false, 0, false},
		{"disabled with window", false, now + 3600, false},
		{"permanent", true, 0, true},
		{"window open", true, now + 3600, true},
		{"window closed", true, now - 1, false},
		{"window closes exactly now", true, now, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			torrent := &Torrent{}
			torrent.Freeleech.Store(c.flag)
			torrent.FreeleechUntil.Store(c.until)

			if got := torrent.FreeleechActive(now); got != c.active {
				t.Fatalf("Expected active=%v, got %v", c.active, got)
			}
		})
	}
}

func TestEffectiveDownMultiplier(t *testing.T) {
	now := int64(1_700_000_000)

	torrent := &Torrent{}
	torrent.SetDownMultiplier(0.5)

	if got := torrent.EffectiveDownMultiplier(now); got != 0.5 {
		t.Fatalf("Expected configured multiplier 0.5, got %v", got)
	}

	torrent.Freeleech.Store(true)

	if got := torrent.EffectiveDownMultiplier(now); got != 0 {
		t.Fatalf("Expected 0 while freeleech is active, got %v", got)
	}

	torrent.FreeleechUntil.Store(now - 60)

	if got := torrent.EffectiveDownMultiplier(now); got != 0.5 {
		t.Fatalf("Expected multiplier restored after expiry, got %v", got)
	}
}
