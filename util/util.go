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

package util

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
)

func Btoa(a bool) string {
	if a {
		return "1"
	}

	return "0"
}

// Intn returns a uniform int in [0, n) from the crypto RNG.
func Intn(n int) int {
	var b [8]byte

	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}

	return int(binary.BigEndian.Uint32(b[:]) % uint32(n))
}

func Rand(min int, max int) int {
	return Intn(max-min+1) + min
}

// RandHexBytes returns 2*n hex characters backed by n bytes from the
// crypto RNG. Used for announce keys.
func RandHexBytes(n int) string {
	b := make([]byte, n)

	if _, err := rand.Read(b); err != nil {
		panic(err)
	}

	return hex.EncodeToString(b)
}

// ApplyJitter spreads re-announce intervals by up to ±base*jitter seconds
// so that a mass event does not resynchronize the whole swarm at once.
// A jitter of 0 disables the spread; the result is never below 1.
func ApplyJitter(base int, jitter float64) int {
	if base < 1 {
		base = 1
	}

	if jitter <= 0 {
		return base
	}

	if jitter > 1 {
		jitter = 1
	}

	amp := int(float64(base) * jitter)
	if amp == 0 {
		return base
	}

	interval := base + UnsafeRand(-amp, amp)
	if interval < 1 {
		interval = 1
	}

	return interval
}
