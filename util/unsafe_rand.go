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
	unsafeRandom "math/rand"
	"sync"
	"time"
)

// Fast, non-cryptographic randomness for jitter and peer shuffling.
// Anything security sensitive (announce keys, connection ids) must use
// the crypto helpers in util.go instead.

var (
	randomSource = unsafeRandom.New(unsafeRandom.NewSource(time.Now().UnixNano()))
	randomMutex  sync.Mutex
)

func UnsafeIntn(n int) int {
	randomMutex.Lock()
	defer randomMutex.Unlock()

	return randomSource.Intn(n)
}

func UnsafeUint32() uint32 {
	randomMutex.Lock()
	defer randomMutex.Unlock()

	return randomSource.Uint32()
}

func UnsafeUint64() uint64 {
	randomMutex.Lock()
	defer randomMutex.Unlock()

	return randomSource.Uint64()
}

func UnsafeRand(min int, max int) int {
	return UnsafeIntn(max-min+1) + min
}
