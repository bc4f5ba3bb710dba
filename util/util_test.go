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
	"testing"
)

func TestBtoa(t *testing.T) {
	if Btoa(true) != "1" || Btoa(false) != "0" {
		t.Fatal("Btoa broken")
	}
}

func TestRandHexBytes(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		key := RandHexBytes(8)

		if len(key) != 16 {
			t.Fatalf("Expected 16 chars, got %d", len(key))
		}

		for _, c := range key {
			if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
				t.Fatalf("Non-hex character %q in %q", c, key)
			}
		}

		seen[key] = true
	}

	if len(seen) < 100 {
		t.Fatalf("Expected 100 distinct keys, got %d", len(seen))
	}
}

func TestApplyJitterBounds(t *testing.T) {
	const base = 1800

	for i := 0; i < 1000; i++ {
		v := ApplyJitter(base, 0.1)

		if v < base-base/10 || v > base+base/10 {
			t.Fatalf("Jittered value %d outside [1620, 1980]", v)
		}
	}
}

func TestApplyJitterZero(t *testing.T) {
	if v := ApplyJitter(1800, 0); v != 1800 {
		t.Fatalf("Expected no jitter, got %d", v)
	}
}

func TestApplyJitterNeverBelowOne(t *testing.T) {
	for i := 0; i < 100; i++ {
		if v := ApplyJitter(1, 1); v < 1 {
			t.Fatalf("Expected at least 1, got %d", v)
		}
	}
}

func TestBufferPoolReuse(t *testing.T) {
	pool := NewBufferPool(64)

	buf := pool.Take()
	buf.WriteString("leftover")
	pool.Give(buf)

	again := pool.Take()
	if again.Len() != 0 {
		t.Fatalf("Expected reset buffer, got %d bytes", again.Len())
	}
}

func TestSemaphore(t *testing.T) {
	s := NewSemaphore(2)

	TakeSemaphore(s)
	TakeSemaphore(s)

	select {
	case <-s:
		t.Fatal("Expected semaphore exhausted")
	default:
	}

	ReturnSemaphore(s)
	TakeSemaphore(s)
}
