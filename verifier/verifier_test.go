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

package verifier

import (
	"errors"
	"net"
	"net/netip"
	"testing"
	"time"
)

func newTestVerifier(dialErr error) *Verifier {
	v := New(true, time.Second, time.Hour, 4)
	v.dial = func(addr string, timeout time.Duration) (net.Conn, error) {
		if dialErr != nil {
			return nil, dialErr
		}

		// The probe only closes the connection, a nil pipe end works
		server, client := net.Pipe()
		go func() { _ = server.Close() }()

		return client, nil
	}

	return v
}

func TestCheckUnknownThenCached(t *testing.T) {
	v := newTestVerifier(nil)
	addr := netip.MustParseAddr("192.0.2.1")

	if _, known := v.Check(addr, 6881); known {
		t.Fatal("Expected first check to miss")
	}

	// Run the queued probe synchronously
	v.probe(target{addr: addr, port: 6881})

	connectable, known := v.Check(addr, 6881)
	if !known || !connectable {
		t.Fatalf("Expected cached connectable, got known=%v connectable=%v", known, connectable)
	}
}

func TestCheckCachesFailure(t *testing.T) {
	v := newTestVerifier(errors.New("connection refused"))
	addr := netip.MustParseAddr("192.0.2.2")

	v.probe(target{addr: addr, port: 6881})

	connectable, known := v.Check(addr, 6881)
	if !known || connectable {
		t.Fatalf("Expected cached unreachable, got known=%v connectable=%v", known, connectable)
	}
}

func TestCheckDisabled(t *testing.T) {
	v := New(false, time.Second, time.Hour, 4)

	if _, known := v.Check(netip.MustParseAddr("192.0.2.3"), 1); known {
		t.Fatal("Expected disabled verifier to report unknown")
	}
}

func TestEnqueueDeduplicates(t *testing.T) {
	v := newTestVerifier(nil)
	addr := netip.MustParseAddr("192.0.2.4")

	v.Check(addr, 6881)
	v.Check(addr, 6881)
	v.Check(addr, 6881)

	if len(v.queue) != 1 {
		t.Fatalf("Expected single queued probe, got %d", len(v.queue))
	}
}

func TestSweepExpires(t *testing.T) {
	v := newTestVerifier(nil)
	addr := netip.MustParseAddr("192.0.2.5")

	v.cache.Store(target{addr: addr, port: 1}, result{connectable: true, expiresAt: 1})
	v.sweep()

	if v.CacheSize() != 0 {
		t.Fatalf("Expected cache swept, %d entries left", v.CacheSize())
	}
}
