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

package server

import (
	"bytes"
	"testing"

	"github.com/valyala/fasthttp"
)

func TestFailure(t *testing.T) {
	buf := bytes.NewBufferString("some existing data")

	failure("error message", buf)

	testData := []byte("d14:failure reason13:error messagee")
	if !bytes.Equal(buf.Bytes(), testData) {
		t.Fatalf("Expected %s, got %s", testData, buf.Bytes())
	}
}

func TestRemoteAddrForwarded(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	if addr := remoteAddr(ctx); addr.String() != "203.0.113.7" {
		t.Fatalf("Expected first forwarded address, got %s", addr)
	}
}

func TestRemoteAddrForwardedMapped(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.Set("X-Forwarded-For", "::ffff:198.51.100.4")

	if addr := remoteAddr(ctx); addr.String() != "198.51.100.4" {
		t.Fatalf("Expected unmapped address, got %s", addr)
	}
}

func TestRemoteAddrMalformedForwarded(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.Set("X-Forwarded-For", "not an address")

	// Falls through to the socket address, which is the zero TCP
	// address on a bare RequestCtx
	if addr := remoteAddr(ctx); addr.IsValid() && addr.String() != "0.0.0.0" {
		t.Fatalf("Expected socket fallback, got %s", addr)
	}
}
