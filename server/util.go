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
	"net"
	"net/netip"

	"github.com/valyala/fasthttp"
	"github.com/zeebo/bencode"
)

// failure writes the standard error payload: a dictionary with a single
// failure reason key, served with HTTP 200 so clients display it.
func failure(reason string, buf *bytes.Buffer) {
	// Reset buffer to prevent reuse of any written bytes
	buf.Reset()

	data, err := bencode.EncodeBytes(map[string]interface{}{
		"failure reason": reason,
	})
	if err != nil {
		panic(err)
	}

	buf.Write(data)
}

// remoteAddr resolves the client address. Behind the reverse proxy the
// first X-Forwarded-For entry is the client; otherwise the socket
// address is used.
func remoteAddr(ctx *fasthttp.RequestCtx) netip.Addr {
	forwarded := ctx.Request.Header.Peek("X-Forwarded-For")

	if len(forwarded) > 0 {
		first := forwarded
		if i := bytes.IndexByte(first, ','); i >= 0 {
			first = first[:i]
		}

		if addr, err := netip.ParseAddr(string(bytes.TrimSpace(first))); err == nil {
			return addr.Unmap()
		}
	}

	if addr, ok := ctx.RemoteAddr().(*net.TCPAddr); ok {
		return addr.AddrPort().Addr().Unmap()
	}

	if addrPort, err := netip.ParseAddrPort(ctx.RemoteAddr().String()); err == nil {
		return addrPort.Addr().Unmap()
	}

	return netip.Addr{}
}
