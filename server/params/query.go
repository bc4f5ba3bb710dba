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

// Package params parses announce and scrape query strings. Values are
// decoded byte-wise rather than through net/url: info_hash and peer_id
// carry raw binary that is not valid UTF-8, and a malformed escape must
// not reject the whole request.
package params

import (
	"strconv"
	"strings"

	cdb "kumo/database/types"
)

type QueryParam struct {
	query      string
	params     map[string]string
	infoHashes []cdb.TorrentHash

	// invalidHash records an info_hash whose decoded form was not 20
	// bytes, so "missing" and "invalid" can be told apart
	invalidHash bool
}

// unescape percent-decodes s. '+' becomes a space; a '%' not followed
// by two hex digits is kept verbatim.
func unescape(s string) string {
	if !strings.ContainsAny(s, "%+") {
		return s
	}

	var b strings.Builder

	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '+':
			b.WriteByte(' ')
		case '%':
			if i+2 < len(s) {
				hi, okHi := unhex(s[i+1])
				lo, okLo := unhex(s[i+2])

				if okHi && okLo {
					b.WriteByte(hi<<4 | lo)
					i += 2

					continue
				}
			}

			b.WriteByte('%')
		default:
			b.WriteByte(s[i])
		}
	}

	return b.String()
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}

	return 0, false
}

// ParseQuery splits a raw query string. Every info_hash of exactly 20
// decoded bytes is collected; other keys keep their last value.
func ParseQuery(query string) *QueryParam {
	qp := &QueryParam{
		query:  query,
		params: make(map[string]string),
	}

	for query != "" {
		key := query
		if i := strings.Index(key, "&"); i >= 0 {
			key, query = key[:i], key[i+1:]
		} else {
			query = ""
		}

		if key == "" {
			continue
		}

		value := ""
		if i := strings.Index(key, "="); i >= 0 {
			key, value = key[:i], key[i+1:]
		}

		key = unescape(key)
		value = unescape(value)

		if key == "info_hash" {
			if len(value) == cdb.TorrentHashSize {
				qp.infoHashes = append(qp.infoHashes, cdb.TorrentHashFromBytes([]byte(value)))
			} else {
				qp.invalidHash = true
			}
		} else {
			qp.params[strings.ToLower(key)] = value
		}
	}

	return qp
}

func (qp *QueryParam) getUint(which string, bitSize int) (ret uint64, exists bool) {
	str, exists := qp.params[which]
	if exists {
		var err error

		ret, err = strconv.ParseUint(str, 10, bitSize)
		if err != nil {
			exists = false
		}
	}

	return
}

func (qp *QueryParam) Get(which string) (ret string, exists bool) {
	ret, exists = qp.params[which]
	return
}

func (qp *QueryParam) GetUint64(which string) (ret uint64, exists bool) {
	return qp.getUint(which, 64)
}

func (qp *QueryParam) GetUint16(which string) (ret uint16, exists bool) {
	tmp, exists := qp.getUint(which, 16)
	ret = uint16(tmp)

	return
}

func (qp *QueryParam) GetInt(which string) (ret int64, exists bool) {
	str, exists := qp.params[which]
	if exists {
		var err error

		ret, err = strconv.ParseInt(str, 10, 64)
		if err != nil {
			exists = false
		}
	}

	return
}

func (qp *QueryParam) InfoHashes() []cdb.TorrentHash {
	return qp.infoHashes
}

// InvalidInfoHash reports whether an info_hash key was seen but had the
// wrong length.
func (qp *QueryParam) InvalidInfoHash() bool {
	return qp.invalidHash
}

func (qp *QueryParam) RawQuery() string {
	return qp.query
}
