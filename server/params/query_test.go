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

package params

import (
	"net/url"
	"testing"

	cdb "kumo/database/types"
)

func TestParseQueryBinaryValues(t *testing.T) {
	var hash cdb.TorrentHash
	for i := range hash {
		hash[i] = byte(i * 7 % 256)
	}

	peerID := "-KM0100-\x00\x01\x02abcdef\xff\xfe\xfd"
	if len(peerID) != cdb.PeerIDSize {
		t.Fatalf("bad test fixture: peer id is %d bytes", len(peerID))
	}

	query := "info_hash=" + url.QueryEscape(string(hash[:])) +
		"&peer_id=" + url.QueryEscape(peerID) +
		"&port=6881&uploaded=100&downloaded=200&left=0&event=started"

	qp := ParseQuery(query)

	if len(qp.InfoHashes()) != 1 {
		t.Fatalf("Expected 1 info_hash, got %d", len(qp.InfoHashes()))
	}

	if qp.InfoHashes()[0] != hash {
		t.Fatalf("Expected info_hash %x, got %x", hash, qp.InfoHashes()[0])
	}

	got, exists := qp.Get("peer_id")
	if !exists || got != peerID {
		t.Fatalf("Expected peer_id %q, got %q (exists=%v)", peerID, got, exists)
	}

	if port, exists := qp.GetUint16("port"); !exists || port != 6881 {
		t.Fatalf("Expected port 6881, got %d (exists=%v)", port, exists)
	}

	if up, exists := qp.GetUint64("uploaded"); !exists || up != 100 {
		t.Fatalf("Expected uploaded 100, got %d (exists=%v)", up, exists)
	}

	if event, _ := qp.Get("event"); event != "started" {
		t.Fatalf("Expected event started, got %q", event)
	}
}

func TestParseQueryRepeatedInfoHash(t *testing.T) {
	var first, second cdb.TorrentHash

	for i := range first {
		first[i] = byte(i)
		second[i] = byte(255 - i)
	}

	query := "info_hash=" + url.QueryEscape(string(first[:])) +
		"&info_hash=" + url.QueryEscape(string(second[:]))

	qp := ParseQuery(query)

	if len(qp.InfoHashes()) != 2 {
		t.Fatalf("Expected 2 info_hashes, got %d", len(qp.InfoHashes()))
	}

	if qp.InfoHashes()[0] != first || qp.InfoHashes()[1] != second {
		t.Fatal("info_hashes came back in the wrong order or mangled")
	}
}

func TestParseQueryWrongSizeInfoHashDropped(t *testing.T) {
	qp := ParseQuery("info_hash=short&port=1")

	if len(qp.InfoHashes()) != 0 {
		t.Fatalf("Expected short info_hash to be dropped, got %d entries", len(qp.InfoHashes()))
	}

	// Malformed and absent read differently to the client
	if !qp.InvalidInfoHash() {
		t.Fatal("Expected wrong-size info_hash to be flagged invalid")
	}

	if port, exists := qp.GetUint16("port"); !exists || port != 1 {
		t.Fatalf("Expected port to survive, got %d (exists=%v)", port, exists)
	}
}

func TestInvalidInfoHashUnsetOtherwise(t *testing.T) {
	if ParseQuery("port=1").InvalidInfoHash() {
		t.Fatal("Expected absent info_hash to not be flagged invalid")
	}

	var hash cdb.TorrentHash

	qp := ParseQuery("info_hash=" + url.QueryEscape(string(hash[:])))
	if qp.InvalidInfoHash() {
		t.Fatal("Expected well-formed info_hash to not be flagged invalid")
	}
}

func TestUnescapeMalformedPassthrough(t *testing.T) {
	cases := map[string]string{
		"plain":       "plain",
		"a%41b":       "aAb",
		"a+b":         "a b",
		"100%":        "100%",
		"bad%zzseq":   "bad%zzseq",
		"trail%1":     "trail%1",
		"%41%42%43":   "ABC",
		"mixed%4g%20": "mixed%4g ",
	}

	for input, expected := range cases {
		if got := unescape(input); got != expected {
			t.Errorf("unescape(%q): expected %q, got %q", input, expected, got)
		}
	}
}

func TestGetUintRejectsGarbage(t *testing.T) {
	qp := ParseQuery("port=notanumber&left=-5")

	if _, exists := qp.GetUint16("port"); exists {
		t.Fatal("Expected non-numeric port to not exist")
	}

	if _, exists := qp.GetUint64("left"); exists {
		t.Fatal("Expected negative left to not exist")
	}
}
