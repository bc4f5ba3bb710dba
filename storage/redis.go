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

package storage

import (
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"

	"kumo/database/types"
)

// Redis is the shared backend for multi-node operation. Each swarm is a
// hash of peer records plus a sorted set of last-announce timestamps;
// both are written in one MULTI so a peer never exists in only one of
// them.
type Redis struct {
	pool *redis.Pool
}

func NewRedis(url string, connectTimeout time.Duration) *Redis {
	return &Redis{
		pool: &redis.Pool{
			MaxIdle:     8,
			MaxActive:   64,
			Wait:        true,
			IdleTimeout: 240 * time.Second,
			Dial: func() (redis.Conn, error) {
				return redis.DialURL(url, redis.DialConnectTimeout(connectTimeout))
			},
		},
	}
}

func (r *Redis) Close() error {
	return r.pool.Close()
}

func swarmKey(h types.TorrentHash) string {
	return "kumo:swarm:" + h.Hex()
}

func swarmIndexKey(h types.TorrentHash) string {
	return "kumo:swarm:" + h.Hex() + ":ts"
}

func (r *Redis) GetPeer(h types.TorrentHash, key PeerKey) (*Peer, error) {
	conn := r.pool.Get()
	defer conn.Close()

	buf, err := redis.Bytes(conn.Do("HGET", swarmKey(h), key.String()))
	if err == redis.ErrNil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("redis get peer: %w", err)
	}

	return PeerFromBinary(buf)
}

func (r *Redis) PutPeer(h types.TorrentHash, key PeerKey, peer *Peer) error {
	conn := r.pool.Get()
	defer conn.Close()

	buf := peer.AppendBinary(make([]byte, 0, 96))
	field := key.String()

	_ = conn.Send("MULTI")
	_ = conn.Send("HSET", swarmKey(h), field, buf)
	_ = conn.Send("ZADD", swarmIndexKey(h), peer.UpdatedAt, field)

	if _, err := conn.Do("EXEC"); err != nil {
		return fmt.Errorf("redis put peer: %w", err)
	}

	return nil
}

func (r *Redis) DeletePeer(h types.TorrentHash, key PeerKey) error {
	conn := r.pool.Get()
	defer conn.Close()

	field := key.String()

	_ = conn.Send("MULTI")
	_ = conn.Send("HDEL", swarmKey(h), field)
	_ = conn.Send("ZREM", swarmIndexKey(h), field)

	if _, err := conn.Do("EXEC"); err != nil {
		return fmt.Errorf("redis delete peer: %w", err)
	}

	return nil
}

func (r *Redis) GetAllPeers(h types.TorrentHash) (map[PeerKey]*Peer, error) {
	conn := r.pool.Get()
	defer conn.Close()

	values, err := redis.ByteSlices(conn.Do("HGETALL", swarmKey(h)))
	if err != nil {
		return nil, fmt.Errorf("redis get all peers: %w", err)
	}

	peers := make(map[PeerKey]*Peer, len(values)/2)

	for i := 0; i+1 < len(values); i += 2 {
		key, err := PeerKeyFromString(string(values[i]))
		if err != nil {
			continue
		}

		peer, err := PeerFromBinary(values[i+1])
		if err != nil {
			continue
		}

		peers[key] = peer
	}

	return peers, nil
}

func (r *Redis) CountPeers(h types.TorrentHash) (int, error) {
	conn := r.pool.Get()
	defer conn.Close()

	count, err := redis.Int(conn.Do("HLEN", swarmKey(h)))
	if err != nil {
		return 0, fmt.Errorf("redis count peers: %w", err)
	}

	return count, nil
}

func (r *Redis) CleanupExpired(h types.TorrentHash, cutoff int64) (int, error) {
	conn := r.pool.Get()
	defer conn.Close()

	stale, err := redis.Strings(conn.Do(
		"ZRANGEBYSCORE", swarmIndexKey(h), "-inf", "("+itoa(uint64(cutoff))))
	if err != nil {
		return 0, fmt.Errorf("redis cleanup: %w", err)
	}

	if len(stale) == 0 {
		return 0, nil
	}

	hdel := redis.Args{}.Add(swarmKey(h)).AddFlat(stale)
	zrem := redis.Args{}.Add(swarmIndexKey(h)).AddFlat(stale)

	_ = conn.Send("MULTI")
	_ = conn.Send("HDEL", hdel...)
	_ = conn.Send("ZREM", zrem...)

	if _, err = conn.Do("EXEC"); err != nil {
		return 0, fmt.Errorf("redis cleanup: %w", err)
	}

	return len(stale), nil
}

func (r *Redis) Counts(h types.TorrentHash) (uint32, uint32, error) {
	peers, err := r.GetAllPeers(h)
	if err != nil {
		return 0, 0, err
	}

	var seeders, leechers uint32

	for _, peer := range peers {
		if peer.Seeding() {
			seeders++
		} else {
			leechers++
		}
	}

	return seeders, leechers, nil
}

func (r *Redis) Clear(h types.TorrentHash) error {
	conn := r.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("DEL", swarmKey(h), swarmIndexKey(h)); err != nil {
		return fmt.Errorf("redis clear: %w", err)
	}

	return nil
}
