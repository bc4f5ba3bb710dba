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

// Package verifier probes peers with a bare TCP dial and caches whether
// they accept connections. The swarm consults the cache when ordering
// peers; it never waits on a probe.
package verifier

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"kumo/config"
	"kumo/util"
)

type target struct {
	addr netip.Addr
	port uint16
}

type result struct {
	connectable bool
	expiresAt   int64
}

type Verifier struct {
	enabled bool

	connectTimeout time.Duration
	cacheTTL       time.Duration

	cache sync.Map // target -> result
	queue chan target

	// queued de-duplicates targets already waiting for a probe
	queuedMu sync.Mutex
	queued   map[target]struct{}

	sem     util.Semaphore
	limiter *rate.Limiter

	dial func(addr string, timeout time.Duration) (net.Conn, error)
}

func NewFromConfig() *Verifier {
	section := config.Section("verifier")

	enabled, _ := section.GetBool("enabled", true)
	connectTimeout, _ := section.GetInt("connect_timeout", 3)
	cacheTTL, _ := section.GetInt("cache_ttl", 3600)
	maxConcurrent, _ := section.GetInt("max_concurrent", 50)

	return New(enabled,
		time.Duration(connectTimeout)*time.Second,
		time.Duration(cacheTTL)*time.Second,
		maxConcurrent)
}

func New(enabled bool, connectTimeout, cacheTTL time.Duration, maxConcurrent int) *Verifier {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	return &Verifier{
		enabled:        enabled,
		connectTimeout: connectTimeout,
		cacheTTL:       cacheTTL,
		queue:          make(chan target, 1024),
		queued:         make(map[target]struct{}),
		sem:            util.NewSemaphore(maxConcurrent),
		// One probe burst per peer is plenty; sustained probing stays
		// well under the dial capacity
		limiter: rate.NewLimiter(rate.Limit(maxConcurrent), maxConcurrent),
		dial: func(addr string, timeout time.Duration) (net.Conn, error) {
			return net.DialTimeout("tcp", addr, timeout)
		},
	}
}

// Check returns the cached reachability of (ip, port). On a miss or an
// expired entry it reports unknown and schedules a probe.
func (v *Verifier) Check(ip netip.Addr, port uint16) (connectable bool, known bool) {
	if !v.enabled {
		return false, false
	}

	t := target{addr: ip.Unmap(), port: port}

	if value, exists := v.cache.Load(t); exists {
		res := value.(result)
		if time.Now().Unix() < res.expiresAt {
			return res.connectable, true
		}
	}

	v.enqueue(t)

	return false, false
}

func (v *Verifier) enqueue(t target) {
	v.queuedMu.Lock()

	if _, pending := v.queued[t]; pending {
		v.queuedMu.Unlock()
		return
	}

	v.queued[t] = struct{}{}
	v.queuedMu.Unlock()

	select {
	case v.queue <- t:
	default:
		// Queue full; the peer stays unknown until a later announce
		v.queuedMu.Lock()
		delete(v.queued, t)
		v.queuedMu.Unlock()
	}
}

// Start launches the probe loop and the cache sweeper.
func (v *Verifier) Start(ctx context.Context) {
	if !v.enabled {
		return
	}

	go v.run(ctx)
	go util.ContextTick(ctx, v.cacheTTL, v.sweep)
}

func (v *Verifier) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-v.queue:
			if err := v.limiter.Wait(ctx); err != nil {
				return
			}

			if !util.TryTakeSemaphore(ctx, v.sem) {
				return
			}

			go func(t target) {
				defer util.ReturnSemaphore(v.sem)
				v.probe(t)
			}(t)
		}
	}
}

func (v *Verifier) probe(t target) {
	defer func() {
		v.queuedMu.Lock()
		delete(v.queued, t)
		v.queuedMu.Unlock()
	}()

	addr := netip.AddrPortFrom(t.addr, t.port).String()

	conn, err := v.dial(addr, v.connectTimeout)
	if err == nil {
		_ = conn.Close()
	}

	v.cache.Store(t, result{
		connectable: err == nil,
		expiresAt:   time.Now().Add(v.cacheTTL).Unix(),
	})
}

func (v *Verifier) sweep() {
	now := time.Now().Unix()
	removed := 0

	v.cache.Range(func(key, value any) bool {
		if value.(result).expiresAt <= now {
			v.cache.Delete(key)
			removed++
		}

		return true
	})

	if removed > 0 {
		slog.Debug("swept expired reachability entries", "count", removed)
	}
}

// CacheSize is exported for the stats surface.
func (v *Verifier) CacheSize() int {
	size := 0

	v.cache.Range(func(_, _ any) bool {
		size++
		return true
	})

	return size
}
