// Copyright 2025 Nhat-Nguyen Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package counter

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"quotaguard/modules/quota"

	"github.com/redis/rueidis"
)

var (
	_ quota.CounterStore = (*RedisCounter)(nil)

	//go:embed incr_expr.lua
	atomicIncrLua string

	// Lua script for atomic increment-and-expire.
	// - KEYS[1] = full key
	// - ARGV[1] = window TTL in milliseconds, set only for a new counter
	// Atomically:
	// - count = INCR key
	// - if count == 1, PEXPIRE key ttl
	// - return {count, 1 if the key was created else 0}
	luaAtomicIncrWithTTL = rueidis.NewLuaScript(atomicIncrLua)
)

type RedisCounter struct {
	client rueidis.Client
	prefix string
}

// NewRedisCounterStore wraps a rueidis.Client as a quota.CounterStore.
//
// prefix is optional; if non-empty, keys become prefix + ":" + key.
func NewRedisCounterStore(client rueidis.Client, prefix string) *RedisCounter {
	if prefix != "" && prefix[len(prefix)-1] != ':' {
		prefix += ":"
	}
	return &RedisCounter{
		client: client,
		prefix: prefix,
	}
}

func (r *RedisCounter) buildKey(key string) string {
	return r.prefix + key
}

// Incr implements quota.CounterStore. Running the expire inside the script
// closes the gap where a crash between INCR and EXPIRE would leak an
// immortal counter.
func (r *RedisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (quota.IncrResult, error) {
	ms := ttl.Milliseconds()
	k := r.buildKey(key)

	rr := luaAtomicIncrWithTTL.Exec(ctx, r.client, []string{k}, []string{strconv.FormatInt(ms, 10)})
	vals, err := rr.AsIntSlice()
	if err != nil {
		return quota.IncrResult{}, fmt.Errorf("redis counter Incr: %w", err)
	}
	if len(vals) != 2 {
		return quota.IncrResult{}, fmt.Errorf("redis counter Incr: unexpected reply of %d values", len(vals))
	}
	return quota.IncrResult{Count: vals[0], NewWindow: vals[1] == 1}, nil
}

// Get implements quota.CounterStore.
func (r *RedisCounter) Get(ctx context.Context, key string) (int64, error) {
	k := r.buildKey(key)
	rr := r.client.Do(ctx, r.client.B().Get().Key(k).Build())
	bs, err := rr.AsBytes()
	if err != nil {
		// rueidis intentionally does not classify a NIL reply as a "Redis ERR".
		if ret, ok := rueidis.IsRedisErr(err); ok && ret.IsNil() {
			return 0, nil
		} else if rueidis.IsRedisNil(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis counter Get: %w", err)
	}

	n, err := strconv.ParseInt(string(bs), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis counter Get parse: %w", err)
	}
	return n, nil
}

// TTL implements quota.CounterStore. PTTL returns -2 for a missing key and
// -1 for a key without expiry; both map to a negative duration.
func (r *RedisCounter) TTL(ctx context.Context, key string) (time.Duration, error) {
	k := r.buildKey(key)
	rr := r.client.Do(ctx, r.client.B().Pttl().Key(k).Build())
	ms, err := rr.AsInt64()
	if err != nil {
		return 0, fmt.Errorf("redis counter TTL: %w", err)
	}
	if ms < 0 {
		return -1, nil
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Del implements quota.CounterStore. DEL on an absent key is a no-op.
func (r *RedisCounter) Del(ctx context.Context, key string) error {
	k := r.buildKey(key)
	if err := r.client.Do(ctx, r.client.B().Del().Key(k).Build()).Error(); err != nil {
		return fmt.Errorf("redis counter Del: %w", err)
	}
	return nil
}
