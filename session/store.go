package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrStoreUnavailable wraps every Redis failure.
	ErrStoreUnavailable = errors.New("session: store unavailable")
	// ErrSessionNotFound is returned for unknown or already removed sessions.
	ErrSessionNotFound = errors.New("session: not found")
)

// Store is the persistence contract used by Manager.
type Store interface {
	// Put writes s and keeps the backing record for ttl.
	Put(ctx context.Context, s *Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (*Session, error)
	// Touch overwrites an existing session and returns ErrSessionNotFound
	// when it was removed in the meantime.
	Touch(ctx context.Context, s *Session, ttl time.Duration) error
	// Delete removes the session and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)
	ListByAccount(ctx context.Context, accountID string) ([]*Session, error)
	// SweepExpired removes up to limit sessions whose expiry is before now.
	SweepExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// deleteSessionScript removes the record and its index entries. The
// account id is read from the record header so callers only need the id.
const deleteSessionScript = `
redis.call("ZREM", KEYS[2], ARGV[1])
local data = redis.call("GET", KEYS[1])
if not data then
  return 0
end
local version = string.byte(data, 1)
local n = string.byte(data, 2)
if version == 1 and n and #data >= 2 + n then
  local account = string.sub(data, 3, 2 + n)
  redis.call("SREM", ARGV[2] .. account, ARGV[1])
end
redis.call("DEL", KEYS[1])
return 1
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// RedisStore keeps sessions in Redis:
//
//	<prefix>:s:<id>        encoded session, TTL = remaining lifetime + grace
//	<prefix>:a:<account>   SET of the account's session ids
//	<prefix>:exp           ZSET of session ids scored by expiry (unix ms)
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store under the given key prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "acs"
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + ":s:" + id
}

func (s *RedisStore) accountPrefix() string {
	return s.prefix + ":a:"
}

func (s *RedisStore) accountKey(accountID string) string {
	return s.accountPrefix() + accountID
}

func (s *RedisStore) expiryKey() string {
	return s.prefix + ":exp"
}

func (s *RedisStore) Put(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	if ttl < time.Second {
		ttl = time.Second
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.ID), data, ttl)
		pipe.SAdd(ctx, s.accountKey(sess.AccountID), sess.ID)
		pipe.ZAdd(ctx, s.expiryKey(), redis.Z{Score: float64(sess.ExpiresAt.UnixMilli()), Member: sess.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Touch(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	if ttl < time.Second {
		ttl = time.Second
	}

	var set *redis.BoolCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		set = pipe.SetXX(ctx, s.key(sess.ID), data, ttl)
		pipe.ZAddXX(ctx, s.expiryKey(), redis.Z{Score: float64(sess.ExpiresAt.UnixMilli()), Member: sess.ID})
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !set.Val() {
		return ErrSessionNotFound
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.ID = id
	return sess, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := deleteSessionLua.Run(ctx, s.redis,
		[]string{s.key(id), s.expiryKey()},
		id, s.accountPrefix(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n == 1, nil
}

// ListByAccount returns the account's stored sessions. Index entries whose
// record has already been evicted by Redis TTL are pruned.
func (s *RedisStore) ListByAccount(ctx context.Context, accountID string) ([]*Session, error) {
	ids, err := s.redis.SMembers(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	out := make([]*Session, 0, len(ids))
	var stale []interface{}
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			stale = append(stale, ids[i])
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		sess, err := Decode(data)
		if err != nil {
			stale = append(stale, ids[i])
			continue
		}
		sess.ID = ids[i]
		out = append(out, sess)
	}

	if len(stale) > 0 {
		_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SRem(ctx, s.accountKey(accountID), stale...)
			pipe.ZRem(ctx, s.expiryKey(), stale...)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return out, nil
}

func (s *RedisStore) SweepExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 500
	}
	ids, err := s.redis.ZRangeByScore(ctx, s.expiryKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	removed := 0
	for _, id := range ids {
		existed, err := s.Delete(ctx, id)
		if err != nil {
			return removed, err
		}
		if existed {
			removed++
		}
	}
	return removed, nil
}
