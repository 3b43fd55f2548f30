package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const challengeRecordVersion1 = 1

var (
	ErrChallengeNotFound = errors.New("mfa challenge not found")
	ErrChallengeExpired  = errors.New("mfa challenge expired")
	ErrChallengeBackend  = errors.New("mfa challenge backend unavailable")
)

// Challenge is the server-side state of a pending MFA login. The device
// fields are carried so the session issued on completion matches the
// password step.
type Challenge struct {
	AccountID  string
	ExpiresAt  int64
	Attempts   uint16
	RememberMe bool
	IP         string
	UserAgent  string
	DeviceName string
	Country    string
}

// ChallengeStore keeps challenges under <prefix>:<jti>.
type ChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewChallengeStore returns a store. now may be nil.
func NewChallengeStore(redisClient redis.UniversalClient, prefix string, now func() time.Time) *ChallengeStore {
	if prefix == "" {
		prefix = "amc"
	}
	if now == nil {
		now = time.Now
	}
	return &ChallengeStore{
		redis:  redisClient,
		prefix: prefix,
		now:    now,
	}
}

func (s *ChallengeStore) key(id string) string {
	return s.prefix + ":" + id
}

func (s *ChallengeStore) Save(ctx context.Context, id string, record *Challenge, ttl time.Duration) error {
	encoded, err := encodeChallenge(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(id), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return nil
}

func (s *ChallengeStore) Get(ctx context.Context, id string) (*Challenge, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}

	record, err := decodeChallenge(data)
	if err != nil {
		return nil, err
	}
	if s.now().Unix() > record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(id)).Result()
		return nil, ErrChallengeExpired
	}
	return record, nil
}

// Consume deletes the challenge and reports whether this call removed it.
func (s *ChallengeStore) Consume(ctx context.Context, id string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return n > 0, nil
}

// RecordFailure increments the attempt counter. Once it reaches
// maxAttempts the challenge is deleted and exceeded is true.
func (s *ChallengeStore) RecordFailure(ctx context.Context, id string, maxAttempts int) (exceeded bool, err error) {
	const maxRetries = 4
	key := s.key(id)

	for i := 0; i < maxRetries; i++ {
		exceeded = false
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			record, err := decodeChallenge(data)
			if err != nil {
				return err
			}

			ttl := time.Unix(record.ExpiresAt, 0).Sub(s.now())
			record.Attempts++
			if int(record.Attempts) >= maxAttempts || ttl <= 0 {
				exceeded = int(record.Attempts) >= maxAttempts
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				if !exceeded {
					return ErrChallengeExpired
				}
				return nil
			}

			updated, err := encodeChallenge(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, redis.KeepTTL)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return false, ErrChallengeNotFound
			}
			if errors.Is(err, ErrChallengeExpired) {
				return false, err
			}
			return false, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
		}
		return exceeded, nil
	}

	return false, fmt.Errorf("%w: contention", ErrChallengeBackend)
}

const (
	challengeFlagRememberMe byte = 1 << iota
)

func encodeChallenge(record *Challenge) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(challengeRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	var flags byte
	if record.RememberMe {
		flags |= challengeFlagRememberMe
	}
	buf.WriteByte(flags)

	for _, v := range []string{record.AccountID, record.IP, record.UserAgent, record.DeviceName, record.Country} {
		if len(v) > 65535 {
			return nil, errors.New("mfa challenge field length exceeded")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(v))); err != nil {
			return nil, err
		}
		buf.WriteString(v)
	}
	return buf.Bytes(), nil
}

func decodeChallenge(data []byte) (*Challenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != challengeRecordVersion1 {
		return nil, errors.New("invalid mfa challenge version")
	}

	record := &Challenge{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	record.RememberMe = flags&challengeFlagRememberMe != 0

	for _, dst := range []*string{&record.AccountID, &record.IP, &record.UserAgent, &record.DeviceName, &record.Country} {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(reader, b); err != nil {
			return nil, err
		}
		*dst = string(b)
	}
	return record, nil
}
