package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const sessionFormatVersionCurrent = 1

const (
	flagRememberMe byte = 1 << iota
	flagActive
)

// ErrCorrupt is returned when a stored session record cannot be decoded.
var ErrCorrupt = errors.New("session: corrupt record")

// Encode serializes s. The account id must stay the first field after the
// version byte.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(96 + len(s.UserAgent))

	buf.WriteByte(sessionFormatVersionCurrent)

	for _, f := range []struct {
		name string
		v    string
	}{
		{"accountID", s.AccountID},
		{"ip", s.IP},
		{"deviceName", s.DeviceName},
		{"country", s.Country},
	} {
		if len(f.v) > 255 {
			return nil, errors.New(f.name + " too long")
		}
		buf.WriteByte(byte(len(f.v)))
		buf.WriteString(f.v)
	}

	if len(s.UserAgent) > 0xFFFF {
		return nil, errors.New("userAgent too long")
	}
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(s.UserAgent)))
	buf.WriteString(s.UserAgent)

	var flags byte
	if s.RememberMe {
		flags |= flagRememberMe
	}
	if s.Active {
		flags |= flagActive
	}
	buf.WriteByte(flags)

	for _, v := range []int64{
		int64(s.Timeout),
		s.CreatedAt.UnixNano(),
		s.LastActivityAt.UnixNano(),
		s.ExpiresAt.UnixNano(),
	} {
		_ = binary.Write(&buf, binary.BigEndian, v)
	}

	return buf.Bytes(), nil
}

// Decode parses a record produced by Encode. The ID is not part of the
// record; callers set it from the key.
func Decode(data []byte) (*Session, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, ErrCorrupt
	}
	if version != sessionFormatVersionCurrent {
		return nil, ErrCorrupt
	}

	s := &Session{}
	for _, dst := range []*string{&s.AccountID, &s.IP, &s.DeviceName, &s.Country} {
		n, err := r.ReadByte()
		if err != nil {
			return nil, ErrCorrupt
		}
		if *dst, err = readString(r, int(n)); err != nil {
			return nil, err
		}
	}

	var uaLen uint16
	if err := binary.Read(r, binary.BigEndian, &uaLen); err != nil {
		return nil, ErrCorrupt
	}
	if s.UserAgent, err = readString(r, int(uaLen)); err != nil {
		return nil, err
	}

	flags, err := r.ReadByte()
	if err != nil {
		return nil, ErrCorrupt
	}
	s.RememberMe = flags&flagRememberMe != 0
	s.Active = flags&flagActive != 0

	var ints [4]int64
	for i := range ints {
		if err := binary.Read(r, binary.BigEndian, &ints[i]); err != nil {
			return nil, ErrCorrupt
		}
	}
	if r.Len() != 0 {
		return nil, ErrCorrupt
	}

	s.Timeout = time.Duration(ints[0])
	s.CreatedAt = time.Unix(0, ints[1]).UTC()
	s.LastActivityAt = time.Unix(0, ints[2]).UTC()
	s.ExpiresAt = time.Unix(0, ints[3]).UTC()
	return s, nil
}

func readString(r *bytes.Reader, n int) (string, error) {
	if n == 0 {
		return "", nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", ErrCorrupt
	}
	return string(b), nil
}
