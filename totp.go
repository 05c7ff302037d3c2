package corplink

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

const (
	// TimeStep is the TOTP time step in seconds.
	TimeStep = 30

	totpDigits = 6
	totpModulo = 1_000_000
)

// TotpSlot is a one-time code together with the number of seconds it stays valid.
type TotpSlot struct {
	Code     uint32
	SecsLeft uint32
}

func (s TotpSlot) String() string {
	return fmt.Sprintf("%0*d", totpDigits, s.Code)
}

// HOTP computes the RFC 4226 code for the given key and counter.
func HOTP(key []byte, counter uint64) uint32 {
	var msg [8]byte

	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return value % totpModulo
}

// TOTPOffset computes the current code, shifted by offsetSlots time steps.
func TOTPOffset(key []byte, offsetSlots int64) TotpSlot {
	return totpAt(key, time.Now(), offsetSlots)
}

func totpAt(key []byte, now time.Time, offsetSlots int64) TotpSlot {
	unix := now.Unix()

	return TotpSlot{
		Code:     HOTP(key, uint64(unix/TimeStep+offsetSlots)),
		SecsLeft: uint32(TimeStep - unix%TimeStep),
	}
}

// OffsetSlots converts a clock offset in seconds to whole time steps, rounding down.
func OffsetSlots(offsetSeconds int64) int64 {
	slots := offsetSeconds / TimeStep

	if offsetSeconds%TimeStep != 0 && offsetSeconds < 0 {
		slots--
	}

	return slots
}

// DecodeSeed decodes a base32 OTP seed. Padding and case are optional.
func DecodeSeed(seed string) ([]byte, error) {
	seed = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(seed), " ", ""))

	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.TrimRight(seed, "="))
	if err != nil {
		return nil, fmt.Errorf("failed to decode otp seed: %w", err)
	}

	return key, nil
}
