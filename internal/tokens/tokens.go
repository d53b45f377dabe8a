package tokens

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MillisecondsThreshold separates seconds-scale from milliseconds-scale
// timestamps. Values below it are seconds.
const MillisecondsThreshold int64 = 1_000_000_000_000

var ErrNoExpiry = errors.New("exp claim not present")

// NormalizeExpiry returns an expiry in milliseconds since epoch.
func NormalizeExpiry(v int64) int64 {
	if v < MillisecondsThreshold {
		return v * 1000
	}
	return v
}

// ExpiryFromClaims reads the exp claim of a decoded payload and returns it in
// milliseconds. ok is false when the claim is missing or not numeric.
func ExpiryFromClaims(claims map[string]any) (ms int64, ok bool) {
	if claims == nil {
		return 0, false
	}
	v, present := claims["exp"]
	if !present {
		return 0, false
	}
	n, err := numeric(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return NormalizeExpiry(n), true
}

// ExpiryFromToken decodes the credential's own exp claim without verifying
// the signature; the API is the one that verifies it.
func ExpiryFromToken(raw string) (int64, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return 0, fmt.Errorf("decode token: %w", err)
	}
	ms, ok := ExpiryFromClaims(claims)
	if !ok {
		return 0, ErrNoExpiry
	}
	return ms, nil
}

// ParseStoredExpiry parses a string-encoded expiry as persisted in a storage area.
func ParseStoredExpiry(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("malformed expiry %q", s)
		}
		n = int64(f)
	}
	if n <= 0 {
		return 0, fmt.Errorf("malformed expiry %q", s)
	}
	return NormalizeExpiry(n), nil
}

// Time converts a milliseconds expiry into a time.Time.
func Time(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func numeric(v any) (int64, error) {
	switch vv := v.(type) {
	case float64:
		return int64(vv), nil
	case int64:
		return vv, nil
	case int:
		return int64(vv), nil
	case json.Number:
		if i, err := vv.Int64(); err == nil {
			return i, nil
		}
		f, err := vv.Float64()
		if err != nil {
			return 0, err
		}
		return int64(f), nil
	case string:
		return strconv.ParseInt(vv, 10, 64)
	}
	return 0, fmt.Errorf("unsupported exp type %T", v)
}
