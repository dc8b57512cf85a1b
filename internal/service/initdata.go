package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInitDataMalformed = errors.New("init data is malformed")
	ErrInitDataSignature = errors.New("init data signature mismatch")
	ErrInitDataExpired   = errors.New("init data is expired")
)

// допустимое расхождение часов для auth_date из будущего
const initDataClockSkew = 5 * time.Minute

// WebAppUser is the user object embedded in Telegram init data.
type WebAppUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// InitData is a verified Telegram WebApp launch payload.
type InitData struct {
	User     WebAppUser
	AuthDate time.Time
	Values   url.Values
}

func webAppSecret(botToken string) []byte {
	h := hmac.New(sha256.New, []byte("WebAppData"))
	h.Write([]byte(botToken))
	return h.Sum(nil)
}

func dataCheckString(values url.Values) string {
	pairs := make([]string, 0, len(values))
	for k, v := range values {
		if k == "hash" {
			continue
		}
		pairs = append(pairs, k+"="+strings.Join(v, ""))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "\n")
}

// SignInitData computes the hash Telegram attaches to init data.
func SignInitData(values url.Values, botToken string) string {
	h := hmac.New(sha256.New, webAppSecret(botToken))
	h.Write([]byte(dataCheckString(values)))
	return hex.EncodeToString(h.Sum(nil))
}

// ValidateInitData verifies the HMAC of raw init data and decodes its user.
// maxAge 0 disables the auth_date freshness check.
func ValidateInitData(raw, botToken string, maxAge time.Duration, now time.Time) (*InitData, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInitDataMalformed, err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return nil, fmt.Errorf("%w: hash is missing", ErrInitDataMalformed)
	}
	provided, err := hex.DecodeString(hash)
	if err != nil {
		return nil, fmt.Errorf("%w: hash is not hex", ErrInitDataMalformed)
	}

	h := hmac.New(sha256.New, webAppSecret(botToken))
	h.Write([]byte(dataCheckString(values)))
	if !hmac.Equal(h.Sum(nil), provided) {
		return nil, ErrInitDataSignature
	}

	data := &InitData{Values: values}
	if authDate := values.Get("auth_date"); authDate != "" {
		ts, err := strconv.ParseInt(authDate, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: auth_date", ErrInitDataMalformed)
		}
		data.AuthDate = time.Unix(ts, 0)
	}

	if maxAge > 0 {
		if data.AuthDate.IsZero() {
			return nil, fmt.Errorf("%w: auth_date is missing", ErrInitDataMalformed)
		}
		if now.Sub(data.AuthDate) > maxAge || data.AuthDate.Sub(now) > initDataClockSkew {
			return nil, ErrInitDataExpired
		}
	}

	rawUser := values.Get("user")
	if rawUser == "" {
		return nil, fmt.Errorf("%w: user is missing", ErrInitDataMalformed)
	}
	if err := json.Unmarshal([]byte(rawUser), &data.User); err != nil {
		return nil, fmt.Errorf("%w: user: %v", ErrInitDataMalformed, err)
	}
	if data.User.ID == 0 {
		return nil, fmt.Errorf("%w: user id is missing", ErrInitDataMalformed)
	}

	return data, nil
}
