package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrExpired            = errors.New("sign-in payload expired")
)

type TelegramUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// Verifier checks Telegram sign-in payloads signed with the bot token.
type Verifier struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

func NewVerifier(botToken string, maxAge time.Duration) *Verifier {
	return &Verifier{secret: SecretFor(botToken), maxAge: maxAge, now: time.Now}
}

// Verify validates the hash of a URL-encoded payload and returns the signed-in user.
// The hash is HMAC-SHA256 over the sorted key=value lines, keyed by SHA256(bot token).
func (v *Verifier) Verify(initData string) (TelegramUser, error) {
	initData = strings.TrimSpace(initData)
	if initData == "" {
		return TelegramUser{}, ErrInvalidInput
	}

	values, err := url.ParseQuery(initData)
	if err != nil {
		return TelegramUser{}, ErrInvalidInput
	}

	got := values.Get("hash")
	if got == "" {
		return TelegramUser{}, ErrInvalidCredentials
	}
	want := Sign(v.secret, values)
	if !hmac.Equal([]byte(strings.ToLower(got)), []byte(want)) {
		return TelegramUser{}, ErrInvalidCredentials
	}

	if v.maxAge > 0 {
		if raw := values.Get("auth_date"); raw != "" {
			sec, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return TelegramUser{}, ErrInvalidInput
			}
			if v.now().Sub(time.Unix(sec, 0)) > v.maxAge {
				return TelegramUser{}, ErrExpired
			}
		}
	}

	var u TelegramUser
	raw := values.Get("user")
	if raw == "" {
		return TelegramUser{}, ErrInvalidInput
	}
	if err := json.Unmarshal([]byte(raw), &u); err != nil || u.ID == 0 {
		return TelegramUser{}, ErrInvalidInput
	}
	return u, nil
}

// Sign computes the hex hash for values, ignoring any "hash" entry.
func Sign(secret []byte, values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}

// SecretFor derives the signing key used by Sign from a bot token.
func SecretFor(botToken string) []byte {
	sum := sha256.Sum256([]byte(strings.TrimSpace(botToken)))
	return sum[:]
}
