package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// webAppDataKey is the constant Telegram mixes with the bot token to derive
// the init-data signing key.
const webAppDataKey = "WebAppData"

var (
	ErrInitDataMissingHash = errors.New("init data has no hash")
	ErrInitDataSignature   = errors.New("init data signature mismatch")
	ErrInitDataExpired     = errors.New("init data is too old")
)

// InitData holds the fields of a verified init-data string that the service
// cares about.
type InitData struct {
	QueryID  string
	AuthDate time.Time
	UserID   int64
	Username string
}

// ValidateInitData reports whether initData carries a valid signature made
// with botToken. Malformed input yields false.
func ValidateInitData(initData, botToken string) bool {
	values, hash, err := splitInitData(initData)
	if err != nil {
		return false
	}
	expected := signInitData(values, botToken)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(hash)) == 1
}

// SignInitData returns the hex signature for the given fields. The hash key
// is ignored if present.
func SignInitData(values url.Values, botToken string) string {
	clean := url.Values{}
	for k, v := range values {
		if k != "hash" {
			clean[k] = v
		}
	}
	return signInitData(clean, botToken)
}

func splitInitData(initData string) (url.Values, string, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, "", err
	}
	hash := values.Get("hash")
	if hash == "" {
		return nil, "", ErrInitDataMissingHash
	}
	values.Del("hash")
	return values, hash, nil
}

func signInitData(values url.Values, botToken string) string {
	secret := hmac.New(sha256.New, []byte(webAppDataKey))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(dataCheckString(values)))
	return hex.EncodeToString(mac.Sum(nil))
}

// dataCheckString is the sorted, newline-joined key=value list that gets
// signed.
func dataCheckString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		for _, v := range values[k] {
			lines = append(lines, k+"="+v)
		}
	}
	return strings.Join(lines, "\n")
}

// InitDataVerifier checks signatures and, when MaxAge is set, freshness.
type InitDataVerifier struct {
	BotToken string
	MaxAge   time.Duration
	Now      func() time.Time
}

func NewInitDataVerifier(botToken string, maxAge time.Duration) *InitDataVerifier {
	return &InitDataVerifier{BotToken: botToken, MaxAge: maxAge, Now: time.Now}
}

// Verify validates the signature and returns the parsed fields.
func (v *InitDataVerifier) Verify(initData string) (*InitData, error) {
	values, hash, err := splitInitData(initData)
	if err != nil {
		return nil, err
	}
	expected := signInitData(values, v.BotToken)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(hash)) != 1 {
		return nil, ErrInitDataSignature
	}

	parsed := ParseInitData(initData)
	if v.MaxAge > 0 {
		now := time.Now
		if v.Now != nil {
			now = v.Now
		}
		if parsed.AuthDate.IsZero() || now().Sub(parsed.AuthDate) > v.MaxAge {
			return nil, ErrInitDataExpired
		}
	}
	return parsed, nil
}

// ParseInitData extracts known fields without checking the signature.
// Unknown or malformed fields are left zero.
func ParseInitData(initData string) *InitData {
	out := &InitData{}
	values, err := url.ParseQuery(initData)
	if err != nil {
		return out
	}

	out.QueryID = values.Get("query_id")
	if ts, err := strconv.ParseInt(values.Get("auth_date"), 10, 64); err == nil {
		out.AuthDate = time.Unix(ts, 0)
	}

	if raw := values.Get("user"); raw != "" {
		var user struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		}
		if json.Unmarshal([]byte(raw), &user) == nil {
			out.UserID = user.ID
			out.Username = user.Username
		}
	}
	return out
}
