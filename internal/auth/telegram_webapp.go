package auth

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultInitDataTTL — максимальный возраст auth_date, если не задан явно.
	DefaultInitDataTTL = 24 * time.Hour
)

// Публичные Ed25519 ключи Telegram для third-party проверки.
// https://core.telegram.org/bots/webapps#validating-data-for-third-party-use
const (
	telegramPublicKeyProd = "e7bf03a2fa4602af4580703d88dda5bb59f32ed8b02a56c187fe7d34caed242d"
	telegramPublicKeyTest = "40055058a4ee38156a06562e52eece92a771bcd8346a8c4615cb7376eddf72ec"
)

type Mode string

const (
	ModeHMAC       Mode = "hmac"
	ModeThirdParty Mode = "third_party"
)

type Env string

const (
	EnvProd Env = "prod"
	EnvTest Env = "test"
)

// ParseEnv maps "prod"/"production" to EnvProd, anything else to EnvTest.
func ParseEnv(s string) Env {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prod", "production":
		return EnvProd
	default:
		return EnvTest
	}
}

// TelegramPublicKey returns the Ed25519 key Telegram signs initData with.
func TelegramPublicKey(env Env) ed25519.PublicKey {
	hexKey := telegramPublicKeyTest
	if env == EnvProd {
		hexKey = telegramPublicKeyProd
	}
	key, _ := hex.DecodeString(hexKey)
	return ed25519.PublicKey(key)
}

type ErrorKind string

const (
	KindMissingField     ErrorKind = "missing_field"
	KindMalformed        ErrorKind = "malformed_payload"
	KindInvalidSignature ErrorKind = "invalid_signature"
	KindStale            ErrorKind = "stale"
	KindUnsupportedMode  ErrorKind = "unsupported_mode"
)

// VerifyError classifies why initData was rejected.
type VerifyError struct {
	Kind ErrorKind
	Msg  string
}

func (e *VerifyError) Error() string {
	return string(e.Kind) + ": " + e.Msg
}

func verifyErr(kind ErrorKind, format string, args ...any) *VerifyError {
	return &VerifyError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

type VerifiedIdentity struct {
	// TelegramUserID is zero when initData carries no decodable user.
	TelegramUserID int64
	Fields         map[string]string
	AuthDate       time.Time
}

type TelegramUser struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Username     string `json:"username"`
	LanguageCode string `json:"language_code"`
	IsPremium    bool   `json:"is_premium"`
	PhotoURL     string `json:"photo_url"`
}

type Options struct {
	BotToken string
	BotID    int64
	Env      Env
	// MaxAge <= 0 означает DefaultInitDataTTL
	MaxAge time.Duration
	Now    time.Time
	// PublicKey overrides the Telegram key for Env.
	PublicKey ed25519.PublicKey
}

func (o Options) now() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

func (o Options) maxAge() time.Duration {
	if o.MaxAge <= 0 {
		return DefaultInitDataTTL
	}
	return o.MaxAge
}

// Verify checks initData with the requested scheme.
// https://core.telegram.org/bots/webapps#validating-data-received-via-the-mini-app
func Verify(mode Mode, initData string, opts Options) (*VerifiedIdentity, error) {
	var (
		fields map[string]string
		err    error
	)
	switch mode {
	case ModeHMAC:
		fields, err = verifyHMAC(initData, opts.BotToken)
	case ModeThirdParty:
		key := opts.PublicKey
		if key == nil {
			key = TelegramPublicKey(opts.Env)
		}
		fields, err = verifyThirdParty(initData, opts.BotID, key)
	default:
		return nil, verifyErr(KindUnsupportedMode, "unsupported mode %q, use 'hmac' or 'third_party'", mode)
	}
	if err != nil {
		return nil, err
	}

	authDate, err := checkFreshness(fields, opts.now(), opts.maxAge())
	if err != nil {
		return nil, err
	}

	identity := &VerifiedIdentity{Fields: fields, AuthDate: authDate}
	if u, err := ExtractUser(fields); err == nil {
		identity.TelegramUserID = u.ID
	}
	return identity, nil
}

// ParseInitData разбирает query string. Пустые значения сохраняются,
// при повторе ключа побеждает последнее вхождение.
func ParseInitData(initData string) (map[string]string, error) {
	vals, err := url.ParseQuery(initData)
	if err != nil {
		return nil, verifyErr(KindMalformed, "invalid initData format: %v", err)
	}
	fields := make(map[string]string, len(vals))
	for k, v := range vals {
		if len(v) > 0 {
			fields[k] = v[len(v)-1]
		}
	}
	return fields, nil
}

// dataCheckString — отсортированные по ключу пары key=value через \n.
func dataCheckString(fields map[string]string, exclude ...string) string {
	keys := make([]string, 0, len(fields))
outer:
	for k := range fields {
		for _, e := range exclude {
			if k == e {
				continue outer
			}
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + "=" + fields[k]
	}
	return strings.Join(lines, "\n")
}

func verifyHMAC(initData, botToken string) (map[string]string, error) {
	fields, err := ParseInitData(initData)
	if err != nil {
		return nil, err
	}

	receivedHash := fields["hash"]
	if receivedHash == "" {
		return nil, verifyErr(KindMissingField, "hash is missing from initData")
	}

	// secret_key = HMAC-SHA256("WebAppData", bot_token)
	secretKey := hmacSHA256([]byte("WebAppData"), []byte(botToken))
	calculated := hex.EncodeToString(hmacSHA256(secretKey, []byte(dataCheckString(fields, "hash"))))

	if !hmac.Equal([]byte(calculated), []byte(receivedHash)) {
		return nil, verifyErr(KindInvalidSignature, "invalid hash: data integrity check failed")
	}
	return fields, nil
}

func verifyThirdParty(initData string, botID int64, publicKey ed25519.PublicKey) (map[string]string, error) {
	fields, err := ParseInitData(initData)
	if err != nil {
		return nil, err
	}

	sigB64 := fields["signature"]
	if sigB64 == "" {
		return nil, verifyErr(KindMissingField, "signature is missing from initData")
	}
	signature, err := decodeBase64URL(sigB64)
	if err != nil {
		return nil, verifyErr(KindMalformed, "invalid base64url signature")
	}
	if len(signature) != ed25519.SignatureSize {
		return nil, verifyErr(KindMalformed, "signature must be %d bytes, got %d", ed25519.SignatureSize, len(signature))
	}

	dcs := strconv.FormatInt(botID, 10) + ":WebAppData\n" + dataCheckString(fields, "hash", "signature")
	if !ed25519.Verify(publicKey, []byte(dcs), signature) {
		return nil, verifyErr(KindInvalidSignature, "invalid Ed25519 signature")
	}
	return fields, nil
}

func checkFreshness(fields map[string]string, now time.Time, maxAge time.Duration) (time.Time, error) {
	raw, ok := fields["auth_date"]
	if !ok || raw == "" {
		return time.Time{}, verifyErr(KindMissingField, "auth_date is missing from initData")
	}
	authDateUnix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, verifyErr(KindMissingField, "auth_date is not a valid unix timestamp")
	}
	if authDateUnix <= 0 {
		return time.Time{}, verifyErr(KindStale, "auth_date must be positive")
	}

	authDate := time.Unix(authDateUnix, 0)
	if age := now.Sub(authDate); age > maxAge {
		return time.Time{}, verifyErr(KindStale, "initData expired: auth_date is %s old (max %s)", age.Round(time.Second), maxAge)
	}
	return authDate, nil
}

// ExtractUser decodes the JSON "user" field of verified initData.
func ExtractUser(fields map[string]string) (*TelegramUser, error) {
	raw, ok := fields["user"]
	if !ok || raw == "" {
		return nil, verifyErr(KindMissingField, "user data missing from initData")
	}
	var u TelegramUser
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, verifyErr(KindMalformed, "invalid user data: %v", err)
	}
	if u.ID == 0 {
		return nil, verifyErr(KindMalformed, "user id is missing")
	}
	return &u, nil
}

// decodeBase64URL принимает base64url без паддинга.
func decodeBase64URL(s string) ([]byte, error) {
	if pad := len(s) % 4; pad != 0 {
		s += strings.Repeat("=", 4-pad)
	}
	return base64.URLEncoding.DecodeString(s)
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
