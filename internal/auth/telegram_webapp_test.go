package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"
)

// helper: собирает initData с валидным hash и заданным auth_date
func buildInitData(botToken string, authDate time.Time, extra map[string]string) string {
	params := url.Values{}
	params.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	for k, v := range extra {
		params.Set(k, v)
	}

	secretKey := hmacSHA256([]byte("WebAppData"), []byte(botToken))
	hash := hmacSHA256(secretKey, []byte(checkString(params, "hash")))
	params.Set("hash", hex.EncodeToString(hash))

	return params.Encode()
}

// helper: собирает initData, подписанную Ed25519 как это делает Telegram
func buildSignedInitData(priv ed25519.PrivateKey, botID int64, authDate time.Time, extra map[string]string) string {
	params := url.Values{}
	params.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	params.Set("hash", "ignored-by-third-party-check")
	for k, v := range extra {
		params.Set(k, v)
	}

	dcs := strconv.FormatInt(botID, 10) + ":WebAppData\n" + checkString(params, "hash", "signature")
	sig := ed25519.Sign(priv, []byte(dcs))
	params.Set("signature", base64.RawURLEncoding.EncodeToString(sig))

	return params.Encode()
}

func checkString(params url.Values, exclude ...string) string {
	var keys []string
	for k := range params {
		skip := false
		for _, e := range exclude {
			if k == e {
				skip = true
			}
		}
		if !skip {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + "=" + params.Get(k)
	}
	return strings.Join(lines, "\n")
}

func assertKind(t *testing.T, err error, want ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	var verr *VerifyError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *VerifyError, got %T: %v", err, err)
	}
	if verr.Kind != want {
		t.Fatalf("expected kind %s, got %s (%v)", want, verr.Kind, err)
	}
}

const testBotToken = "123456:test-bot-token"

func TestVerifyHMAC_ValidHashReturnsAllFields(t *testing.T) {
	initData := buildInitData(testBotToken, time.Now().Add(-30*time.Second), map[string]string{
		"query_id": "test_query_id",
		"user":     `{"id":123456,"first_name":"Test","username":"testuser"}`,
	})

	identity, err := Verify(ModeHMAC, initData, Options{BotToken: testBotToken, MaxAge: 5 * time.Minute})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if identity.Fields["query_id"] != "test_query_id" {
		t.Errorf("expected query_id=test_query_id, got %s", identity.Fields["query_id"])
	}
	if identity.Fields["hash"] == "" {
		t.Error("expected hash to be kept in returned fields")
	}
	if identity.TelegramUserID != 123456 {
		t.Errorf("expected telegram user id 123456, got %d", identity.TelegramUserID)
	}
}

func TestVerifyHMAC_TamperedValue(t *testing.T) {
	initData := buildInitData(testBotToken, time.Now(), map[string]string{
		"user": `{"id":123456,"username":"alice"}`,
	})
	tampered := strings.Replace(initData, "alice", "mallet", 1)

	_, err := Verify(ModeHMAC, tampered, Options{BotToken: testBotToken})
	assertKind(t, err, KindInvalidSignature)
}

func TestVerifyHMAC_WrongBotToken(t *testing.T) {
	initData := buildInitData(testBotToken, time.Now(), nil)

	_, err := Verify(ModeHMAC, initData, Options{BotToken: "another-token"})
	assertKind(t, err, KindInvalidSignature)
}

func TestVerifyHMAC_MissingHash(t *testing.T) {
	_, err := Verify(ModeHMAC, "auth_date=1700000000&user=%7B%7D", Options{BotToken: testBotToken})
	assertKind(t, err, KindMissingField)
}

func TestVerifyHMAC_EmptyInput(t *testing.T) {
	_, err := Verify(ModeHMAC, "", Options{BotToken: testBotToken})
	assertKind(t, err, KindMissingField)
}

func TestVerifyHMAC_StaleAuthDate(t *testing.T) {
	initData := buildInitData(testBotToken, time.Now().Add(-10*time.Minute), nil)

	_, err := Verify(ModeHMAC, initData, Options{BotToken: testBotToken, MaxAge: 5 * time.Minute})
	assertKind(t, err, KindStale)
}

func TestVerifyHMAC_AuthDateAtBoundary(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	initData := buildInitData(testBotToken, now.Add(-5*time.Minute), nil)

	if _, err := Verify(ModeHMAC, initData, Options{BotToken: testBotToken, MaxAge: 5 * time.Minute, Now: now}); err != nil {
		t.Fatalf("auth_date exactly max_age old should pass, got: %v", err)
	}
}

func TestVerifyHMAC_ZeroAuthDateIsStale(t *testing.T) {
	initData := buildInitData(testBotToken, time.Unix(0, 0), nil)

	_, err := Verify(ModeHMAC, initData, Options{BotToken: testBotToken})
	assertKind(t, err, KindStale)
}

func TestVerifyHMAC_MissingAuthDate(t *testing.T) {
	params := url.Values{}
	params.Set("query_id", "q")
	secretKey := hmacSHA256([]byte("WebAppData"), []byte(testBotToken))
	params.Set("hash", hex.EncodeToString(hmacSHA256(secretKey, []byte(checkString(params, "hash")))))

	_, err := Verify(ModeHMAC, params.Encode(), Options{BotToken: testBotToken})
	assertKind(t, err, KindMissingField)
}

func TestVerifyHMAC_NonNumericAuthDate(t *testing.T) {
	params := url.Values{}
	params.Set("auth_date", "yesterday")
	secretKey := hmacSHA256([]byte("WebAppData"), []byte(testBotToken))
	params.Set("hash", hex.EncodeToString(hmacSHA256(secretKey, []byte(checkString(params, "hash")))))

	_, err := Verify(ModeHMAC, params.Encode(), Options{BotToken: testBotToken})
	assertKind(t, err, KindMissingField)
}

func TestVerifyHMAC_BlankValuesAreSigned(t *testing.T) {
	initData := buildInitData(testBotToken, time.Now(), map[string]string{
		"start_param": "",
	})

	identity, err := Verify(ModeHMAC, initData, Options{BotToken: testBotToken})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if v, ok := identity.Fields["start_param"]; !ok || v != "" {
		t.Errorf("expected blank start_param to be kept, got %q (present=%v)", v, ok)
	}
}

func TestParseInitData_LastOccurrenceWins(t *testing.T) {
	fields, err := ParseInitData("a=1&b=&a=2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fields["a"] != "2" {
		t.Errorf("expected a=2, got %q", fields["a"])
	}
	if v, ok := fields["b"]; !ok || v != "" {
		t.Errorf("expected blank b, got %q", v)
	}
}

func TestParseInitData_Malformed(t *testing.T) {
	_, err := ParseInitData("a=%zz")
	assertKind(t, err, KindMalformed)
}

func TestVerifyThirdParty_RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	initData := buildSignedInitData(priv, 7342037, time.Now(), map[string]string{
		"user": `{"id":42,"first_name":"Rabbit"}`,
	})

	identity, err := Verify(ModeThirdParty, initData, Options{BotID: 7342037, PublicKey: pub})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if identity.TelegramUserID != 42 {
		t.Errorf("expected telegram user id 42, got %d", identity.TelegramUserID)
	}
	if identity.Fields["signature"] == "" {
		t.Error("expected signature to be kept in returned fields")
	}
}

func TestVerifyThirdParty_PaddedSignatureAccepted(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	initData := buildSignedInitData(priv, 1, time.Now(), nil)
	vals, _ := url.ParseQuery(initData)
	vals.Set("signature", vals.Get("signature")+"==")

	if _, err := Verify(ModeThirdParty, vals.Encode(), Options{BotID: 1, PublicKey: pub}); err != nil {
		t.Fatalf("padded signature should verify, got: %v", err)
	}
}

func TestVerifyThirdParty_WrongBotID(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	initData := buildSignedInitData(priv, 1, time.Now(), nil)

	_, err := Verify(ModeThirdParty, initData, Options{BotID: 2, PublicKey: pub})
	assertKind(t, err, KindInvalidSignature)
}

func TestVerifyThirdParty_WrongKey(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(nil)
	initData := buildSignedInitData(priv, 1, time.Now(), nil)

	// ключ Telegram (prod) не подписывал эти данные
	_, err := Verify(ModeThirdParty, initData, Options{BotID: 1, Env: EnvProd})
	assertKind(t, err, KindInvalidSignature)
}

func TestVerifyThirdParty_MissingSignature(t *testing.T) {
	initData := buildInitData(testBotToken, time.Now(), nil)

	_, err := Verify(ModeThirdParty, initData, Options{BotID: 1})
	assertKind(t, err, KindMissingField)
}

func TestVerifyThirdParty_BadSignatureEncoding(t *testing.T) {
	_, err := Verify(ModeThirdParty, "auth_date=1&signature=%21%21%21", Options{BotID: 1})
	assertKind(t, err, KindMalformed)
}

func TestVerifyThirdParty_Stale(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	initData := buildSignedInitData(priv, 1, time.Now().Add(-2*time.Hour), nil)

	_, err := Verify(ModeThirdParty, initData, Options{BotID: 1, PublicKey: pub, MaxAge: time.Hour})
	assertKind(t, err, KindStale)
}

func TestVerify_UnsupportedMode(t *testing.T) {
	_, err := Verify(Mode("rsa"), "auth_date=1&hash=x", Options{})
	assertKind(t, err, KindUnsupportedMode)
}

func TestParseEnv(t *testing.T) {
	cases := map[string]Env{
		"prod":       EnvProd,
		"production": EnvProd,
		"PROD":       EnvProd,
		"test":       EnvTest,
		"staging":    EnvTest,
		"":           EnvTest,
	}
	for in, want := range cases {
		if got := ParseEnv(in); got != want {
			t.Errorf("ParseEnv(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestTelegramPublicKeys(t *testing.T) {
	if len(TelegramPublicKey(EnvProd)) != ed25519.PublicKeySize {
		t.Error("prod key has wrong size")
	}
	if len(TelegramPublicKey(EnvTest)) != ed25519.PublicKeySize {
		t.Error("test key has wrong size")
	}
}

func TestExtractUser(t *testing.T) {
	u, err := ExtractUser(map[string]string{"user": `{"id":99,"username":"bunny"}`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID != 99 || u.Username != "bunny" {
		t.Errorf("unexpected user: %+v", u)
	}

	_, err = ExtractUser(map[string]string{})
	assertKind(t, err, KindMissingField)

	_, err = ExtractUser(map[string]string{"user": "{not json"})
	assertKind(t, err, KindMalformed)

	_, err = ExtractUser(map[string]string{"user": `{"first_name":"NoID"}`})
	assertKind(t, err, KindMalformed)
}
