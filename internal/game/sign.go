package game

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// LaunchSignature signs a direct or aggregator launch request with the
// provider's secret. The signed string is token|gameCode|currency|playerId.
func LaunchSignature(secret, token, gameCode, currency, playerID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join([]string{token, gameCode, currency, playerID}, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

// CallbackSignature signs the raw callback body with the partner's shared
// secret.
func CallbackSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyCallbackSignature compares the presented signature against the
// expected one in constant time.
func VerifyCallbackSignature(secret string, body []byte, presented string) bool {
	expected := CallbackSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(presented)))
}
