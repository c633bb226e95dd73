package notify

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

const (
	SignatureHeader = "X-Chunkscribe-Signature-256"
	TimestampHeader = "X-Chunkscribe-Timestamp"
)

// Sign returns "sha256=<hex>" over "<unix seconds>.<payload>". Binding the
// delivery time lets receivers reject replayed callbacks.
func Sign(secret string, ts time.Time, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10)))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature against the timestamp header value it was
// delivered with.
func Verify(secret, timestamp string, payload []byte, signature string) bool {
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	expected := Sign(secret, time.Unix(unix, 0), payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// GenerateSecret returns 32 random bytes, hex encoded.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
