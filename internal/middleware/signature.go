package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
)

// SignatureHeader carries the provider's HMAC of the raw request body.
const SignatureHeader = "X-Hub-Signature-256"

// MaxWebhookBody is the largest webhook delivery accepted. Larger bodies are
// answered with 413.
const MaxWebhookBody = 1 << 20

// VerifySignature rejects POST requests whose X-Hub-Signature-256 does not
// match the HMAC-SHA256 of the body under appSecret. The body is restored
// for the next handler. An empty appSecret disables the check.
func VerifySignature(appSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if appSecret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBody))
			r.Body.Close()
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			if err != nil {
				unauthorized(w, "unreadable body")
				return
			}
			if !ValidSignature(appSecret, body, r.Header.Get(SignatureHeader)) {
				unauthorized(w, "invalid signature")
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

// ValidSignature reports whether header is "sha256=" followed by the hex
// HMAC-SHA256 of body under secret.
func ValidSignature(secret string, body []byte, header string) bool {
	hexSig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign returns the X-Hub-Signature-256 value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
