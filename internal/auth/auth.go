// Package auth validates webhook requests against a topic's configured
// secret: either a shared token presented verbatim, or an HMAC-SHA256
// signature over the request title and content.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/yige233/mirai-webhook/internal/config"
	"github.com/yige233/mirai-webhook/internal/response"
)

// Credentials carries whatever the caller presented; unused fields are empty.
type Credentials struct {
	Token string
	Sig   string
}

// Signature computes the lowercase hex HMAC-SHA256 of
// "title=<title>&content=<content>" keyed by sigKey.
func Signature(title, content, sigKey string) string {
	mac := hmac.New(sha256.New, []byte(sigKey))
	mac.Write([]byte("title=" + title + "&content=" + content))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the credentials against the topic's secure config. Both
// comparisons are constant-time to avoid a timing side channel. An unknown
// method fails closed.
func Verify(secure config.Secure, creds Credentials, title, content string) error {
	switch secure.Method {
	case config.SecureToken:
		if !equal(creds.Token, secure.Secret) {
			return response.Forbidden("invalid token")
		}
		return nil
	case config.SecureSigKey:
		if !equal(creds.Sig, Signature(title, content, secure.Secret)) {
			return response.Forbidden("invalid signature")
		}
		return nil
	default:
		return response.Forbidden("unsupported authentication method: " + secure.Method)
	}
}

func equal(provided, expected string) bool {
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}
