// Package deploy handles the push webhook that redeploys the server by
// pulling the latest code.
package deploy

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strings"
)

// VerifySignature checks a hub-style signature header ("sha1=<hex>" or
// "sha256=<hex>") against the HMAC of body under secret. Unknown algorithms
// and malformed headers fail closed.
func VerifySignature(header string, body []byte, secret string) bool {
	algo, wantHex, found := strings.Cut(header, "=")
	if !found || wantHex == "" {
		return false
	}

	var newHash func() hash.Hash
	switch algo {
	case "sha1":
		newHash = sha1.New
	case "sha256":
		newHash = sha256.New
	default:
		return false
	}

	want, err := hex.DecodeString(wantHex)
	if err != nil {
		return false
	}

	mac := hmac.New(newHash, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// Sign computes the signature header value for body using the given
// algorithm. Used by tests and local tooling.
func Sign(algo string, body []byte, secret string) string {
	var newHash func() hash.Hash
	switch algo {
	case "sha1":
		newHash = sha1.New
	case "sha256":
		newHash = sha256.New
	default:
		return ""
	}

	mac := hmac.New(newHash, []byte(secret))
	mac.Write(body)
	return algo + "=" + hex.EncodeToString(mac.Sum(nil))
}
