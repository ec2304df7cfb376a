/**
 * @description
 * Canonicalization and HMAC-SHA512 signing for the external payment gateway.
 * The gateway verifies redirect URLs and signs callbacks over the exact same
 * byte string, so the canonical form here must be reproduced bit-for-bit:
 * drop empty values, percent-encode values only (field names stay raw), sort
 * field names in byte order, join "name=value" pairs with "&", HMAC-SHA512,
 * lower-case hex. Any deviation silently breaks every payment confirmation.
 */

package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

const (
	// FieldSecureHash and FieldSecureHashType are excluded from the signed
	// payload when verifying a callback.
	FieldSecureHash     = "vnp_SecureHash"
	FieldSecureHashType = "vnp_SecureHashType"
)

// canonicalize builds the byte string the gateway signs: name-sorted,
// value-only percent encoding, "&"-joined.
func canonicalize(fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for name, value := range fields {
		if value == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+url.QueryEscape(fields[name]))
	}
	return strings.Join(pairs, "&")
}

// Sign computes the lower-case hex HMAC-SHA512 signature over the canonical
// form of fields. Field values must be raw (unencoded); encoding happens here.
func Sign(fields map[string]string, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(canonicalize(fields)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify strips the hash fields from the callback parameters, recomputes the
// signature and compares it to the received hex digest case-insensitively.
func Verify(fields map[string]string, receivedHashHex, secret string) bool {
	if receivedHashHex == "" {
		return false
	}

	stripped := make(map[string]string, len(fields))
	for name, value := range fields {
		if name == FieldSecureHash || name == FieldSecureHashType {
			continue
		}
		stripped[name] = value
	}

	expected := Sign(stripped, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(receivedHashHex)))
}
