// Package binance implements the signed REST protocol client used to talk to
// a Binance-compatible exchange.
package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Signer builds canonical signed query strings for authenticated endpoints.
// Parameters are sorted lexicographically by key before signing so the same
// logical request always produces the same signature input.
type Signer struct {
	secret []byte
}

// NewSigner returns a Signer keyed with the account API secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// CanonicalQuery encodes params in sorted key order. Binance signs the
// encoded form, so encoding must happen before the HMAC is computed.
func CanonicalQuery(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}

// Sign returns the lowercase hex HMAC-SHA256 of payload.
func (s *Signer) Sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignedQuery produces the full query string for a signed request: the sorted
// caller params, then recvWindow (when positive) and timestamp, then the
// signature over everything that precedes it.
func (s *Signer) SignedQuery(params map[string]string, timestampMillis int64, recvWindowMillis int64) string {
	var b strings.Builder
	if q := CanonicalQuery(params); q != "" {
		b.WriteString(q)
		b.WriteByte('&')
	}
	if recvWindowMillis > 0 {
		b.WriteString("recvWindow=")
		b.WriteString(strconv.FormatInt(recvWindowMillis, 10))
		b.WriteByte('&')
	}
	b.WriteString("timestamp=")
	b.WriteString(strconv.FormatInt(timestampMillis, 10))

	payload := b.String()
	return payload + "&signature=" + s.Sign(payload)
}

// RedactSignature replaces the signature value in a query string so request
// logs never leak signing material.
func RedactSignature(query string) string {
	idx := strings.Index(query, "signature=")
	if idx < 0 {
		return query
	}
	end := strings.IndexByte(query[idx:], '&')
	if end < 0 {
		return query[:idx] + "signature=REDACTED"
	}
	return query[:idx] + "signature=REDACTED" + query[idx+end:]
}
