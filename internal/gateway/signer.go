// Package gateway speaks the VNPay-style signed redirect protocol: outbound
// payment URLs, inbound return/IPN callbacks and the merchant refund API.
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
	paramSecureHash     = "vnp_SecureHash"
	paramSecureHashType = "vnp_SecureHashType"
	paramPrefix         = "vnp_"
)

// Signer computes HMAC-SHA512 signatures with the merchant hash secret.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) Signer {
	return Signer{secret: []byte(secret)}
}

// Sum returns the lowercase hex HMAC of data.
func (s Signer) Sum(data string) string {
	mac := hmac.New(sha512.New, s.secret)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// EncodeParams renders params sorted by key with query-escaped values. The
// same string is both the signed data and the outbound query.
func EncodeParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(params[k]))
	}
	return strings.Join(parts, "&")
}

// Verify checks the signature carried in a raw callback query. Values are
// hashed exactly as received, without decoding.
func (s Signer) Verify(rawQuery string) bool {
	if len(s.secret) == 0 {
		return false
	}
	type pair struct{ key, raw string }
	var (
		pairs    []pair
		received string
	)
	for _, segment := range strings.Split(strings.TrimPrefix(rawQuery, "?"), "&") {
		if segment == "" {
			continue
		}
		key, value, _ := strings.Cut(segment, "=")
		switch {
		case key == paramSecureHash:
			received = value
		case key == paramSecureHashType:
		case strings.HasPrefix(key, paramPrefix) && value != "":
			pairs = append(pairs, pair{key: key, raw: value})
		}
	}
	if received == "" || len(pairs) == 0 {
		return false
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.key+"="+p.raw)
	}
	expected := s.Sum(strings.Join(parts, "&"))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(received)))
}
