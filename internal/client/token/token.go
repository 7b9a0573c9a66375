// Package token decodes the payload of access tokens issued by the GrabSmart
// backend.
//
// Decoding is done without signature verification. The client only uses the
// claims for control flow (who is logged in, when the session ends); the
// backend stays the authority and rejects tokens it did not issue.
package token

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload carried by an access token.
type Claims struct {
	UserID    string           `json:"userId,omitempty"`
	Subject   string           `json:"sub,omitempty"`
	Email     string           `json:"email,omitempty"`
	Username  string           `json:"username,omitempty"`
	IssuedAt  *jwt.NumericDate `json:"iat,omitempty"`
	ExpiresAt *jwt.NumericDate `json:"exp,omitempty"`
}

// ID returns the user identifier, preferring userId over the standard sub claim.
func (c *Claims) ID() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// Expired reports whether the token is no longer usable at now.
// A token without exp never expires on the client side.
func (c *Claims) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Before(c.ExpiresAt.Time)
}

// Decode extracts the claims from a three-segment token string. It returns
// (nil, false) when the segment count is wrong, the payload is not base64 or
// the payload is not a JSON object.
func Decode(raw string) (*Claims, bool) {
	parts := strings.Split(strings.TrimSpace(raw), ".")
	if len(parts) != 3 {
		return nil, false
	}

	payload, err := decodeSegment(parts[1])
	if err != nil {
		return nil, false
	}
	if !json.Valid(payload) || !bytes.HasPrefix(bytes.TrimSpace(payload), []byte("{")) {
		return nil, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, false
	}

	// Claims of an unexpected JSON type read as absent rather than
	// failing the whole token.
	return &Claims{
		UserID:    text(fields["userId"]),
		Subject:   text(fields["sub"]),
		Email:     text(fields["email"]),
		Username:  text(fields["username"]),
		IssuedAt:  numericDate(fields["iat"]),
		ExpiresAt: numericDate(fields["exp"]),
	}, true
}

// text reads a string claim. Numbers and booleans are kept in their JSON
// spelling, so a numeric user id of 42 becomes "42".
func text(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return ""
	}
	switch v := v.(type) {
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// numericDate reads seconds since the epoch, given as a JSON number or as a
// string holding one.
func numericDate(raw json.RawMessage) *jwt.NumericDate {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		raw = json.RawMessage(strings.TrimSpace(s))
	}
	var d jwt.NumericDate
	if err := d.UnmarshalJSON(raw); err != nil {
		return nil
	}
	return &d
}

// decodeSegment accepts base64url with or without padding, and tolerates the
// standard alphabet characters some encoders emit.
func decodeSegment(seg string) ([]byte, error) {
	seg = strings.NewReplacer("+", "-", "/", "_").Replace(seg)
	seg = strings.TrimRight(seg, "=")
	return base64.RawURLEncoding.DecodeString(seg)
}
