// Package cursor signs and verifies opaque pagination cursors. A cursor wraps
// an engine-defined scroll offset together with an HMAC so that clients cannot
// forge or mutate offsets.
package cursor

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
)

// ErrInvalidCursor is returned when a cursor fails to decode or its MAC does
// not verify.
var ErrInvalidCursor = errors.New("invalid cursor")

// Codec encodes and decodes signed cursors. Codecs sharing a secret produce
// byte-identical cursors for the same offset.
type Codec struct {
	secret []byte
}

// NewCodec creates a codec keyed by secret.
func NewCodec(secret string) Codec {
	return Codec{secret: []byte(secret)}
}

// NewSecret generates a random 32-byte hex secret. Used when no auth token is
// configured; cursors then do not survive a restart, which is acceptable.
func NewSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err) // crypto/rand failure is not recoverable
	}
	return hex.EncodeToString(b)
}

// payload is the canonical MAC input: exactly one field, fixed order.
type payload struct {
	Offset json.RawMessage `json:"offset"`
}

// envelope is what actually travels inside the base64 text.
type envelope struct {
	Offset json.RawMessage `json:"offset"`
	QH     string          `json:"qh"`
}

func (c Codec) mac(offset json.RawMessage) (string, error) {
	canonical, err := json.Marshal(payload{Offset: offset})
	if err != nil {
		return "", err
	}
	h := hmac.New(sha256.New, c.secret)
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Encode wraps an offset (any JSON value) into a signed URL-safe cursor.
func (c Codec) Encode(offset json.RawMessage) (string, error) {
	compact := offset
	if buf, err := compactJSON(offset); err == nil {
		compact = buf
	}

	sig, err := c.mac(compact)
	if err != nil {
		return "", err
	}
	env, err := json.Marshal(envelope{Offset: compact, QH: sig})
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(env), nil
}

// Decode verifies a cursor and returns the embedded offset. Any failure
// (bad base64, bad JSON, missing fields, MAC mismatch) yields ErrInvalidCursor.
func (c Codec) Decode(cursor string) (json.RawMessage, error) {
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrInvalidCursor
	}
	if env.Offset == nil || env.QH == "" {
		return nil, ErrInvalidCursor
	}

	compact := env.Offset
	if buf, err := compactJSON(env.Offset); err == nil {
		compact = buf
	}

	expected, err := c.mac(compact)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	if !hmac.Equal([]byte(env.QH), []byte(expected)) {
		return nil, ErrInvalidCursor
	}
	return compact, nil
}

// compactJSON normalises whitespace so the MAC input is stable regardless of
// how the offset was originally serialised.
func compactJSON(raw json.RawMessage) (json.RawMessage, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
