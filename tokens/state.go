package tokens

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	apperrors "github.com/authkit-go/authkit/internal/errors"
)

// StatePayload is the transient state carried in a client-held signed cookie
// across the redirect to the identity provider and back. Lifetime: one
// authorization attempt.
type StatePayload struct {
	State      string `json:"state"`
	Nonce      string `json:"nonce"`
	RedirectTo string `json:"redirectTo,omitempty"`
	ProviderID string `json:"providerId"`
}

// SignState serializes the payload deterministically, computes HMAC-SHA256
// over the serialized bytes with secret, and returns
// base64url(payload) + "." + base64url(signature).
func SignState(payload StatePayload, secret []byte) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "[SignState] marshal payload")
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	sig := mac.Sum(nil)

	return base64.RawURLEncoding.EncodeToString(data) + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// VerifyState splits the token, recomputes the HMAC over the decoded payload
// bytes, and compares against the decoded signature in constant time. The
// payload is deserialized only after the signature succeeds; it fails closed
// with ErrInvalidSignature on any format, length, or signature mismatch.
func VerifyState(token string, secret []byte) (StatePayload, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return StatePayload{}, errors.Wrap(apperrors.ErrInvalidSignature, "[VerifyState] malformed token")
	}

	data, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return StatePayload{}, errors.Wrap(apperrors.ErrInvalidSignature, "[VerifyState] payload decode")
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return StatePayload{}, errors.Wrap(apperrors.ErrInvalidSignature, "[VerifyState] signature decode")
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	expected := mac.Sum(nil)

	if len(sig) != len(expected) || !hmac.Equal(sig, expected) {
		return StatePayload{}, errors.Wrap(apperrors.ErrInvalidSignature, "[VerifyState] signature mismatch")
	}

	var payload StatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return StatePayload{}, errors.Wrap(apperrors.ErrInvalidSignature, "[VerifyState] payload unmarshal")
	}

	return payload, nil
}
