// Package tokens provides the cryptographic primitives for the authentication
// core: session token and PKCE verifier generation, S256 challenge derivation,
// and HMAC signing of state payloads carried across OIDC redirects.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"

	"github.com/pkg/errors"
)

const (
	// urlSafeAlphabet is the fixed 64-character alphabet used for PKCE
	// verifiers and state/nonce values. 64 characters means each output
	// character carries exactly 6 bits of CSPRNG entropy.
	urlSafeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

	// VerifierLength is the fixed length of PKCE code verifiers and
	// state/nonce values: 64 characters = 384 bits of entropy.
	VerifierLength = 64

	// sessionTokenBytes gives session tokens 256 bits of entropy.
	sessionTokenBytes = 32
)

// NewSessionToken returns an opaque high-entropy bearer credential for a
// session. The token carries 256 bits of CSPRNG entropy, base64url-encoded
// without padding.
func NewSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "[NewSessionToken] rand.Read")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewCodeVerifier returns a 64-character PKCE code verifier drawn from the
// fixed URL-safe alphabet. The fixed length is required by downstream S256
// challenge derivation.
func NewCodeVerifier() (string, error) {
	v, err := randomFromAlphabet(VerifierLength)
	if err != nil {
		return "", errors.Wrap(err, "[NewCodeVerifier]")
	}
	return v, nil
}

// NewStateNonce returns two independently generated 64-character random
// strings. Each authorization attempt gets a fresh pair.
func NewStateNonce() (state, nonce string, err error) {
	if state, err = randomFromAlphabet(VerifierLength); err != nil {
		return "", "", errors.Wrap(err, "[NewStateNonce] state")
	}
	if nonce, err = randomFromAlphabet(VerifierLength); err != nil {
		return "", "", errors.Wrap(err, "[NewStateNonce] nonce")
	}
	return state, nonce, nil
}

// CodeChallenge derives the PKCE "S256" challenge from a verifier: the
// SHA-256 digest of the verifier, base64url-encoded without padding.
// Deterministic function of its input.
func CodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// randomFromAlphabet maps CSPRNG bytes onto the 64-character alphabet.
// 64 divides 256, so masking the low six bits keeps the output uniform.
func randomFromAlphabet(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "rand.Read")
	}
	out := make([]byte, n)
	for i, c := range b {
		out[i] = urlSafeAlphabet[c&63]
	}
	return string(out), nil
}
