package mqttsn

import (
	"crypto/hmac"
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

// securityKeyIterations is the PBKDF2 iteration count for deriving the
// integrity key from the pre-shared secret.
const securityKeyIterations = 4096

// securityDigestLen is the length of the HMAC-SHA256 prefix.
const securityDigestLen = sha256.Size

// SecurityService provides optional payload integrity protection.
// When enabled, outbound publish payloads are prefixed with an
// HMAC-SHA256 digest keyed by a PBKDF2-derived secret; inbound payloads
// are verified and stripped. Verification failures drop the message.
type SecurityService struct {
	key []byte
}

// NewSecurityService derives the integrity key from a pre-shared
// secret. A nil or empty secret disables integrity protection.
func NewSecurityService(secret, salt []byte) *SecurityService {
	s := &SecurityService{}
	if len(secret) > 0 {
		s.key = pbkdf2.Key(secret, salt, securityKeyIterations, sha256.Size, sha256.New)
	}
	return s
}

// PayloadIntegrityEnabled reports whether integrity protection is on.
func (s *SecurityService) PayloadIntegrityEnabled() bool {
	return s != nil && len(s.key) > 0
}

// WriteVerified wraps an outbound payload with its integrity digest.
func (s *SecurityService) WriteVerified(p *Peer, payload []byte) []byte {
	if !s.PayloadIntegrityEnabled() {
		return payload
	}

	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(p.ClientID))
	mac.Write(payload)

	out := make([]byte, 0, securityDigestLen+len(payload))
	out = mac.Sum(out)
	return append(out, payload...)
}

// ReadVerified verifies and strips the integrity digest from an
// inbound payload.
func (s *SecurityService) ReadVerified(p *Peer, payload []byte) ([]byte, error) {
	if !s.PayloadIntegrityEnabled() {
		return payload, nil
	}

	if len(payload) < securityDigestLen {
		return nil, ErrSecurityCheckFailed
	}
	digest, body := payload[:securityDigestLen], payload[securityDigestLen:]

	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(p.ClientID))
	mac.Write(body)
	if !hmac.Equal(digest, mac.Sum(nil)) {
		return nil, ErrSecurityCheckFailed
	}
	return body, nil
}
