package domain

import (
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Credential is a registered FIDO2 authenticator credential.
type Credential struct {
	CredentialID    []byte
	UserID          string
	PublicKey       []byte
	AttestationType string
	Transports      []string
	SignCount       uint32
	Nickname        string
	CreatedAt       time.Time
	LastUsedAt      *time.Time
}

// Library converts the stored credential into the ceremony library's form.
func (c *Credential) Library() webauthn.Credential {
	transports := make([]protocol.AuthenticatorTransport, 0, len(c.Transports))
	for _, t := range c.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}
	return webauthn.Credential{
		ID:              c.CredentialID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       transports,
		Authenticator: webauthn.Authenticator{
			SignCount: c.SignCount,
		},
	}
}

// FromLibrary builds a stored credential from a freshly verified registration.
func FromLibrary(userID, nickname string, wc *webauthn.Credential, now time.Time) *Credential {
	transports := make([]string, 0, len(wc.Transport))
	for _, t := range wc.Transport {
		transports = append(transports, string(t))
	}
	return &Credential{
		CredentialID:    wc.ID,
		UserID:          userID,
		PublicKey:       wc.PublicKey,
		AttestationType: wc.AttestationType,
		Transports:      transports,
		SignCount:       wc.Authenticator.SignCount,
		Nickname:        nickname,
		CreatedAt:       now,
	}
}
