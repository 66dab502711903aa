package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a step-up token is malformed or invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidKey is returned when PEM or key type is invalid.
	ErrInvalidKey = errors.New("invalid key")
)

// StepUpClaims holds JWT claims for the MFA step-up token handed back to the
// authentication orchestrator after a successful verification.
type StepUpClaims struct {
	jwt.RegisteredClaims
	// Method is the MFA method that satisfied the step-up (totp, sms,
	// webauthn, backup_code).
	Method string `json:"mfa_method"`
}

// StepUpProvider issues and validates short-lived MFA step-up JWTs using
// RS256 or ES256.
type StepUpProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	ttl        time.Duration
}

// NewStepUpProvider returns a StepUpProvider that signs with the given
// private key (RSA or ECDSA). ttl should be short (the default is 5 minutes);
// the token only proves that one MFA step was just completed.
func NewStepUpProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, ttl time.Duration) *StepUpProvider {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &StepUpProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		ttl:        ttl,
	}
}

// Issue issues a step-up token for the given user and MFA method.
// Returns the token string and its expiration time.
func (p *StepUpProvider) Issue(userID, method string) (token string, expiresAt time.Time, err error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt = now.Add(p.ttl)
	claims := StepUpClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Method: method,
	}
	alg := keyAlg(p.publicKey)
	if alg == "" {
		return "", time.Time{}, ErrInvalidKey
	}
	t := jwt.NewWithClaims(jwt.GetSigningMethod(alg), claims)
	token, err = t.SignedString(p.privateKey)
	return token, expiresAt, err
}

// Validate checks signature, issuer, audience, and expiry.
// Returns the user ID and MFA method from the claims.
func (p *StepUpProvider) Validate(tokenString string) (userID, method string, err error) {
	var claims StepUpClaims
	tok, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != keyAlg(p.publicKey) {
			return nil, ErrInvalidToken
		}
		return p.publicKey, nil
	}, jwt.WithIssuer(p.issuer), jwt.WithAudience(p.audience), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return "", "", ErrInvalidToken
	}
	if claims.Subject == "" || claims.Method == "" {
		return "", "", ErrInvalidToken
	}
	return claims.Subject, claims.Method, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// loadPEM reads content from path if s does not look like inline PEM;
// otherwise returns s as bytes.
func loadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(s), nil
	}
	return os.ReadFile(s)
}

// ParseSigningKey parses a PEM-encoded private key (RSA or ECDSA). s may be
// inline PEM or a file path.
func ParseSigningKey(s string) (crypto.Signer, error) {
	pemBytes, err := loadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, ErrInvalidKey
		}
		return signer, nil
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

// ParseVerifyKey parses a PEM-encoded public key (RSA or ECDSA). s may be
// inline PEM or a file path.
func ParseVerifyKey(s string) (crypto.PublicKey, error) {
	pemBytes, err := loadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		return x509.ParsePKIXPublicKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

// keyAlg returns "RS256" for RSA and "ES256" for ECDSA P-256; empty otherwise.
func keyAlg(pub crypto.PublicKey) string {
	switch pub.(type) {
	case *rsa.PublicKey:
		return "RS256"
	case *ecdsa.PublicKey:
		return "ES256"
	default:
		return ""
	}
}
