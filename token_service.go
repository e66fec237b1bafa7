package accounts

import (
	"errors"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrSessionExpired the session token is past its expiration
	ErrSessionExpired = goerrors.New("session expired", goerrors.CategoryAuth).
				WithTextCode(TextCodeSessionExpired).
				WithCode(goerrors.CodeUnauthorized)
	// ErrSessionInvalid the session token could not be verified
	ErrSessionInvalid = goerrors.New("invalid session", goerrors.CategoryAuth).
				WithTextCode(TextCodeSessionInvalid).
				WithCode(goerrors.CodeUnauthorized)
)

// SessionClaims is the signed payload of the session cookie
type SessionClaims struct {
	jwt.RegisteredClaims
	Claims     []Claim `json:"claims,omitempty"`
	Persistent bool    `json:"persistent,omitempty"`
}

// Principal rebuilds the principal carried by the token
func (c *SessionClaims) Principal() Principal {
	return Principal{Subject: c.Subject, Claims: c.Claims}
}

// SessionID is the token id, also the key of the server side record
func (c *SessionClaims) SessionID() string {
	return c.ID
}

// SessionTokenService signs and validates session tokens with HS256
type SessionTokenService struct {
	signingKey []byte
	issuer     string
	logger     Logger
}

func NewSessionTokenService(signingKey []byte, issuer string, logger Logger) *SessionTokenService {
	return &SessionTokenService{
		signingKey: signingKey,
		issuer:     issuer,
		logger:     resolveLogger(logger),
	}
}

// Generate signs a token for principal identified by sessionID
func (ts *SessionTokenService) Generate(principal Principal, sessionID string, persistent bool, ttl time.Duration) (string, *SessionClaims, error) {
	now := time.Now()
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Issuer:    ts.issuer,
			Subject:   principal.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Claims:     principal.Claims,
		Persistent: persistent,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign session token")
	}

	return signed, claims, nil
}

// Validate parses and validates a token string
func (ts *SessionTokenService) Validate(tokenString string) (*SessionClaims, error) {
	var opts []jwt.ParserOption
	if ts.issuer != "" {
		opts = append(opts, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("session token with unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, opts...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, withMessage(ErrSessionInvalid, "invalid session: "+err.Error())
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, ErrSessionInvalid
	}

	return claims, nil
}
