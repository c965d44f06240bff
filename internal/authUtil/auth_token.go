// Package authUtil issues and validates the bearer tokens that guard the
// FLAGSHIP transmitter and stream management APIs. Tokens are EdDSA-signed
// JWTs bound to a stream id and a scope set. Endpoint OAuth or DID
// resolution is out of scope; this is the transmitter's own credential.
package authUtil

import (
	"crypto/ed25519"
	"errors"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/segmentio/ksuid"

	"github.com/grcorsair/flagship/pkg/goSet"
)

var authLog = log.New(os.Stdout, "AUTH:   ", log.Ldate|log.Ltime)

const (
	// ScopeStreamMgmt allows reading and updating a stream's configuration.
	ScopeStreamMgmt = "stream.manage"
	// ScopeStreamAdmin additionally allows create, delete and event publish.
	ScopeStreamAdmin = "stream.admin"
	// ScopeEventDelivery allows polling and acknowledging a stream's events.
	ScopeEventDelivery = "event.delivery"

	tokenValidityDays = 90
)

// EventAuthToken is the claims set of a FLAGSHIP bearer token.
type EventAuthToken struct {
	jwt.RegisteredClaims

	StreamIds []string `json:"sids,omitempty"`
	Scopes    []string `json:"roles,omitempty"`
}

func (e *EventAuthToken) IsAuthorized(streamId string, scopes []string) bool {
	for _, scope := range e.Scopes {
		for _, wanted := range scopes {
			if scope != wanted {
				continue
			}
			if scope == ScopeStreamAdmin {
				return true
			}
			for _, sid := range e.StreamIds {
				if sid == streamId {
					return true
				}
			}
		}
	}
	return false
}

type AuthContext struct {
	StreamId string
	Eat      *EventAuthToken
}

// AuthIssuer signs and validates bearer tokens with the transmitter's
// Ed25519 keypair.
type AuthIssuer struct {
	TokenIssuer string
	privateKey  ed25519.PrivateKey
	PublicKey   *keyfunc.JWKS
}

func NewAuthIssuer(tokenIssuer string, keypair *goSet.Keypair) (*AuthIssuer, error) {
	if keypair == nil {
		return nil, errors.New("auth issuer requires a keypair")
	}
	privateKey, err := keypair.PrivateKey()
	if err != nil {
		return nil, err
	}
	publicKey, err := keypair.PublicKey()
	if err != nil {
		return nil, err
	}

	gkey := keyfunc.NewGivenCustomWithOptions(publicKey, keyfunc.GivenKeyOptions{
		Algorithm: "EdDSA",
	})
	givenKeys := map[string]keyfunc.GivenKey{tokenIssuer: gkey}

	return &AuthIssuer{
		TokenIssuer: tokenIssuer,
		privateKey:  privateKey,
		PublicKey:   keyfunc.NewGiven(givenKeys),
	}, nil
}

// IssueStreamToken issues the delivery credential returned to a receiver at
// stream creation. It authorizes poll, acknowledge and config management for
// that one stream.
func (a *AuthIssuer) IssueStreamToken(streamId string) (string, error) {
	return a.issue(EventAuthToken{
		StreamIds: []string{streamId},
		Scopes:    []string{ScopeEventDelivery, ScopeStreamMgmt},
	})
}

// IssueAdminToken issues a credential that authorizes stream creation,
// deletion and event publication.
func (a *AuthIssuer) IssueAdminToken() (string, error) {
	return a.issue(EventAuthToken{
		Scopes: []string{ScopeStreamAdmin, ScopeStreamMgmt, ScopeEventDelivery},
	})
}

func (a *AuthIssuer) issue(eat EventAuthToken) (string, error) {
	now := time.Now()
	eat.RegisteredClaims = jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.AddDate(0, 0, tokenValidityDays)),
		Audience:  []string{a.TokenIssuer},
		Issuer:    a.TokenIssuer,
		ID:        ksuid.New().String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, eat)
	token.Header["typ"] = "jwt"
	token.Header["kid"] = a.TokenIssuer
	return token.SignedString(a.privateKey)
}

func ParseAuthToken(tokenString string, jwks *keyfunc.JWKS) (*EventAuthToken, error) {
	token, err := jwt.ParseWithClaims(tokenString, &EventAuthToken{}, jwks.Keyfunc)
	if err != nil {
		return nil, err
	}
	eat, ok := token.Claims.(*EventAuthToken)
	if !ok || !token.Valid {
		return nil, errors.New("invalid authorization token")
	}
	return eat, nil
}

/*
ValidateAuthorization evaluates the request's bearer token against the
required scopes. The stream id is taken from the request path variable when
present, otherwise from the token itself. Returns 200 with an AuthContext
when authorized, 401 for missing/invalid credentials, 403 for valid
credentials lacking scope.
*/
func (a *AuthIssuer) ValidateAuthorization(r *http.Request, streamId string, scopes []string) (*AuthContext, int) {
	authorization := r.Header.Get("Authorization")
	if authorization == "" {
		return nil, http.StatusUnauthorized
	}
	parts := strings.Split(authorization, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, http.StatusUnauthorized
	}

	eat, err := ParseAuthToken(parts[1], a.PublicKey)
	if err != nil {
		authLog.Printf("Authorization invalid: [%s]", err.Error())
		return nil, http.StatusUnauthorized
	}

	if streamId == "" && len(eat.StreamIds) == 1 {
		streamId = eat.StreamIds[0]
	}
	if !eat.IsAuthorized(streamId, scopes) {
		return nil, http.StatusForbidden
	}
	return &AuthContext{StreamId: streamId, Eat: eat}, http.StatusOK
}
