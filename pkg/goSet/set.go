package goSet

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/segmentio/ksuid"

	"github.com/grcorsair/flagship/internal/model"
)

var setLog = log.New(os.Stdout, "GOSET:  ", log.Ldate|log.Ltime)

// ErrKeyUnavailable indicates no signing key has been configured with the
// key provider. Signing cannot proceed; this is surfaced to the caller.
var ErrKeyUnavailable = errors.New("no signing keypair configured")

/*
SecurityEventToken is the claims set of an RFC 8417 SET. Events is a map of
event type URI to event payload, not an array. The ID claim (jti) is unique
per issued token and is the basis for idempotent acknowledgment.
*/
type SecurityEventToken struct {
	jwt.RegisteredClaims

	Events map[string]json.RawMessage `json:"events"`
}

func (set *SecurityEventToken) String() string {
	jsonByte, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		setLog.Printf("Error encoding token: %s", err.Error())
	}
	return string(jsonByte)
}

// GetEventUris returns the type URIs of the events carried by the token.
func (set *SecurityEventToken) GetEventUris() []string {
	var uris []string
	for uri := range set.Events {
		uris = append(uris, uri)
	}
	return uris
}

// ParsedEvents resolves every entry of the events map into its taxonomy
// variant. Unrecognized URIs come back as model.UnknownEvent.
func (set *SecurityEventToken) ParsedEvents() ([]model.EventData, error) {
	events := make([]model.EventData, 0, len(set.Events))
	for uri, raw := range set.Events {
		data, err := model.ParseEventData(uri, raw)
		if err != nil {
			return nil, err
		}
		events = append(events, data)
	}
	return events, nil
}

/*
CreateSet builds an unsigned SET carrying a single FLAGSHIP event. The issuer
and audience are DID or URL strings identifying the transmitter and the
intended receiver. A fresh jti is assigned on every call.
*/
func CreateSet(event model.EventData, issuer string, audience string) SecurityEventToken {
	raw, err := json.Marshal(event)
	if err != nil {
		// The taxonomy variants are all plain marshalable structs.
		setLog.Printf("Error encoding event %s: %s", event.EventType(), err.Error())
	}
	return SecurityEventToken{
		Events: map[string]json.RawMessage{event.EventType(): raw},
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       GenerateJti(),
			IssuedAt: jwt.NewNumericDate(time.Now()),
			Issuer:   issuer,
			Audience: []string{audience},
		},
	}
}

// JWS signs the token with the provider's Ed25519 private key and returns the
// compact serialization. The header carries alg=EdDSA and typ=secevent+jwt.
func (set *SecurityEventToken) JWS(provider KeyProvider) (string, error) {
	keypair, err := provider.LoadKeypair()
	if err != nil {
		return "", fmt.Errorf("loading signing key: %w", err)
	}
	if keypair == nil {
		return "", ErrKeyUnavailable
	}
	privateKey, err := keypair.PrivateKey()
	if err != nil {
		return "", fmt.Errorf("parsing signing key: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, set)
	token.Header["typ"] = "secevent+jwt"
	return token.SignedString(privateKey)
}

// Sign builds and signs a SET in one step.
func Sign(event model.EventData, issuer string, audience string, provider KeyProvider) (string, error) {
	set := CreateSet(event, issuer, audience)
	return set.JWS(provider)
}

// VerifyResult reports the outcome of Verify. Payload is only set when Valid
// is true.
type VerifyResult struct {
	Valid   bool
	Payload *SecurityEventToken
}

/*
Verify checks a compact SET against the provider's public key. Every failure
mode (malformed token, signature mismatch, wrong typ header, unparseable
claims, missing key) yields Valid=false; Verify never panics and performs no
issuer or audience allow-listing, which remains the caller's business rule.
*/
func Verify(tokenString string, provider KeyProvider) VerifyResult {
	invalid := VerifyResult{Valid: false}

	keypair, err := provider.LoadKeypair()
	if err != nil || keypair == nil {
		return invalid
	}
	publicKey, err := keypair.PublicKey()
	if err != nil {
		return invalid
	}

	set := SecurityEventToken{}
	token, err := jwt.ParseWithClaims(tokenString, &set,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return publicKey, nil
		})
	if err != nil || !token.Valid {
		return invalid
	}
	if token.Header["typ"] != "secevent+jwt" {
		setLog.Printf("token is not a security event type (secevent+jwt)")
		return invalid
	}
	return VerifyResult{Valid: true, Payload: &set}
}

func GenerateJti() string {
	return ksuid.New().String()
}
