package auth

import (
	"context"
	"encoding/base64"
	"log"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/firmsocial/firm/resource"
	"github.com/firmsocial/firm/store"
)

// BasicAuthenticator checks HTTP Basic credentials against stored
// credential documents. The username is the actor URI; actor URIs contain
// colons, so the password is everything after the last colon.
type BasicAuthenticator struct {
	Store store.Store
}

func (a *BasicAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*Principal, error) {
	scheme, encoded, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Basic") {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &AuthenticationError{Message: "invalid basic auth credentials"}
	}
	idx := strings.LastIndex(string(decoded), ":")
	if idx < 0 {
		return nil, &AuthenticationError{Message: "invalid basic auth credentials"}
	}
	actorURI := string(decoded[:idx])
	password := string(decoded[idx+1:])

	credentials, err := a.Store.QueryOne(ctx, store.Criteria{
		"@prefix":      "urn:",
		"type":         resource.TypeCredentials,
		"attributedTo": actorURI,
	})
	if err != nil {
		return nil, err
	}
	if credentials == nil {
		return nil, nil
	}
	hash := resource.GetString(credentials, resource.PropPassword)
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, nil
	}
	log.Printf("Auth: basic authentication succeeded: %s", actorURI)
	actor, err := a.Store.Get(ctx, actorURI)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, nil
	}
	return &Principal{Actor: actor}, nil
}

// HashPassword produces the bcrypt hash stored in credential documents.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
