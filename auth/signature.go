package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"code.superseriousbusiness.org/httpsig"
	"github.com/firmsocial/firm/resource"
	"github.com/firmsocial/firm/store"
)

// defaultSignedHeaders is the header list used for outbound signatures,
// compatible with Mastodon peers.
var defaultSignedHeaders = []string{httpsig.RequestTarget, "host", "date", "digest"}

// SignatureAuthenticator verifies Cavage-draft HTTP signatures
// (RSA-PKCS1v15 over SHA-256) against public keys resolved through the
// store.
type SignatureAuthenticator struct {
	Store store.Store
}

// Authenticate returns the actor that owns the signing key, nil when the
// request is unsigned or the signature does not verify, and a hard error
// when the key owner is unknown.
func (a *SignatureAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*Principal, error) {
	if r.Header.Get("Signature") == "" {
		return nil, nil
	}
	verifier, err := httpsig.NewVerifier(r)
	if err != nil {
		return nil, &AuthenticationError{Message: fmt.Sprintf("invalid signature header: %v", err)}
	}
	key, err := a.resolveKey(ctx, verifier.KeyId())
	if err != nil {
		return nil, err
	}
	publicKey, err := ParsePublicKeyPEM(resource.GetString(key, "publicKeyPem"))
	if err != nil {
		return nil, &AuthenticationError{Message: fmt.Sprintf("invalid public key for %s: %v", verifier.KeyId(), err)}
	}
	if err := verifier.Verify(publicKey, httpsig.RSA_SHA256); err != nil {
		log.Printf("Auth: signature verification failed for %s: %v", verifier.KeyId(), err)
		return nil, nil
	}
	owner := resource.GetString(key, "owner")
	actor, err := a.Store.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, fmt.Errorf("unknown key owner: %s", owner)
	}
	return &Principal{Actor: actor}, nil
}

// resolveKey looks up the keyId document directly, then falls back to the
// fragment-stripped actor and its publicKey sub-object.
func (a *SignatureAuthenticator) resolveKey(ctx context.Context, keyID string) (resource.Resource, error) {
	key, err := a.Store.Get(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if key == nil {
		actorURI, _, _ := strings.Cut(keyID, "#")
		actor, err := a.Store.Get(ctx, actorURI)
		if err != nil {
			return nil, err
		}
		if actor != nil {
			if sub, ok := actor["publicKey"].(map[string]any); ok {
				key = sub
			}
		}
	}
	// Some servers answer a keyId fetch with the whole actor document.
	if key != nil {
		if sub, ok := key["publicKey"].(map[string]any); ok {
			key = sub
		}
	}
	if key == nil {
		return nil, &AuthenticationError{Message: fmt.Sprintf("no public key for %s", keyID)}
	}
	return key, nil
}

// ParsePublicKeyPEM decodes a SubjectPublicKeyInfo PEM block and requires
// an RSA key; DH and curve-25519/448 keys cannot carry this signature
// algorithm.
func ParsePublicKeyPEM(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unsupported public key type %T", pub)
	}
	return rsaPub, nil
}

// ParsePrivateKeyPEM accepts PKCS#8 or PKCS#1 encoded RSA private keys.
func ParsePrivateKeyPEM(pemStr string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("unsupported private key type %T", key)
		}
		return rsaKey, nil
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

// RequestSigner signs outbound requests with an actor's key, emitting a
// Signature header Mastodon-compatible peers accept.
type RequestSigner struct {
	KeyID string
	key   *rsa.PrivateKey
}

func NewRequestSigner(keyID, privateKeyPEM string) (*RequestSigner, error) {
	key, err := ParsePrivateKeyPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &RequestSigner{KeyID: keyID, key: key}, nil
}

// Sign synthesizes Date and Host if absent and signs the request. The
// digest header is only signed when there is a body.
func (s *RequestSigner) Sign(req *http.Request, body []byte) error {
	if req.Header.Get("Date") == "" {
		req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	if req.Header.Get("Host") == "" {
		req.Header.Set("Host", req.URL.Host)
	}
	headers := defaultSignedHeaders
	if len(body) == 0 {
		headers = []string{httpsig.RequestTarget, "host", "date"}
	}
	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		headers,
		httpsig.Signature,
		0,
	)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}
	if err := signer.SignRequest(s.key, s.KeyID, req, body); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}
	return nil
}
