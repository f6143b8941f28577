// Package delivery fans activities out to remote inboxes with signed
// requests and retrying background delivery.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/firmsocial/firm/auth"
	"github.com/firmsocial/firm/resource"
	"github.com/firmsocial/firm/store"
)

const deliveryTimeout = 30 * time.Second

// Service resolves an activity's audience and queues one signed POST per
// distinct remote inbox. Queue items live in the private store partition
// so pending deliveries survive a restart.
type Service struct {
	Store   store.Store
	Client  store.HTTPClient
	Timeout time.Duration
}

func NewService(s store.Store, client store.HTTPClient) *Service {
	if client == nil {
		client = &http.Client{Timeout: deliveryTimeout}
	}
	return &Service{Store: s, Client: client, Timeout: deliveryTimeout}
}

// Deliver queues the activity for every resolved recipient inbox. The
// actual sends happen in the worker.
func (s *Service) Deliver(ctx context.Context, activity resource.Resource) error {
	actorURI := resource.ID(activity["actor"])
	inboxes, err := s.resolveInboxes(ctx, activity, actorURI)
	if err != nil {
		return err
	}
	if len(inboxes) == 0 {
		log.Printf("Delivery: no recipients for %s", resource.ID(activity))
		return nil
	}
	for inbox := range inboxes {
		now := time.Now().UTC().Format(time.RFC3339)
		item := resource.Resource{
			"id":          fmt.Sprintf("urn:uuid:%s", uuid.New()),
			"type":        resource.TypeDelivery,
			"actor":       actorURI,
			"inbox":       inbox,
			"activity":    activity,
			"attempts":    float64(0),
			"nextRetryAt": now,
			"published":   now,
		}
		if err := s.Store.Put(ctx, item); err != nil {
			return fmt.Errorf("failed to queue delivery to %s: %w", inbox, err)
		}
	}
	log.Printf("Delivery: queued %s to %d inboxes", resource.ID(activity), len(inboxes))
	return nil
}

// resolveInboxes walks the addressing fields, expands locally stored
// collections one level, dereferences each recipient actor and collects
// distinct inbox URIs. Public markers and the sender are skipped.
func (s *Service) resolveInboxes(ctx context.Context, activity resource.Resource, actorURI string) (map[string]struct{}, error) {
	recipients := make(map[string]struct{})
	for _, field := range resource.RecipientFields {
		for _, uri := range stringValues(activity[field]) {
			s.addRecipient(ctx, recipients, uri, actorURI, true)
		}
	}
	inboxes := make(map[string]struct{})
	for uri := range recipients {
		actor, err := s.Store.Get(ctx, uri)
		if err != nil {
			log.Printf("Delivery: failed to resolve %s: %v", uri, err)
			continue
		}
		if actor == nil {
			continue
		}
		// Prefer the shared inbox when the peer advertises one.
		inbox := resource.GetString(actor, "endpoints", "sharedInbox")
		if inbox == "" {
			inbox = resource.GetString(actor, "inbox")
		}
		if inbox != "" {
			inboxes[inbox] = struct{}{}
		}
	}
	return inboxes, nil
}

func (s *Service) addRecipient(ctx context.Context, recipients map[string]struct{}, uri, actorURI string, expand bool) {
	if uri == "" || uri == actorURI || isPublicURI(uri) {
		return
	}
	if _, seen := recipients[uri]; seen {
		return
	}
	if expand {
		if stored, err := s.Store.Get(ctx, uri); err == nil && stored != nil &&
			resource.IsTypeAny(stored, "Collection", "OrderedCollection") {
			items := stored[itemsKey(stored)]
			for _, member := range stringValues(items) {
				s.addRecipient(ctx, recipients, member, actorURI, false)
			}
			return
		}
	}
	recipients[uri] = struct{}{}
}

func itemsKey(collection resource.Resource) string {
	if resource.IsType(collection, "OrderedCollection") {
		return "orderedItems"
	}
	return "items"
}

func isPublicURI(uri string) bool {
	for _, public := range resource.PublicURIs {
		if uri == public {
			return true
		}
	}
	return false
}

func stringValues(v any) []string {
	switch values := v.(type) {
	case string:
		return []string{values}
	case []any:
		uris := make([]string, 0, len(values))
		for _, item := range values {
			if uri := resource.ID(item); uri != "" {
				uris = append(uris, uri)
			}
		}
		return uris
	case []string:
		return values
	}
	return nil
}

// send performs one signed POST of the activity to an inbox.
func (s *Service) send(ctx context.Context, actorURI, inbox string, activity resource.Resource) error {
	body, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inbox, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", resource.ContentTypeActivityJSON)
	req.Header.Set("Accept", resource.ContentTypeActivityJSON)
	req.Header.Set("User-Agent", "firm/1.0 ActivityPub")

	signer, err := s.signerFor(ctx, actorURI)
	if err != nil {
		return err
	}
	if err := signer.Sign(req, body); err != nil {
		return err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote server returned status %d", resp.StatusCode)
	}
	log.Printf("Delivery: sent %s to %s (status %d)", resource.ID(activity), inbox, resp.StatusCode)
	return nil
}

// signerFor builds a request signer from the actor's stored credentials.
func (s *Service) signerFor(ctx context.Context, actorURI string) (*auth.RequestSigner, error) {
	credentials, err := s.Store.QueryOne(ctx, store.Criteria{
		"@prefix":      "urn:",
		"type":         resource.TypeCredentials,
		"attributedTo": actorURI,
	})
	if err != nil {
		return nil, err
	}
	if credentials == nil {
		return nil, fmt.Errorf("no credentials for %s", actorURI)
	}
	actor, err := s.Store.Get(ctx, actorURI)
	if err != nil {
		return nil, err
	}
	keyID := resource.GetString(actor, "publicKey", "id")
	if keyID == "" {
		keyID = actorURI + "#main-key"
	}
	return auth.NewRequestSigner(keyID, resource.GetString(credentials, resource.PropPrivateKey))
}
