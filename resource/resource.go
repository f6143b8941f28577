package resource

import (
	"fmt"
	"net/url"
)

// Resource is an ActivityPub JSON document. Documents are kept as raw maps so
// that unknown fields survive a read-modify-write cycle.
type Resource = map[string]any

// Vocabulary for server-private documents (credentials, blocks, nodeinfo
// overrides). These never leave the private partition.
const (
	NSPrefix          = "https://firm.stevebate.dev/ns#"
	TypeNodeInfo      = "firm:NodeInfo"
	TypeCredentials   = "firm:Credentials"
	TypeBlocks        = "firm:Blocks"
	TypeDelivery      = "firm:Delivery"
	PropPassword      = "firm:password"
	PropToken         = "firm:token"
	PropPrivateKey    = "firm:privateKey"
	PropBlockedActor  = "firm:blockedActor"
	PropBlockedDomain = "firm:blockedDomain"
)

// PublicURIs are the addressing values that mark a resource as publicly
// visible. Mastodon and friends emit any of the three.
var PublicURIs = []string{
	"https://www.w3.org/ns/activitystreams#Public",
	"as:Public",
	"Public",
}

// ActorTypes are the AS2 actor types.
var ActorTypes = []string{"Application", "Group", "Organization", "Person", "Service"}

// RecipientFields are the AS2 addressing fields.
var RecipientFields = []string{"to", "bto", "cc", "bcc", "audience"}

const (
	ContentTypeActivityJSON = "application/activity+json"
	ContentTypeJRD          = "application/jrd+json"
)

// Types returns the resource's type field normalized to a slice. A missing
// type yields an empty slice.
func Types(res Resource) []string {
	switch t := res["type"].(type) {
	case string:
		return []string{t}
	case []any:
		types := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok {
				types = append(types, s)
			}
		}
		return types
	case []string:
		return t
	}
	return nil
}

// IsType reports whether the resource has the given type, honoring
// multi-valued type fields.
func IsType(res Resource, resourceType string) bool {
	return HasValue(res, "type", resourceType)
}

// IsTypeAny reports whether the resource has any of the given types.
func IsTypeAny(res Resource, resourceTypes ...string) bool {
	for _, t := range resourceTypes {
		if IsType(res, t) {
			return true
		}
	}
	return false
}

// IsActorObject reports whether the resource is an AS2 actor.
func IsActorObject(res Resource) bool {
	for _, t := range Types(res) {
		for _, at := range ActorTypes {
			if t == at {
				return true
			}
		}
	}
	return false
}

// IsActorCollection reports whether uri is one of the actor's own
// collections (followers, following, liked, shares).
func IsActorCollection(actor Resource, uri string) bool {
	for _, key := range []string{"followers", "following", "liked", "shares"} {
		if actor[key] == uri {
			return true
		}
	}
	return false
}

// IsRecipient reports whether uri appears in any addressing field of the
// resource.
func IsRecipient(res Resource, uri string) bool {
	for _, key := range RecipientFields {
		if HasValue(res, key, uri) {
			return true
		}
	}
	return false
}

// IsPublic reports whether any addressing field carries one of the AS2
// public collection URIs.
func IsPublic(res Resource) bool {
	for _, key := range RecipientFields {
		for _, uri := range PublicURIs {
			if HasValue(res, key, uri) {
				return true
			}
		}
	}
	return false
}

// HasValue reports whether res[key] equals value or is a list containing
// value. Absent keys never match.
func HasValue(res Resource, key, value string) bool {
	switch v := res[key].(type) {
	case string:
		return v == value
	case []any:
		for _, item := range v {
			if item == value {
				return true
			}
		}
	case []string:
		for _, item := range v {
			if item == value {
				return true
			}
		}
	}
	return false
}

// Get walks nested maps by key and returns the value at the end of the path,
// or nil if any step is missing.
func Get(res Resource, keys ...string) any {
	var value any = res
	for _, key := range keys {
		m, ok := value.(map[string]any)
		if !ok {
			return nil
		}
		value = m[key]
	}
	return value
}

// GetString is Get with a string assertion; returns "" when absent or not a
// string.
func GetString(res Resource, keys ...string) string {
	s, _ := Get(res, keys...).(string)
	return s
}

// ID returns the identifier of a value that is either a URI string or an
// embedded object with an "id" field.
func ID(v any) string {
	switch r := v.(type) {
	case string:
		return r
	case map[string]any:
		if id, ok := r["id"].(string); ok {
			return id
		}
	}
	return ""
}

// MustID is ID but errors when no identifier can be determined.
func MustID(v any) (string, error) {
	if id := ID(v); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("resource has no id: %v", v)
}

// Prefix returns the scheme://host[:port] prefix of a URI, or "" for
// unparseable input. urn: URIs have no authority; their prefix is "urn:".
func Prefix(uri string) string {
	if len(uri) >= 4 && uri[:4] == "urn:" {
		return "urn:"
	}
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// Hostname returns the host portion of a URI without the port.
func Hostname(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// IsHTTPURI reports whether the URI uses the http or https scheme.
func IsHTTPURI(uri string) bool {
	return len(uri) > 7 && (uri[:7] == "http://" || (len(uri) > 8 && uri[:8] == "https://"))
}
