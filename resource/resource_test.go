package resource

import "testing"

func TestPrefix(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"https://server.test/users/alice", "https://server.test"},
		{"http://server.test:8000/notes/1", "http://server.test:8000"},
		{"urn:uuid:1234", "urn:"},
		{"not a uri", ""},
		{"", ""},
	}
	for _, tc := range tests {
		if got := Prefix(tc.uri); got != tc.want {
			t.Errorf("Prefix(%q) = %q, want %q", tc.uri, got, tc.want)
		}
	}
}

func TestHostname(t *testing.T) {
	if got := Hostname("https://server.test:8000/users/alice"); got != "server.test" {
		t.Errorf("Expected 'server.test', got %q", got)
	}
}

func TestTypes(t *testing.T) {
	if got := Types(Resource{"type": "Note"}); len(got) != 1 || got[0] != "Note" {
		t.Errorf("Expected [Note], got %v", got)
	}
	if got := Types(Resource{"type": []any{"Note", "Article"}}); len(got) != 2 {
		t.Errorf("Expected two types, got %v", got)
	}
	if got := Types(Resource{}); len(got) != 0 {
		t.Errorf("Expected no types, got %v", got)
	}
}

func TestIsType(t *testing.T) {
	res := Resource{"type": []any{"Create", "Note"}}
	if !IsType(res, "Create") {
		t.Error("Expected multi-valued type to match")
	}
	if IsType(res, "Follow") {
		t.Error("Expected non-member type not to match")
	}
	if !IsTypeAny(res, "Follow", "Note") {
		t.Error("Expected IsTypeAny to match any member")
	}
}

func TestIsActorObject(t *testing.T) {
	if !IsActorObject(Resource{"type": "Person"}) {
		t.Error("Expected Person to be an actor")
	}
	if IsActorObject(Resource{"type": "Note"}) {
		t.Error("Expected Note not to be an actor")
	}
}

func TestIsPublic(t *testing.T) {
	public := []string{
		"https://www.w3.org/ns/activitystreams#Public",
		"as:Public",
		"Public",
	}
	for _, uri := range public {
		res := Resource{"to": []any{uri}}
		if !IsPublic(res) {
			t.Errorf("Expected %q to mark the resource public", uri)
		}
	}
	if IsPublic(Resource{"to": []any{"https://server.test/users/bob"}}) {
		t.Error("Expected addressed resource not to be public")
	}
	if IsPublic(Resource{}) {
		t.Error("Expected unaddressed resource not to be public")
	}
}

func TestIsRecipient(t *testing.T) {
	res := Resource{
		"to":  "https://server.test/users/bob",
		"bcc": []any{"https://server.test/users/carol"},
	}
	if !IsRecipient(res, "https://server.test/users/bob") {
		t.Error("Expected scalar to-recipient to match")
	}
	if !IsRecipient(res, "https://server.test/users/carol") {
		t.Error("Expected list bcc-recipient to match")
	}
	if IsRecipient(res, "https://server.test/users/dave") {
		t.Error("Expected non-recipient not to match")
	}
}

func TestID(t *testing.T) {
	if got := ID("https://server.test/notes/1"); got != "https://server.test/notes/1" {
		t.Errorf("Expected string passthrough, got %q", got)
	}
	if got := ID(map[string]any{"id": "urn:x:1"}); got != "urn:x:1" {
		t.Errorf("Expected embedded id, got %q", got)
	}
	if got := ID(42); got != "" {
		t.Errorf("Expected empty id for unsupported value, got %q", got)
	}
	if _, err := MustID(map[string]any{}); err == nil {
		t.Error("Expected MustID to fail without id")
	}
}

func TestGetString(t *testing.T) {
	res := Resource{
		"publicKey": map[string]any{
			"id":           "https://server.test/users/alice#main-key",
			"publicKeyPem": "PEM",
		},
	}
	if got := GetString(res, "publicKey", "publicKeyPem"); got != "PEM" {
		t.Errorf("Expected nested value, got %q", got)
	}
	if got := GetString(res, "publicKey", "missing"); got != "" {
		t.Errorf("Expected empty string for missing path, got %q", got)
	}
}

func TestIsActorCollection(t *testing.T) {
	actor := Resource{
		"id":        "https://server.test/users/alice",
		"followers": "https://server.test/users/alice/followers",
	}
	if !IsActorCollection(actor, "https://server.test/users/alice/followers") {
		t.Error("Expected followers to be an actor collection")
	}
	if IsActorCollection(actor, "https://server.test/users/bob/followers") {
		t.Error("Expected foreign collection not to match")
	}
}
