package models

import (
	"encoding/json"
	"testing"
)

// ---------------------------------------------------------------------------
// Action
// ---------------------------------------------------------------------------

func TestAllActions_ExactSet(t *testing.T) {
	want := []string{
		"login", "logout", "login_failed", "access_denied",
		"create", "read", "update", "delete", "edit",
		"system_start", "system_stop", "system_error",
	}
	got := AllActions()
	if len(got) != len(want) {
		t.Fatalf("AllActions() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if string(got[i]) != want[i] {
			t.Errorf("AllActions()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAllActions_ReturnsCopy(t *testing.T) {
	a := AllActions()
	a[0] = "tampered"
	if AllActions()[0] != ActionLogin {
		t.Error("mutating AllActions() result changed the package list")
	}
}

func TestAction_Valid(t *testing.T) {
	for _, a := range AllActions() {
		if !a.Valid() {
			t.Errorf("%q.Valid() = false, want true", a)
		}
	}
	for _, a := range []Action{"", "LOGIN", "purge", "system"} {
		if a.Valid() {
			t.Errorf("%q.Valid() = true, want false", a)
		}
	}
}

// ---------------------------------------------------------------------------
// Metadata
// ---------------------------------------------------------------------------

func TestMetadata_Scan(t *testing.T) {
	var m Metadata
	if err := m.Scan([]byte(`{"a":1}`)); err != nil {
		t.Fatalf("Scan([]byte) error: %v", err)
	}
	if string(m) != `{"a":1}` {
		t.Errorf("Scan([]byte) = %s", m)
	}
	if err := m.Scan(`{"b":2}`); err != nil {
		t.Fatalf("Scan(string) error: %v", err)
	}
	if string(m) != `{"b":2}` {
		t.Errorf("Scan(string) = %s", m)
	}
	if err := m.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) error: %v", err)
	}
	if m != nil {
		t.Errorf("Scan(nil) = %s, want nil", m)
	}
	if err := m.Scan(42); err == nil {
		t.Error("Scan(int) expected error, got nil")
	}
}

func TestMetadata_Value(t *testing.T) {
	v, err := Metadata(nil).Value()
	if err != nil || v != nil {
		t.Errorf("empty Value() = %v, %v; want nil, nil", v, err)
	}
	v, err = Metadata(`{"z":1,"a":2}`).Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}
	if v != `{"z":1,"a":2}` {
		t.Errorf("Value() = %v, want document verbatim", v)
	}
}

func TestMetadata_JSONRoundTripKeepsKeyOrder(t *testing.T) {
	rec := AuditLog{Action: ActionUpdate, Metadata: Metadata(`{"zeta":1,"alpha":2}`)}
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	var out AuditLog
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if string(out.Metadata) != `{"zeta":1,"alpha":2}` {
		t.Errorf("Metadata after round trip = %s", out.Metadata)
	}
}

func TestMetadata_MarshalEmptyIsNull(t *testing.T) {
	b, err := json.Marshal(struct {
		M Metadata `json:"m"`
	}{})
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(b) != `{"m":null}` {
		t.Errorf("Marshal = %s, want {\"m\":null}", b)
	}
}

func TestNewMetadata(t *testing.T) {
	m, err := NewMetadata(nil)
	if err != nil || m != nil {
		t.Errorf("NewMetadata(nil) = %s, %v", m, err)
	}
	m, err = NewMetadata(map[string]any{"path": "/x"})
	if err != nil {
		t.Fatalf("NewMetadata error: %v", err)
	}
	if string(m) != `{"path":"/x"}` {
		t.Errorf("NewMetadata = %s", m)
	}
	if _, err := NewMetadata(func() {}); err == nil {
		t.Error("NewMetadata(func) expected error, got nil")
	}
}

func TestMetadata_Fields(t *testing.T) {
	fields := Metadata(`{"email":"a@b.c","changes":{"name":{"from":"a","to":"b"}}}`).Fields()
	if len(fields) != 2 || string(fields["email"]) != `"a@b.c"` {
		t.Errorf("Fields() = %v", fields)
	}
	for _, m := range []Metadata{nil, Metadata(`[1,2]`), Metadata(`"text"`), Metadata(`{bad`)} {
		if got := m.Fields(); got != nil {
			t.Errorf("Metadata(%s).Fields() = %v, want nil", m, got)
		}
	}
}

func TestMetadata_Field(t *testing.T) {
	m := Metadata(`{"email":"a@b.c","n":3}`)
	v, ok := m.Field("email")
	if !ok || string(v) != `"a@b.c"` {
		t.Errorf("Field(email) = %s, %v", v, ok)
	}
	if _, ok := m.Field("missing"); ok {
		t.Error("Field(missing) ok = true")
	}
	if _, ok := Metadata(`[1,2]`).Field("x"); ok {
		t.Error("Field on array ok = true")
	}
	if _, ok := Metadata(nil).Field("x"); ok {
		t.Error("Field on empty ok = true")
	}
}
