package im

import (
	"context"
	"testing"

	"github.com/anchorwire/xmpp/plugin"
)

type stubExtension struct {
	name       string
	deps       []string
	namespaces []string
	closed     bool
}

func (s *stubExtension) Name() string                                      { return s.name }
func (s *stubExtension) Version() string                                   { return "1.0" }
func (s *stubExtension) Dependencies() []string                            { return s.deps }
func (s *stubExtension) Initialize(_ context.Context, _ plugin.InitParams) error { return nil }
func (s *stubExtension) Close() error {
	s.closed = true
	return nil
}
func (s *stubExtension) Namespaces() []string { return s.namespaces }

func TestRegistryLoadAfterInit(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	ext := &stubExtension{name: "disco", namespaces: []string{"http://jabber.org/protocol/disco#info"}}
	if err := r.Register(ext); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, ok := r.Load("disco"); ok {
		t.Fatal("Load before Init should report false")
	}

	if err := r.Init(context.Background(), plugin.InitParams{}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	got, ok := r.Load("disco")
	if !ok {
		t.Fatal("Load after Init should report true")
	}
	if got.Name() != "disco" {
		t.Fatalf("Name = %q, want %q", got.Name(), "disco")
	}
}

func TestRegistryNamespacesUnion(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	a := &stubExtension{name: "a", namespaces: []string{"urn:a", "urn:shared"}}
	b := &stubExtension{name: "b", namespaces: []string{"urn:b", "urn:shared"}}
	if err := r.Register(a); err != nil {
		t.Fatalf("Register a: %v", err)
	}
	if err := r.Register(b); err != nil {
		t.Fatalf("Register b: %v", err)
	}
	if err := r.Init(context.Background(), plugin.InitParams{}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	want := map[string]bool{"urn:a": false, "urn:b": false, "urn:shared": false}
	for _, n := range r.Namespaces() {
		want[n] = true
	}
	for n, seen := range want {
		if !seen {
			t.Fatalf("expected namespace %q in union", n)
		}
	}
	if len(r.Namespaces()) != 3 {
		t.Fatalf("Namespaces() = %v, want 3 deduplicated entries", r.Namespaces())
	}
}

func TestRegistryUnloadDropsNamespacesAndCloses(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	ext := &stubExtension{name: "mam", namespaces: []string{"urn:xmpp:mam:2"}}
	if err := r.Register(ext); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Init(context.Background(), plugin.InitParams{}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := r.Unload("mam"); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if !ext.closed {
		t.Fatal("Unload did not Close the extension")
	}
	if _, ok := r.Load("mam"); ok {
		t.Fatal("Load after Unload should report false")
	}
	if len(r.Namespaces()) != 0 {
		t.Fatalf("Namespaces() = %v, want empty after Unload", r.Namespaces())
	}
}

func TestRegistryUnloadUnknownReturnsError(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	if err := r.Unload("nonexistent"); err == nil {
		t.Fatal("Unload of an unregistered extension should return an error")
	}
}
