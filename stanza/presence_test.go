package stanza

import (
	"encoding/xml"
	"testing"
)

func TestPresenceStatusPrefersUntaggedText(t *testing.T) {
	t.Parallel()
	p := NewPresence(PresenceAvailable)
	p.Statuses = []StatusText{
		{Lang: "fr", Text: "disponible"},
		{Text: "available"},
	}
	if got := p.Status(); got != "available" {
		t.Fatalf("Status() = %q, want %q", got, "available")
	}
}

func TestPresenceStatusEmptyWhenAllTagged(t *testing.T) {
	t.Parallel()
	p := NewPresence(PresenceAvailable)
	p.Statuses = []StatusText{{Lang: "fr", Text: "disponible"}}
	if got := p.Status(); got != "" {
		t.Fatalf("Status() = %q, want empty string", got)
	}
}

func TestPresenceMUCUserFindsExtensionByNamespace(t *testing.T) {
	t.Parallel()
	p := NewPresence(PresenceAvailable)
	p.Extensions = []Extension{
		{XMLName: xml.Name{Space: "jabber:x:conference", Local: "x"}},
		{XMLName: xml.Name{Space: "http://jabber.org/protocol/muc#user", Local: "x"}, Inner: []byte("<item affiliation='owner'/>")},
	}

	ext := p.MUCUser()
	if ext == nil {
		t.Fatal("MUCUser() = nil, want the muc#user extension")
	}
	if string(ext.Inner) != "<item affiliation='owner'/>" {
		t.Fatalf("Inner = %q, want the item element", ext.Inner)
	}
}

func TestPresenceMUCUserAbsent(t *testing.T) {
	t.Parallel()
	p := NewPresence(PresenceAvailable)
	if p.MUCUser() != nil {
		t.Fatal("MUCUser() on a presence with no extensions should be nil")
	}
}

func TestNewPresenceSetsTypeAndID(t *testing.T) {
	t.Parallel()
	p := NewPresence(PresenceSubscribe)
	if p.Type != PresenceSubscribe {
		t.Fatalf("Type = %q, want %q", p.Type, PresenceSubscribe)
	}
	if p.ID == "" {
		t.Fatal("ID should be populated")
	}
	if p.StanzaType() != "presence" {
		t.Fatalf("StanzaType() = %q, want %q", p.StanzaType(), "presence")
	}
}
