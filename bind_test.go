package xmpp

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/anchorwire/xmpp/stanza"
)

func TestBuildBindIQSetsTypeAndQuery(t *testing.T) {
	t.Parallel()
	iq := buildBindIQ("home")
	if iq.Type != stanza.IQSet {
		t.Fatalf("Type = %q, want %q", iq.Type, stanza.IQSet)
	}
	if iq.ID == "" {
		t.Fatal("ID should be populated")
	}

	var req BindRequest
	if err := xml.Unmarshal(iq.Query, &req); err != nil {
		t.Fatalf("unmarshal Query: %v", err)
	}
	if req.Resource != "home" {
		t.Fatalf("Resource = %q, want %q", req.Resource, "home")
	}
}

func TestBuildBindIQNoResourceOmitsElement(t *testing.T) {
	t.Parallel()
	iq := buildBindIQ("")
	if strings.Contains(string(iq.Query), "resource") {
		t.Fatalf("Query = %q, want no <resource/> when none is requested", iq.Query)
	}
}

func TestBindResultUnmarshalsJID(t *testing.T) {
	t.Parallel()
	const wire = `<bind xmlns="urn:ietf:params:xml:ns:xmpp-bind"><jid>juliet@capulet.lit/balcony</jid></bind>`
	var res BindResult
	if err := xml.Unmarshal([]byte(wire), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.JID != "juliet@capulet.lit/balcony" {
		t.Fatalf("JID = %q, want %q", res.JID, "juliet@capulet.lit/balcony")
	}
}
