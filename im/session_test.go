package im

import (
	"context"
	"encoding/xml"
	"net"
	"testing"
	"time"

	xmpp "github.com/anchorwire/xmpp"
	"github.com/anchorwire/xmpp/jid"
	"github.com/anchorwire/xmpp/plugin"
	"github.com/anchorwire/xmpp/stanza"
	"github.com/anchorwire/xmpp/transport"
)

func newTestIMSession(t *testing.T) (*Session, *xml.Decoder) {
	t.Helper()
	c1, c2 := net.Pipe()
	t.Cleanup(func() { c1.Close(); c2.Close() })

	sess, err := xmpp.NewSession(context.Background(), transport.NewTCP(c1))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { sess.Close() })

	reg := NewRegistry()
	if err := reg.Init(context.Background(), plugin.InitParams{}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	return NewSession(sess, reg), xml.NewDecoder(c2)
}

// handleAndReadReply runs sess.HandleStanza(req) on a separate goroutine
// (net.Pipe's Write blocks until a Read consumes it, so the reply can't be
// sent until something is reading) and decodes the resulting stanza off
// dec on the caller's goroutine.
func handleAndReadReply(t *testing.T, sess *Session, dec *xml.Decoder, req *stanza.IQ) *stanza.IQ {
	t.Helper()

	handleErr := make(chan error, 1)
	go func() { handleErr <- sess.HandleStanza(context.Background(), nil, req) }()

	type decoded struct {
		iq  stanza.IQ
		err error
	}
	decc := make(chan decoded, 1)
	go func() {
		var d decoded
		d.err = dec.Decode(&d.iq)
		decc <- d
	}()

	select {
	case d := <-decc:
		if d.err != nil {
			t.Fatalf("decode IQ: %v", d.err)
		}
		if err := <-handleErr; err != nil {
			t.Fatalf("HandleStanza: %v", err)
		}
		return &d.iq
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for IQ reply")
	}
	return nil
}

func TestHandleIQGetWithNoDelegateRepliesServiceUnavailable(t *testing.T) {
	t.Parallel()
	sess, dec := newTestIMSession(t)

	from, _ := jid.New("bob", "example.com", "phone")
	req := stanza.NewIQ(stanza.IQGet)
	req.From = from
	req.Query = []byte(`<ping xmlns="urn:xmpp:ping"/>`)

	reply := handleAndReadReply(t, sess, dec, req)
	if reply.Type != stanza.IQError {
		t.Fatalf("reply type = %q, want error", reply.Type)
	}
	if reply.Error == nil || reply.Error.Condition != stanza.ErrorServiceUnavailable {
		t.Fatalf("reply error = %+v, want service-unavailable", reply.Error)
	}
}

func TestHandleIQGetUsesRegisteredCustomIqDelegate(t *testing.T) {
	t.Parallel()
	sess, dec := newTestIMSession(t)

	var gotFrom jid.JID
	var gotPayload string
	sess.CustomIqDelegate(func(from jid.JID, payload []byte) ([]byte, bool) {
		gotFrom = from
		gotPayload = string(payload)
		return []byte(`<pong/>`), true
	})

	from, _ := jid.New("bob", "example.com", "phone")
	req := stanza.NewIQ(stanza.IQGet)
	req.From = from
	req.Query = []byte(`<ping xmlns="urn:xmpp:ping"/>`)

	reply := handleAndReadReply(t, sess, dec, req)
	if reply.Type != stanza.IQResult {
		t.Fatalf("reply type = %q, want result", reply.Type)
	}
	if gotFrom.String() != from.String() {
		t.Fatalf("delegate from = %q, want %q", gotFrom, from)
	}
	if gotPayload != `<ping xmlns="urn:xmpp:ping"/>` {
		t.Fatalf("delegate payload = %q", gotPayload)
	}
}
