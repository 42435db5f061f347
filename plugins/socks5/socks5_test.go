package socks5

import (
	"bytes"
	"context"
	"encoding/xml"
	"sync"
	"testing"

	"github.com/anchorwire/xmpp/plugin"
	"github.com/anchorwire/xmpp/plugins/bytestream"
	"github.com/anchorwire/xmpp/stanza"
)

// wire connects an initiator plugin's IQRequest straight to a target
// plugin's ObserveIQ (and the target's reply back to the initiator), so a
// full streamhost negotiation and SOCKS5 handshake runs over real loopback
// sockets without any XMPP server in the middle.
func wire(t *testing.T, target *Plugin) func(context.Context, *stanza.IQ) (*stanza.IQ, error) {
	t.Helper()
	return func(ctx context.Context, req *stanza.IQ) (*stanza.IQ, error) {
		var result *stanza.IQ
		var mu sync.Mutex
		done := make(chan struct{})
		target.params.SendElement = func(_ context.Context, v any) error {
			mu.Lock()
			result = v.(*stanza.IQ)
			mu.Unlock()
			close(done)
			return nil
		}
		if !target.ObserveIQ(ctx, req) {
			t.Fatal("ObserveIQ: expected the streamhost query to be recognized")
		}
		<-done
		mu.Lock()
		defer mu.Unlock()
		if result.Error != nil {
			return nil, result.Error
		}
		return result, nil
	}
}

func TestTransferRoundTrip(t *testing.T) {
	ctx := context.Background()
	initiator := New()
	target := New()

	if err := target.Initialize(ctx, plugin.InitParams{}); err != nil {
		t.Fatalf("target Initialize: %v", err)
	}
	if err := initiator.Initialize(ctx, plugin.InitParams{IQRequest: wire(t, target)}); err != nil {
		t.Fatalf("initiator Initialize: %v", err)
	}

	payload := bytes.Repeat([]byte("socks5-payload-"), 2048)
	var sink bytes.Buffer

	// Register the target session directly rather than racing a
	// goroutine'd receive() against the initiator's query below.
	pt := &pendingTarget{
		t:    &bytestream.Transfer{SID: "sid1", InitiatorJID: "initiator@example.com", TargetJID: "target@example.com", Sink: &sink},
		done: make(chan error, 1),
	}
	target.mu.Lock()
	target.pending = map[string]*pendingTarget{"sid1": pt}
	target.mu.Unlock()

	if err := initiator.Transfer(ctx, &bytestream.Transfer{
		SID:          "sid1",
		Direction:    bytestream.Sending,
		InitiatorJID: "initiator@example.com",
		TargetJID:    "target@example.com",
		PeerJID:      "target@example.com/res",
		Source:       bytes.NewReader(payload),
	}); err != nil {
		t.Fatalf("initiator.Transfer: %v", err)
	}

	if err := <-pt.done; err != nil {
		t.Fatalf("target side: %v", err)
	}
	if !bytes.Equal(sink.Bytes(), payload) {
		t.Fatalf("received %d bytes, want %d", sink.Len(), len(payload))
	}
}

func TestObserveIQIgnoresUnrelatedQuery(t *testing.T) {
	p := New()
	if err := p.Initialize(context.Background(), plugin.InitParams{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	iq := stanza.NewIQ(stanza.IQSet)
	body, err := xml.Marshal(Query{SID: "no-such-session"})
	if err != nil {
		t.Fatalf("marshal query: %v", err)
	}
	iq.Query = body

	if !p.ObserveIQ(context.Background(), iq) {
		t.Fatal("ObserveIQ: expected a bytestreams query to be recognized even with no pending target")
	}
}

func TestAuthDomainMatchesXEP0065Formula(t *testing.T) {
	got := authDomain("mySID", "romeo@montague.lit/orchard", "juliet@capulet.lit/balcony")
	if len(got) != 40 {
		t.Fatalf("authDomain returned %d hex chars, want 40 (sha1 hex)", len(got))
	}
	if got != authDomain("mySID", "romeo@montague.lit/orchard", "juliet@capulet.lit/balcony") {
		t.Fatal("authDomain is not deterministic")
	}
	if got == authDomain("otherSID", "romeo@montague.lit/orchard", "juliet@capulet.lit/balcony") {
		t.Fatal("authDomain did not vary with sid")
	}
}
