package ibb

import (
	"bytes"
	"context"
	"encoding/xml"
	"testing"

	"github.com/anchorwire/xmpp/plugin"
	"github.com/anchorwire/xmpp/plugins/bytestream"
	"github.com/anchorwire/xmpp/stanza"
)

// loopback wires a sending plugin's IQRequest directly to a receiving
// plugin's ObserveIQ, so a full open/data/close exchange can run without a
// real connection.
func loopback(t *testing.T, recv *Plugin) func(context.Context, *stanza.IQ) (*stanza.IQ, error) {
	t.Helper()
	return func(ctx context.Context, req *stanza.IQ) (*stanza.IQ, error) {
		var result *stanza.IQ
		recv.params.SendElement = func(_ context.Context, v any) error {
			iq, ok := v.(*stanza.IQ)
			if !ok {
				t.Fatalf("unexpected send: %T", v)
			}
			result = iq
			return nil
		}
		if !recv.ObserveIQ(ctx, req) {
			t.Fatal("ObserveIQ: expected the frame to be recognized")
		}
		if result == nil {
			t.Fatal("ObserveIQ: expected a reply to be sent")
		}
		if result.Error != nil {
			return nil, result.Error
		}
		return result, nil
	}
}

func TestTransferRoundTrip(t *testing.T) {
	ctx := context.Background()
	sender := New()
	receiver := New()

	if err := receiver.Initialize(ctx, plugin.InitParams{}); err != nil {
		t.Fatalf("receiver Initialize: %v", err)
	}
	if err := sender.Initialize(ctx, plugin.InitParams{IQRequest: loopback(t, receiver)}); err != nil {
		t.Fatalf("sender Initialize: %v", err)
	}

	payload := bytes.Repeat([]byte("ibb-payload-"), 1024)
	var sink bytes.Buffer
	receiver.mu.Lock()
	receiver.sessions = map[string]*inbound{"sid1": {sink: &sink, done: make(chan error, 1)}}
	receiver.mu.Unlock()

	if err := sender.Transfer(ctx, &bytestream.Transfer{
		SID:       "sid1",
		Direction: bytestream.Sending,
		PeerJID:   "counterpart@example.com/res",
		Source:    bytes.NewReader(payload),
	}); err != nil {
		t.Fatalf("sender.Transfer: %v", err)
	}

	if !bytes.Equal(sink.Bytes(), payload) {
		t.Fatalf("received %d bytes, want %d", sink.Len(), len(payload))
	}
}

func TestObserveIQRejectsOutOfOrderSequence(t *testing.T) {
	ctx := context.Background()
	p := New()
	if err := p.Initialize(ctx, plugin.InitParams{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	var errIQ *stanza.IQ
	p.params.SendElement = func(_ context.Context, v any) error {
		errIQ = v.(*stanza.IQ)
		return nil
	}

	var sink bytes.Buffer
	p.mu.Lock()
	p.sessions = map[string]*inbound{"sid2": {sink: &sink, done: make(chan error, 1)}}
	p.mu.Unlock()

	data := stanza.NewIQ(stanza.IQSet)
	body, err := xml.Marshal(Data{SID: "sid2", Seq: 5, Value: "AAAA"})
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	data.Query = body
	if !p.ObserveIQ(ctx, data) {
		t.Fatal("ObserveIQ: expected data to be recognized")
	}

	if errIQ == nil || errIQ.Error == nil {
		t.Fatal("expected an error reply for the out-of-order frame")
	}
	if errIQ.Error.Condition != stanza.ErrorUnexpectedRequest {
		t.Fatalf("Condition = %q, want %q", errIQ.Error.Condition, stanza.ErrorUnexpectedRequest)
	}

	p.mu.Lock()
	_, stillTracked := p.sessions["sid2"]
	p.mu.Unlock()
	if stillTracked {
		t.Fatal("expected the session to be cancelled after the sequence violation")
	}
}
