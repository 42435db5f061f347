package xmpptest

import (
	"context"
	"testing"
	"time"

	xmpp "github.com/anchorwire/xmpp"
	"github.com/anchorwire/xmpp/sasl"
	"github.com/anchorwire/xmpp/stanza"
)

func TestPairReachesStateReadyWithBoundJIDs(t *testing.T) {
	t.Parallel()
	client, server := Pair(t, Options{})

	if client.State()&xmpp.StateReady == 0 {
		t.Fatalf("client state = %v, want StateReady set", client.State())
	}
	if server.State()&xmpp.StateReady == 0 {
		t.Fatalf("server state = %v, want StateReady set", server.State())
	}

	if got := client.LocalAddr().String(); got != "alice@test/home" {
		t.Fatalf("client bound JID = %q, want alice@test/home", got)
	}
	if got := server.RemoteAddr().String(); got != "alice@test/home" {
		t.Fatalf("server's view of the client JID = %q, want alice@test/home", got)
	}
}

func TestNegotiateRejectsWrongPassword(t *testing.T) {
	t.Parallel()
	client, server, clientErr, serverErr := Negotiate(Options{
		Creds: sasl.Credentials{Username: User, Password: "wrong"},
	})
	if client != nil {
		client.Close()
	}
	if server != nil {
		server.Close()
	}

	if clientErr == nil {
		t.Fatal("client negotiate error = nil, want authentication failure")
	}
	if serverErr == nil {
		t.Fatal("server negotiate error = nil, want authentication failure")
	}
}

func TestPairMessageRoundTrip(t *testing.T) {
	t.Parallel()
	client, server := Pair(t, Options{})

	received := make(chan *stanza.Message, 1)
	go server.Serve(xmpp.HandlerFunc(func(_ context.Context, _ *xmpp.Session, st stanza.Stanza) error {
		if msg, ok := st.(*stanza.Message); ok {
			received <- msg
		}
		return nil
	}))

	msg := stanza.NewMessage(stanza.MessageChat)
	msg.To = server.RemoteAddr()
	msg.Body = "hello"
	if err := client.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case got := <-received:
		if got.Body != "hello" {
			t.Fatalf("Body = %q, want hello", got.Body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the message to arrive server-side")
	}
}
