// Package xmpptest provides an in-process client/server session pair for
// integration tests, in the teacher's testing idiom (internal/testutil):
// a scriptable peer built directly on the library's own types rather than
// a mock, connected over a net.Pipe transport.
package xmpptest

import (
	"context"
	"net"
	"testing"
	"time"

	xmpp "github.com/anchorwire/xmpp"
	"github.com/anchorwire/xmpp/jid"
	"github.com/anchorwire/xmpp/sasl"
	"github.com/anchorwire/xmpp/transport"
)

// Default credentials Pair's server accepts.
const (
	Domain   = "test"
	User     = "alice"
	Password = "s3cr3t"
	Resource = "home"
)

// Options configures Pair and Negotiate.
type Options struct {
	// AuthFunc validates SASL credentials server-side. Defaults to
	// accepting only User/Password.
	AuthFunc xmpp.AuthFunc
	// Creds are the client's SASL credentials. Defaults to User/Password.
	Creds sasl.Credentials
	// Resource is the client's requested bind resource. Defaults to
	// Resource.
	Resource string
}

func (o *Options) setDefaults() {
	if o.AuthFunc == nil {
		o.AuthFunc = func(username, password string) (bool, error) {
			return username == User && password == Password, nil
		}
	}
	if o.Creds.Username == "" {
		o.Creds = sasl.Credentials{Username: User, Password: Password}
	}
	if o.Resource == "" {
		o.Resource = Resource
	}
}

// Negotiate establishes two in-process *xmpp.Session values connected by a
// net.Pipe and runs ClientNegotiate and ServerNegotiate concurrently
// against each other (negotiate.go against negotiator.go's Negotiator,
// driven through STARTTLS-less plain SASL). It returns once both sides
// finish, successfully or not — callers that expect negotiation to fail
// (bad credentials, protocol violations) use this directly; Pair is the
// convenience wrapper for the common success path.
func Negotiate(opts Options) (client, server *xmpp.Session, clientErr, serverErr error) {
	opts.setDefaults()

	c1, c2 := net.Pipe()
	clientSess, err := xmpp.NewSession(context.Background(), transport.NewTCP(c1))
	if err != nil {
		c1.Close()
		c2.Close()
		return nil, nil, err, err
	}
	serverSess, err := xmpp.NewSession(context.Background(), transport.NewTCPServer(c2),
		xmpp.WithState(xmpp.StateServer),
		xmpp.WithRemoteAddr(jid.JID{}),
	)
	if err != nil {
		clientSess.Close()
		return nil, nil, err, err
	}

	domain, err := jid.New("", Domain, "")
	if err != nil {
		clientSess.Close()
		serverSess.Close()
		return nil, nil, err, err
	}

	type result struct {
		side string
		err  error
	}
	resc := make(chan result, 2)
	go func() {
		resc <- result{"client", xmpp.ClientNegotiate(context.Background(), clientSess, xmpp.NegotiateOptions{
			Domain:             domain,
			Resource:           opts.Resource,
			Creds:              opts.Creds,
			AllowInsecurePlain: true,
			NoTLS:              true,
		})}
	}()
	go func() {
		resc <- result{"server", xmpp.ServerNegotiate(context.Background(), serverSess, xmpp.ServerNegotiateOptions{
			Domain:   Domain,
			AuthFunc: opts.AuthFunc,
		})}
	}()

	for i := 0; i < 2; i++ {
		select {
		case r := <-resc:
			if r.side == "client" {
				clientErr = r.err
			} else {
				serverErr = r.err
			}
		case <-time.After(5 * time.Second):
			if clientErr == nil {
				clientErr = xmpp.NewError(xmpp.KindTimeout, "negotiate: timed out", nil)
			}
			if serverErr == nil {
				serverErr = xmpp.NewError(xmpp.KindTimeout, "negotiate: timed out", nil)
			}
			return clientSess, serverSess, clientErr, serverErr
		}
	}

	return clientSess, serverSess, clientErr, serverErr
}

// Pair is Negotiate for the common case: it fails t if either side doesn't
// reach StateReady, and registers both sessions' Close with t.Cleanup.
func Pair(t *testing.T, opts Options) (client, server *xmpp.Session) {
	t.Helper()

	client, server, clientErr, serverErr := Negotiate(opts)
	if clientErr != nil || serverErr != nil {
		if client != nil {
			client.Close()
		}
		if server != nil {
			server.Close()
		}
		t.Fatalf("negotiate: client err=%v server err=%v", clientErr, serverErr)
	}

	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}
