package xmpp

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/xml"
	"strings"

	"github.com/anchorwire/xmpp/internal/ns"
	"github.com/anchorwire/xmpp/jid"
	"github.com/anchorwire/xmpp/stanza"
	"github.com/anchorwire/xmpp/stream"
	xmppxml "github.com/anchorwire/xmpp/xml"
)

// ServerNegotiateOptions configures ServerNegotiate's handshake.
type ServerNegotiateOptions struct {
	// Domain is the server's own domain, used both as the stream's "from"
	// and to build the bound JID's domain part.
	Domain string

	// TLSConfig enables STARTTLS. A nil config omits the feature
	// entirely, and the session is treated as already secure so SASL can
	// proceed over the bare connection (e.g. a plaintext test harness).
	TLSConfig *tls.Config

	// AuthFunc validates SASL PLAIN credentials. A nil AuthFunc fails
	// every authentication attempt.
	AuthFunc AuthFunc
}

// ServerNegotiate drives the server side of the RFC 6120 stream-setup
// handshake: it consumes the client's stream open, advertises STARTTLS
// (if configured), SASL PLAIN, and resource binding through a Negotiator,
// and returns once the session reaches StateReady.
func ServerNegotiate(ctx context.Context, session *Session, opts ServerNegotiateOptions) error {
	start, err := session.Reader().NextStartElement()
	if err != nil {
		return err
	}
	if start.Name.Local != "stream" || start.Name.Space != ns.Stream {
		return &Error{Kind: KindProtocolViolation, Msg: "expected stream open"}
	}

	if err := openServerStream(ctx, session, opts.Domain); err != nil {
		return err
	}

	if opts.TLSConfig == nil {
		// Nothing to negotiate up to: treat the bare connection as the
		// session's ceiling of security so SASL is offered immediately.
		session.SetState(StateSecure)
	}

	neg := NewNegotiator()
	if opts.TLSConfig != nil {
		neg.AddFeature(StartTLS(opts.TLSConfig))
	}
	neg.AddFeature(serverSASLFeature(opts.AuthFunc, opts.Domain))
	neg.AddFeature(serverBindFeature(opts.Domain))
	neg.Reopen = func(ctx context.Context, session *Session) error {
		return openServerStream(ctx, session, opts.Domain)
	}

	return neg.Negotiate(ctx, session)
}

func openServerStream(ctx context.Context, session *Session, domain string) error {
	from, err := jid.New("", domain, "")
	if err != nil {
		return err
	}
	header := stream.Open(stream.Header{From: from, NS: ns.Client})
	return session.SendRaw(ctx, strings.NewReader(string(header)))
}

// saslAuthElement is the wire shape of a client's <auth/> request.
type saslAuthElement struct {
	XMLName   xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-sasl auth"`
	Mechanism string   `xml:"mechanism,attr"`
	Value     string   `xml:",chardata"`
}

// serverSASLFeature drives a single-step SASL PLAIN exchange: the
// client's <auth/> carries the entire response, so Parse decodes it
// directly and Negotiate verifies it against authFn, unlike the
// offer-only shape client sessions use from auth.go's SASLFeature.
func serverSASLFeature(authFn AuthFunc, domain string) StreamFeature {
	return StreamFeature{
		Name:       xml.Name{Space: ns.SASL, Local: "auth"},
		Required:   true,
		Necessary:  StateSecure,
		Prohibited: StateAuthenticated,
		List: func(ctx context.Context, w *xmppxml.StreamWriter) error {
			start := xml.StartElement{Name: xml.Name{Space: ns.SASL, Local: "mechanisms"}}
			if err := w.EncodeToken(start); err != nil {
				return err
			}
			mech := xml.StartElement{Name: xml.Name{Space: ns.SASL, Local: "mechanism"}}
			if err := w.EncodeToken(mech); err != nil {
				return err
			}
			if err := w.EncodeToken(xml.CharData("PLAIN")); err != nil {
				return err
			}
			if err := w.EncodeToken(xml.EndElement{Name: mech.Name}); err != nil {
				return err
			}
			return w.EncodeToken(xml.EndElement{Name: start.Name})
		},
		Parse: func(ctx context.Context, r *xmppxml.StreamReader, start *xml.StartElement) (any, error) {
			var auth saslAuthElement
			if err := r.DecodeElement(&auth, start); err != nil {
				return nil, err
			}
			return &auth, nil
		},
		Negotiate: func(ctx context.Context, session *Session, data any) (SessionState, error) {
			auth := data.(*saslAuthElement)
			if strings.ToUpper(strings.TrimSpace(auth.Mechanism)) != "PLAIN" {
				return 0, serverSASLFailure(ctx, session, "invalid-mechanism")
			}

			payload, err := base64.StdEncoding.DecodeString(strings.TrimSpace(auth.Value))
			if err != nil {
				return 0, serverSASLFailure(ctx, session, "malformed-request")
			}
			parts := strings.SplitN(string(payload), "\x00", 3)
			if len(parts) != 3 || strings.TrimSpace(parts[1]) == "" {
				return 0, serverSASLFailure(ctx, session, "malformed-request")
			}

			username := strings.TrimSpace(parts[1])
			password := parts[2]
			if authFn == nil {
				return 0, serverSASLFailure(ctx, session, "temporary-auth-failure")
			}
			ok, err := authFn(username, password)
			if err != nil || !ok {
				return 0, serverSASLFailure(ctx, session, "not-authorized")
			}

			j, err := jid.New(username, domain, "")
			if err != nil {
				return 0, serverSASLFailure(ctx, session, "not-authorized")
			}
			session.SetRemoteAddr(j)

			success := xml.StartElement{Name: xml.Name{Space: ns.SASL, Local: "success"}}
			if err := session.Writer().EncodeToken(success); err != nil {
				return 0, err
			}
			if err := session.Writer().EncodeToken(xml.EndElement{Name: success.Name}); err != nil {
				return 0, err
			}
			return StateAuthenticated, nil
		},
	}
}

func serverSASLFailure(ctx context.Context, session *Session, condition string) error {
	payload := "<failure xmlns='" + ns.SASL + "'><" + condition + "/></failure>"
	if err := session.SendRaw(ctx, strings.NewReader(payload)); err != nil {
		return err
	}
	return &Error{Kind: KindAuthenticationFailed, Msg: condition}
}

// serverBindFeature drives resource binding: the client's request arrives
// wrapped in an <iq type='set'/>, so its Name matches the top-level "iq"
// element rather than a bare <bind/>.
func serverBindFeature(domain string) StreamFeature {
	return StreamFeature{
		Name:       xml.Name{Local: "iq"},
		Required:   true,
		Necessary:  StateAuthenticated,
		Prohibited: StateBound,
		List: func(ctx context.Context, w *xmppxml.StreamWriter) error {
			start := xml.StartElement{Name: xml.Name{Space: ns.Bind, Local: "bind"}}
			if err := w.EncodeToken(start); err != nil {
				return err
			}
			return w.EncodeToken(xml.EndElement{Name: start.Name})
		},
		Parse: func(ctx context.Context, r *xmppxml.StreamReader, start *xml.StartElement) (any, error) {
			var iq stanza.IQ
			if err := r.DecodeElement(&iq, start); err != nil {
				return nil, err
			}
			return &iq, nil
		},
		Negotiate: func(ctx context.Context, session *Session, data any) (SessionState, error) {
			iq := data.(*stanza.IQ)
			if iq.Type != stanza.IQSet {
				return 0, &Error{Kind: KindProtocolViolation, Msg: "expected bind iq-set"}
			}

			var req BindRequest
			if err := xml.Unmarshal(iq.Query, &req); err != nil {
				if sendErr := session.Send(ctx, iq.ErrorIQ(stanza.NewStanzaError(stanza.ErrorTypeModify, stanza.ErrorBadRequest, "invalid bind payload"))); sendErr != nil {
					return 0, sendErr
				}
				return 0, &Error{Kind: KindProtocolViolation, Msg: "invalid bind payload"}
			}

			resource := strings.TrimSpace(req.Resource)
			if resource == "" {
				resource = randomServerResource()
			}
			full, err := jid.New(session.RemoteAddr().Local(), domain, resource)
			if err != nil {
				if sendErr := session.Send(ctx, iq.ErrorIQ(stanza.NewStanzaError(stanza.ErrorTypeModify, stanza.ErrorJIDMalformed, "invalid jid"))); sendErr != nil {
					return 0, sendErr
				}
				return 0, err
			}
			session.SetRemoteAddr(full)

			result := iq.ResultIQ()
			payload := &stanza.IQPayload{IQ: *result, Payload: &BindResult{JID: full.String()}}
			if err := session.SendElement(ctx, payload); err != nil {
				return 0, err
			}
			return StateBound | StateReady, nil
		},
	}
}

func randomServerResource() string {
	return "resource-" + stanza.GenerateID()
}
