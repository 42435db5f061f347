package xmpp

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/xml"

	"github.com/anchorwire/xmpp/internal/ns"
	"github.com/anchorwire/xmpp/jid"
	"github.com/anchorwire/xmpp/sasl"
	"github.com/anchorwire/xmpp/stanza"
	"github.com/anchorwire/xmpp/stream"
	xmppxml "github.com/anchorwire/xmpp/xml"
)

// featureSet is the subset of <stream:features/> this library negotiates.
type featureSet struct {
	XMLName    xml.Name `xml:"http://etherx.jabber.org/streams features"`
	StartTLS   *struct {
		Required *struct{} `xml:"required"`
	} `xml:"urn:ietf:params:xml:ns:xmpp-tls starttls"`
	Mechanisms *struct {
		Mechanism []string `xml:"mechanism"`
	} `xml:"urn:ietf:params:xml:ns:xmpp-sasl mechanisms"`
	Bind *struct{} `xml:"urn:ietf:params:xml:ns:xmpp-bind bind"`
}

// NegotiateOptions configures ClientNegotiate's handshake.
type NegotiateOptions struct {
	Domain             jid.JID
	Resource           string
	Creds              sasl.Credentials
	TLSConfig          *tls.Config
	AllowInsecurePlain bool
	NoTLS              bool
}

// resetIO rebuilds the stream reader/writer against the session's current
// transport. Required after a transport upgrade (STARTTLS) and after a
// successful SASL exchange, both of which restart the XML stream.
func (s *Session) resetIO() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reader = xmppxml.NewStreamReader(s.trans)
	s.writer = xmppxml.NewStreamWriter(s.trans)
}

func (s *Session) openStream(ctx context.Context, domain jid.JID) error {
	return s.SendRaw(ctx, bytes.NewReader(stream.Open(stream.Header{To: domain})))
}

// ClientNegotiate drives the client side of the RFC 6120 stream-setup
// handshake: stream open, optional STARTTLS, SASL authentication, stream
// restart, and resource binding. It returns once the session reaches
// StateReady or an unrecoverable error occurs.
func ClientNegotiate(ctx context.Context, session *Session, opts NegotiateOptions) error {
	if err := session.openStream(ctx, opts.Domain); err != nil {
		return err
	}

	for {
		feats, err := readFeatures(session)
		if err != nil {
			return err
		}

		if feats.StartTLS != nil && feats.StartTLS.Required != nil && opts.NoTLS {
			return &Error{Kind: KindTLSRequiredByServer}
		}

		switch {
		case feats.StartTLS != nil && !opts.NoTLS && session.State()&StateSecure == 0:
			if err := negotiateStartTLS(ctx, session, opts.TLSConfig); err != nil {
				return err
			}
			session.SetState(StateSecure)
			session.resetIO()
			if err := session.openStream(ctx, opts.Domain); err != nil {
				return err
			}

		case feats.Mechanisms != nil && session.State()&StateAuthenticated == 0:
			if err := negotiateSASL(ctx, session, feats.Mechanisms.Mechanism, opts); err != nil {
				return err
			}
			session.SetState(StateAuthenticated)
			session.resetIO()
			if err := session.openStream(ctx, opts.Domain); err != nil {
				return err
			}

		case feats.Bind != nil && session.State()&StateBound == 0:
			if err := negotiateBind(ctx, session, opts.Resource); err != nil {
				return err
			}
			session.SetState(StateBound | StateReady)
			return nil

		default:
			if session.State()&StateAuthenticated != 0 {
				// Authenticated but server advertised no bind feature:
				// nothing left to negotiate.
				session.SetState(StateReady)
				return nil
			}
			return &Error{Kind: KindProtocolViolation, Msg: "server offered no usable stream feature"}
		}
	}
}

func readFeatures(session *Session) (*featureSet, error) {
	for {
		start, err := session.Reader().NextStartElement()
		if err != nil {
			return nil, err
		}
		if start.Name.Local == "features" && start.Name.Space == ns.Stream {
			var feats featureSet
			if err := session.Reader().DecodeElement(&feats, start); err != nil {
				return nil, err
			}
			return &feats, nil
		}
		// Not the features element (e.g. a second <stream:stream> open
		// tag after a restart); skip past it and keep looking.
		if err := session.Reader().Skip(); err != nil {
			return nil, err
		}
	}
}

func negotiateStartTLS(ctx context.Context, session *Session, config *tls.Config) error {
	start := xml.StartElement{Name: xml.Name{Space: ns.TLS, Local: "starttls"}}
	if err := session.Writer().EncodeToken(start); err != nil {
		return err
	}
	if err := session.Writer().EncodeToken(xml.EndElement{Name: start.Name}); err != nil {
		return err
	}

	reply, err := session.Reader().NextStartElement()
	if err != nil {
		return err
	}
	if reply.Name.Local != "proceed" {
		if err := session.Reader().Skip(); err != nil {
			return err
		}
		return &Error{Kind: KindTLS, Msg: "server refused STARTTLS"}
	}
	if err := session.Reader().Skip(); err != nil {
		return err
	}

	return session.Transport().StartTLS(config)
}

func negotiateSASL(ctx context.Context, session *Session, offered []string, opts NegotiateOptions) error {
	mechanisms := buildMechanisms(opts, session.State()&StateSecure != 0)
	negotiator := sasl.NewNegotiator(opts.Creds, mechanisms...)
	mech, err := negotiator.Select(offered)
	if err != nil {
		return err
	}

	initial, err := mech.Start()
	if err != nil {
		return err
	}

	authStart := xml.StartElement{
		Name: xml.Name{Space: ns.SASL, Local: "auth"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "mechanism"}, Value: mech.Name()}},
	}
	if err := session.Writer().EncodeToken(authStart); err != nil {
		return err
	}
	if err := writeSASLPayload(session, initial); err != nil {
		return err
	}
	if err := session.Writer().EncodeToken(xml.EndElement{Name: authStart.Name}); err != nil {
		return err
	}

	for {
		start, err := session.Reader().NextStartElement()
		if err != nil {
			return err
		}

		switch start.Name.Local {
		case "challenge":
			var b64 string
			if err := session.Reader().DecodeElement(&b64, start); err != nil {
				return err
			}
			challenge, err := base64.StdEncoding.DecodeString(b64)
			if err != nil {
				return err
			}
			resp, err := mech.Next(challenge)
			if err != nil {
				return err
			}
			respStart := xml.StartElement{Name: xml.Name{Space: ns.SASL, Local: "response"}}
			if err := session.Writer().EncodeToken(respStart); err != nil {
				return err
			}
			if err := writeSASLPayload(session, resp); err != nil {
				return err
			}
			if err := session.Writer().EncodeToken(xml.EndElement{Name: respStart.Name}); err != nil {
				return err
			}

		case "success":
			var b64 string
			_ = session.Reader().DecodeElement(&b64, start)
			if b64 != "" {
				if final, err := base64.StdEncoding.DecodeString(b64); err == nil {
					_, _ = mech.Next(final)
				}
			}
			return nil

		case "failure":
			cond, _ := session.Reader().NextStartElement()
			condName := "not-authorized"
			if cond != nil {
				condName = cond.Name.Local
			}
			_ = session.Reader().Skip()
			return &Error{Kind: KindAuthenticationFailed, Msg: condName}

		default:
			if err := session.Reader().Skip(); err != nil {
				return err
			}
		}
	}
}

func writeSASLPayload(session *Session, data []byte) error {
	encoded := "="
	if len(data) > 0 {
		encoded = base64.StdEncoding.EncodeToString(data)
	}
	return session.Writer().EncodeToken(xml.CharData(encoded))
}

func buildMechanisms(opts NegotiateOptions, secure bool) []sasl.Mechanism {
	var mechs []sasl.Mechanism
	mechs = append(mechs, sasl.NewSCRAMSHA256(opts.Creds))
	mechs = append(mechs, sasl.NewSCRAMSHA1(opts.Creds))
	mechs = append(mechs, sasl.NewDigestMD5(opts.Creds, opts.Domain.Domain()))
	if secure || opts.AllowInsecurePlain {
		mechs = append(mechs, sasl.NewPlain(opts.Creds))
	}
	return mechs
}

// negotiateBind sends the bind request and reads its reply directly off
// the stream, rather than through Session.IQRequest: IQRequest's reply is
// only delivered by Serve()'s dispatch loop, which isn't running yet this
// early in negotiation, so routing through it here would deadlock forever.
func negotiateBind(ctx context.Context, session *Session, resource string) error {
	req := buildBindIQ(resource)
	if err := session.Send(ctx, req); err != nil {
		return err
	}

	start, err := session.Reader().NextStartElement()
	if err != nil {
		return err
	}
	var resp stanza.IQ
	if err := session.Reader().DecodeElement(&resp, start); err != nil {
		return err
	}
	if resp.Type == stanza.IQError {
		return resp.Error
	}

	var result BindResult
	if err := xml.Unmarshal(resp.Query, &result); err != nil {
		return err
	}
	boundJID, err := jid.Parse(result.JID)
	if err != nil {
		return err
	}
	session.SetLocalAddr(boundJID)
	return nil
}
