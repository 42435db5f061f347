package xmpp

import (
	"context"
	"encoding/xml"

	"github.com/anchorwire/xmpp/internal/ns"
)

// Negotiator advertises a server's available stream features for the
// session's current state and dispatches each feature's wire negotiation
// when the client selects it.
type Negotiator struct {
	features []StreamFeature

	// Reopen, if set, writes the server's own fresh <stream:stream> open
	// tag after a feature restarts the stream (STARTTLS, SASL success).
	// Negotiate has already rebuilt the session's reader/writer and
	// consumed the client's matching reopen by the time this is called.
	Reopen func(ctx context.Context, session *Session) error
}

// NewNegotiator creates a new stream negotiator.
func NewNegotiator(features ...StreamFeature) *Negotiator {
	return &Negotiator{features: features}
}

// AddFeature adds a stream feature to the negotiator.
func (n *Negotiator) AddFeature(f StreamFeature) {
	n.features = append(n.features, f)
}

// Features returns the features available for the given session state.
func (n *Negotiator) Features(state SessionState) []StreamFeature {
	var available []StreamFeature
	for _, f := range n.features {
		if f.Necessary != 0 && (state&f.Necessary) != f.Necessary {
			continue
		}
		if f.Prohibited != 0 && (state&f.Prohibited) != 0 {
			continue
		}
		available = append(available, f)
	}
	return available
}

// writeFeaturesList writes the <stream:features/> element advertising
// every feature in available.
func (n *Negotiator) writeFeaturesList(ctx context.Context, session *Session, available []StreamFeature) error {
	start := xml.StartElement{Name: xml.Name{Space: ns.Stream, Local: "features"}}
	if err := session.Writer().EncodeToken(start); err != nil {
		return err
	}
	for _, f := range available {
		if err := f.List(ctx, session.Writer()); err != nil {
			return err
		}
	}
	return session.Writer().EncodeToken(xml.EndElement{Name: start.Name})
}

// match returns the feature in available whose Name.Local matches name's,
// or nil. Matching on local name alone (rather than the full
// space-qualified name) follows Session.Serve's own stanza dispatch,
// since resource binding's response arrives wrapped in a plain <iq/>
// rather than under the bind namespace itself.
func match(available []StreamFeature, name xml.Name) *StreamFeature {
	for i := range available {
		if available[i].Name.Local == name.Local {
			return &available[i]
		}
	}
	return nil
}

// Negotiate drives the server side of stream feature negotiation: it
// repeatedly advertises the features available for the session's current
// state, reads the client's next top-level stream element, and dispatches
// it to the matching feature's Parse/Negotiate pair. It returns once no
// feature remains available for the resulting state (the session is then
// considered ready), or on the first negotiation error.
func (n *Negotiator) Negotiate(ctx context.Context, session *Session) error {
	for {
		available := n.Features(session.State())
		if len(available) == 0 {
			session.SetState(StateReady)
			return nil
		}

		if err := n.writeFeaturesList(ctx, session, available); err != nil {
			return err
		}

		start, err := session.Reader().NextStartElement()
		if err != nil {
			return err
		}

		feat := match(available, start.Name)
		if feat == nil {
			if err := session.Reader().Skip(); err != nil {
				return err
			}
			continue
		}

		data, err := feat.Parse(ctx, session.Reader(), start)
		if err != nil {
			return err
		}
		newState, err := feat.Negotiate(ctx, session, data)
		if err != nil {
			return err
		}
		session.SetState(newState)

		if newState&(StateSecure|StateAuthenticated) != 0 {
			// STARTTLS and SASL both restart the XML stream: the
			// transport (or the authenticated identity) changed
			// under the existing reader/writer, so both must be
			// rebuilt, the client's fresh stream open consumed, and
			// the server's own stream reopened before features are
			// re-advertised.
			session.resetIO()
			if _, err := session.Reader().NextStartElement(); err != nil {
				return err
			}
			if n.Reopen != nil {
				if err := n.Reopen(ctx, session); err != nil {
					return err
				}
			}
		}
	}
}
