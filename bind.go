package xmpp

import (
	"context"
	"encoding/xml"

	"github.com/anchorwire/xmpp/internal/ns"
	"github.com/anchorwire/xmpp/stanza"
	xmppxml "github.com/anchorwire/xmpp/xml"
)

// BindFeature returns a StreamFeature for resource binding.
func BindFeature() StreamFeature {
	return StreamFeature{
		Name:       xml.Name{Space: ns.Bind, Local: "bind"},
		Required:   true,
		Necessary:  StateAuthenticated,
		Prohibited: StateBound,
		List: func(ctx context.Context, w *xmppxml.StreamWriter) error {
			start := xml.StartElement{
				Name: xml.Name{Space: ns.Bind, Local: "bind"},
			}
			if err := w.EncodeToken(start); err != nil {
				return err
			}
			return w.EncodeToken(xml.EndElement{Name: start.Name})
		},
		Parse: func(ctx context.Context, r *xmppxml.StreamReader, start *xml.StartElement) (any, error) {
			if err := r.Skip(); err != nil {
				return nil, err
			}
			return nil, nil
		},
		Negotiate: func(ctx context.Context, session *Session, data any) (SessionState, error) {
			// Resource binding handled by the client/server layer
			return StateBound | StateReady, nil
		},
	}
}

// BindRequest represents a resource bind request.
type BindRequest struct {
	XMLName  xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-bind bind"`
	Resource string   `xml:"resource,omitempty"`
}

// BindResult represents a resource bind result.
type BindResult struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:xmpp-bind bind"`
	JID     string   `xml:"jid"`
}

// buildBindIQ builds the IQ-set that requests resource binding, optionally
// asking for a specific resource (the server assigns one if resource is
// empty).
func buildBindIQ(resource string) *stanza.IQ {
	req := stanza.NewIQ(stanza.IQSet)
	body, err := xml.Marshal(BindRequest{Resource: resource})
	if err != nil {
		// BindRequest marshals unconditionally; only reachable on OOM.
		panic(err)
	}
	req.Query = body
	return req
}
