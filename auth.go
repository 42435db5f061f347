package xmpp

import (
	"context"
	"encoding/xml"

	"github.com/anchorwire/xmpp/internal/ns"
	xmppxml "github.com/anchorwire/xmpp/xml"
)

// SASLFeature returns a StreamFeature for SASL authentication.
func SASLFeature(mechanisms []string) StreamFeature {
	return StreamFeature{
		Name:       xml.Name{Space: ns.SASL, Local: "mechanisms"},
		Required:   true,
		Necessary:  StateSecure,
		Prohibited: StateAuthenticated,
		List: func(ctx context.Context, w *xmppxml.StreamWriter) error {
			start := xml.StartElement{
				Name: xml.Name{Space: ns.SASL, Local: "mechanisms"},
			}
			if err := w.EncodeToken(start); err != nil {
				return err
			}
			for _, mech := range mechanisms {
				mechStart := xml.StartElement{Name: xml.Name{Space: ns.SASL, Local: "mechanism"}}
				if err := w.EncodeToken(mechStart); err != nil {
					return err
				}
				if err := w.EncodeToken(xml.CharData(mech)); err != nil {
					return err
				}
				if err := w.EncodeToken(xml.EndElement{Name: mechStart.Name}); err != nil {
					return err
				}
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
			// SASL negotiation handled by the client/server layer
			return StateAuthenticated, nil
		},
	}
}
