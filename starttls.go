package xmpp

import (
	"context"
	"crypto/tls"
	"encoding/xml"

	"github.com/anchorwire/xmpp/internal/ns"
	xmppxml "github.com/anchorwire/xmpp/xml"
)

// StartTLS returns a StreamFeature for STARTTLS negotiation.
func StartTLS(config *tls.Config) StreamFeature {
	return StreamFeature{
		Name:       xml.Name{Space: ns.TLS, Local: "starttls"},
		Required:   true,
		Prohibited: StateSecure,
		List: func(ctx context.Context, w *xmppxml.StreamWriter) error {
			start := xml.StartElement{
				Name: xml.Name{Space: ns.TLS, Local: "starttls"},
			}
			if err := w.EncodeToken(start); err != nil {
				return err
			}
			req := xml.StartElement{Name: xml.Name{Local: "required"}}
			if err := w.EncodeToken(req); err != nil {
				return err
			}
			if err := w.EncodeToken(xml.EndElement{Name: req.Name}); err != nil {
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
			if err := session.Transport().StartTLS(config); err != nil {
				return 0, err
			}
			return StateSecure, nil
		},
	}
}
