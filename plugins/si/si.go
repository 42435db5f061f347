// Package si implements XEP-0095 Stream Initiation, the generic
// feature-negotiation handshake that XEP-0096 (SI File Transfer) profiles.
package si

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/anchorwire/xmpp/internal/ns"
	"github.com/anchorwire/xmpp/jid"
	"github.com/anchorwire/xmpp/plugin"
	"github.com/anchorwire/xmpp/plugins/form"
	"github.com/anchorwire/xmpp/stanza"
)

const Name = "si"

// FeatureNeg wraps the feature negotiation form embedded in an SI request.
type FeatureNeg struct {
	XMLName xml.Name  `xml:"http://jabber.org/protocol/feature-neg feature"`
	Form    form.Form `xml:"x"`
}

// SI is the <si/> element exchanged to initiate a stream, profiled by
// a specific content payload (e.g. the SI file-transfer "file" element).
type SI struct {
	XMLName xml.Name    `xml:"http://jabber.org/protocol/si si"`
	ID      string      `xml:"id,attr"`
	MIMEType string     `xml:"mime-type,attr,omitempty"`
	Profile string      `xml:"profile,attr"`
	Content []byte      `xml:",innerxml"`
	Feature FeatureNeg  `xml:"feature"`
}

// Plugin implements XEP-0095 feature negotiation. Profiles (file transfer,
// etc.) build their request payload around SI and call Offer/Accept/Decline
// to drive the handshake; this package owns only the negotiation envelope.
type Plugin struct {
	params plugin.InitParams
}

func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Name() string    { return Name }
func (p *Plugin) Version() string { return "1.0.0" }

func (p *Plugin) Initialize(_ context.Context, params plugin.InitParams) error {
	p.params = params
	return nil
}

func (p *Plugin) Close() error           { return nil }
func (p *Plugin) Dependencies() []string { return nil }

// Offer sends a stream-initiation request and blocks for the peer's
// result (an accepted feature-negotiation form) or error.
func (p *Plugin) Offer(ctx context.Context, to, sid, profile, mimeType string, content []byte, methods []string) (*form.Form, error) {
	if p.params.IQRequest == nil {
		return nil, fmt.Errorf("si: session does not support IQ requests")
	}
	toJID, err := jid.Parse(to)
	if err != nil {
		return nil, err
	}

	f := form.NewForm(form.TypeForm, "")
	f.AddField(form.Field{Var: "stream-method", Type: form.FieldListSingle, Options: optionsOf(methods)})

	payload := SI{
		ID:       sid,
		MIMEType: mimeType,
		Profile:  profile,
		Content:  content,
		Feature:  FeatureNeg{Form: *f},
	}
	body, err := xml.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req := stanza.NewIQ(stanza.IQSet)
	req.Header.To = toJID
	req.Query = body

	resp, err := p.params.IQRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	var result SI
	if err := xml.Unmarshal(resp.Query, &result); err != nil {
		return nil, err
	}
	return &result.Feature.Form, nil
}

// Decline sends a stream-initiation rejection (not-acceptable).
func (p *Plugin) Decline(ctx context.Context, req *stanza.IQ) error {
	if p.params.SendElement == nil {
		return fmt.Errorf("si: session does not support sending")
	}
	resp := req.ErrorIQ(stanza.NewStanzaError(stanza.ErrorTypeCancel, stanza.ErrorNotAcceptable, ""))
	return p.params.SendElement(ctx, resp)
}

func optionsOf(methods []string) []form.Option {
	opts := make([]form.Option, 0, len(methods))
	for _, m := range methods {
		opts = append(opts, form.Option{Value: m})
	}
	return opts
}

func init() { _ = ns.SI; _ = ns.SIFileTransfer }
