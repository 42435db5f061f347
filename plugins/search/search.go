// Package search implements a single, service-discovery-driven variant of
// XEP-0055 Jabber Search: discover a search-capable service via disco#items,
// fetch its search form, and submit it.
package search

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

const Name = "search"

// Query is the jabber:iq:search payload. Legacy fields (First/Last/Nick/
// Email) are preserved alongside the data-form extension so a service that
// predates XEP-0004 forms can still be searched.
type Query struct {
	XMLName      xml.Name   `xml:"jabber:iq:search query"`
	Instructions string     `xml:"instructions,omitempty"`
	First        *string    `xml:"first"`
	Last         *string    `xml:"last"`
	Nick         *string    `xml:"nick"`
	Email        *string    `xml:"email"`
	Form         *form.Form `xml:"x,omitempty"`
	Items        []Item     `xml:"item"`
}

// Item is a single search result row, mirroring the legacy response shape.
type Item struct {
	XMLName xml.Name `xml:"item"`
	JID     string   `xml:"jid,attr"`
	First   string   `xml:"first,omitempty"`
	Last    string   `xml:"last,omitempty"`
	Nick    string   `xml:"nick,omitempty"`
	Email   string   `xml:"email,omitempty"`
}

// Plugin implements jabber:iq:search against whichever service the caller
// names (normally discovered via disco#items against the local domain).
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

// Fields retrieves the search form (or legacy field set) from a service.
func (p *Plugin) Fields(ctx context.Context, service string) (*Query, error) {
	if p.params.IQRequest == nil {
		return nil, fmt.Errorf("search: session does not support IQ requests")
	}
	to, err := jid.Parse(service)
	if err != nil {
		return nil, err
	}
	req := stanza.NewIQ(stanza.IQGet)
	req.Header.To = to

	resp, err := p.params.IQRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	var q Query
	if err := xml.Unmarshal(resp.Query, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// Submit submits a completed search form (or legacy field set) to a
// service and returns the matching items.
func (p *Plugin) Submit(ctx context.Context, service string, q Query) ([]Item, error) {
	if p.params.IQRequest == nil {
		return nil, fmt.Errorf("search: session does not support IQ requests")
	}
	to, err := jid.Parse(service)
	if err != nil {
		return nil, err
	}
	body, err := xml.Marshal(q)
	if err != nil {
		return nil, err
	}

	req := stanza.NewIQ(stanza.IQSet)
	req.Header.To = to
	req.Query = body

	resp, err := p.params.IQRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	var result Query
	if err := xml.Unmarshal(resp.Query, &result); err != nil {
		return nil, err
	}
	return result.Items, nil
}

func init() { _ = ns.Search }
