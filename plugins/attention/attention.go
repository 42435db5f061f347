// Package attention implements XEP-0224 Attention ("buzz" / nudge).
package attention

import (
	"context"
	"encoding/xml"

	"github.com/anchorwire/xmpp/internal/ns"
	"github.com/anchorwire/xmpp/plugin"
)

const Name = "attention"

// Attention is the message-level <attention/> element requesting the
// recipient bring the conversation to the user's immediate notice.
type Attention struct {
	XMLName xml.Name `xml:"urn:xmpp:attention:0 attention"`
}

// Plugin implements XEP-0224. It carries no state of its own: attention
// requests are fire-and-forget message extensions, so the plugin only
// exposes the element type plus an optional callback for inbound requests.
type Plugin struct {
	params  plugin.InitParams
	onBuzz  func(from string)
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

// OnBuzz registers a callback invoked whenever an inbound message carrying
// an <attention/> element is observed by the caller's message dispatch.
func (p *Plugin) OnBuzz(fn func(from string)) {
	p.onBuzz = fn
}

// HandleIncoming feeds an inbound message's sender to the registered
// callback, if any. Callers invoke this from their message handler once
// they have detected the <attention/> extension on the stanza.
func (p *Plugin) HandleIncoming(from string) {
	if p.onBuzz != nil {
		p.onBuzz(from)
	}
}

func init() { _ = ns.Attention }
