// Package privacy implements jabber:iq:privacy privacy lists.
package privacy

import (
	"context"
	"encoding/xml"
	"sync"

	"github.com/anchorwire/xmpp/internal/ns"
	"github.com/anchorwire/xmpp/plugin"
)

const Name = "privacy"

// Action is the disposition applied when an Item matches.
type Action string

const (
	Allow Action = "allow"
	Deny  Action = "deny"
)

// Granularity selects what a rule's iq/message/presence-in/presence-out
// flags restrict, per RFC 6121 §12.
type Granularity struct {
	Message      bool `xml:"message,omitempty"`
	IQ           bool `xml:"iq,omitempty"`
	PresenceIn   bool `xml:"presence-in,omitempty"`
	PresenceOut  bool `xml:"presence-out,omitempty"`
}

// Item is a single ordered rule within a privacy list.
type Item struct {
	XMLName     xml.Name `xml:"item"`
	Type        string   `xml:"type,attr,omitempty"` // jid | group | subscription
	Value       string   `xml:"value,attr,omitempty"`
	Action      Action   `xml:"action,attr"`
	Order       uint32   `xml:"order,attr"`
	Granularity
}

// List is a named, ordered set of Items.
type List struct {
	XMLName xml.Name `xml:"list"`
	Name    string   `xml:"name,attr"`
	Items   []Item   `xml:"item"`
}

// Query is the jabber:iq:privacy payload, in any of its four shapes:
// list retrieval, list-names retrieval, active/default declaration.
type Query struct {
	XMLName xml.Name `xml:"jabber:iq:privacy query"`
	Lists   []List   `xml:"list"`
	Active  *Default `xml:"active"`
	Default *Default `xml:"default"`
}

// Default names the active or default list, or declares none selected
// when Name is empty (an empty <active/> clears the active list).
type Default struct {
	XMLName xml.Name `xml:"-"`
	Name    string   `xml:"name,attr,omitempty"`
}

// Plugin tracks privacy lists and the active/default selection for the
// local session. It has no network-facing push logic of its own; callers
// drive get_lists/set_list/activate/default via IQ round-trips using the
// session's request/response machinery and record results here.
type Plugin struct {
	mu      sync.RWMutex
	lists   map[string]List
	active  string
	dflt    string
	params  plugin.InitParams
}

func New() *Plugin {
	return &Plugin{lists: make(map[string]List)}
}

func (p *Plugin) Name() string    { return Name }
func (p *Plugin) Version() string { return "1.0.0" }

func (p *Plugin) Initialize(_ context.Context, params plugin.InitParams) error {
	p.params = params
	return nil
}

func (p *Plugin) Close() error           { return nil }
func (p *Plugin) Dependencies() []string { return nil }

// SetList stores (or replaces) a named privacy list in the local cache.
func (p *Plugin) SetList(l List) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lists[l.Name] = l
}

// RemoveList deletes a named privacy list from the local cache.
func (p *Plugin) RemoveList(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.lists, name)
	if p.active == name {
		p.active = ""
	}
	if p.dflt == name {
		p.dflt = ""
	}
}

// List returns a cached privacy list by name.
func (p *Plugin) List(name string) (List, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	l, ok := p.lists[name]
	return l, ok
}

// Names returns every cached privacy list name.
func (p *Plugin) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.lists))
	for n := range p.lists {
		names = append(names, n)
	}
	return names
}

// SetActive records which list is active for this session (empty clears it).
func (p *Plugin) SetActive(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = name
}

// SetDefault records which list is the account-wide default (empty clears it).
func (p *Plugin) SetDefault(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dflt = name
}

// Active returns the name of the active list, if any.
func (p *Plugin) Active() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

// Default returns the name of the default list, if any.
func (p *Plugin) Default() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dflt
}

// Blocks evaluates the active list against a bare/full JID and stanza
// granularity, returning true when the first matching rule, in ascending
// order, denies it. An unset active list blocks nothing.
func (p *Plugin) Blocks(target string, kind string) bool {
	p.mu.RLock()
	list, ok := p.lists[p.active]
	p.mu.RUnlock()
	if !ok {
		return false
	}
	items := append([]Item(nil), list.Items...)
	for i := range items {
		for j := i + 1; j < len(items); j++ {
			if items[j].Order < items[i].Order {
				items[i], items[j] = items[j], items[i]
			}
		}
	}
	for _, it := range items {
		if it.Type == "jid" && it.Value != target {
			continue
		}
		if !matchesGranularity(it.Granularity, kind) {
			continue
		}
		return it.Action == Deny
	}
	return false
}

func matchesGranularity(g Granularity, kind string) bool {
	if !g.Message && !g.IQ && !g.PresenceIn && !g.PresenceOut {
		return true // no granularity attrs set: rule applies to all stanza kinds
	}
	switch kind {
	case "message":
		return g.Message
	case "iq":
		return g.IQ
	case "presence-in":
		return g.PresenceIn
	case "presence-out":
		return g.PresenceOut
	}
	return false
}

func init() { _ = ns.Privacy }
