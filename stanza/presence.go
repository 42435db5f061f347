package stanza

import (
	"encoding/xml"

	"github.com/anchorwire/xmpp/internal/ns"
)

// Presence type constants.
const (
	PresenceAvailable    = ""
	PresenceUnavailable  = "unavailable"
	PresenceSubscribe    = "subscribe"
	PresenceSubscribed   = "subscribed"
	PresenceUnsubscribe  = "unsubscribe"
	PresenceUnsubscribed = "unsubscribed"
	PresenceProbe        = "probe"
	PresenceError        = "error"
)

// Show values for presence.
const (
	ShowAway = "away"
	ShowChat = "chat"
	ShowDND  = "dnd"
	ShowXA   = "xa"
)

// StatusText is one language-tagged <status/> element. RFC 6121 §4.7.2.3
// allows repeating it once per xml:lang.
type StatusText struct {
	XMLName xml.Name `xml:"status"`
	Lang    string   `xml:"xml:lang,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

// Presence represents an XMPP presence stanza.
type Presence struct {
	Header
	XMLName    xml.Name     `xml:"presence"`
	Show       string       `xml:"show,omitempty"`
	Statuses   []StatusText `xml:"status"`
	Priority   int8         `xml:"priority,omitempty"`
	Error      *StanzaError `xml:"error,omitempty"`
	Extensions []Extension  `xml:",any,omitempty"`
}

// Status returns the first status text carrying no xml:lang, or the empty
// string if there is none. Most presences carry at most one.
func (p *Presence) Status() string {
	for _, s := range p.Statuses {
		if s.Lang == "" {
			return s.Text
		}
	}
	return ""
}

// MUCUser returns the "http://jabber.org/protocol/muc#user" extension
// element, if present.
func (p *Presence) MUCUser() *Extension {
	for i := range p.Extensions {
		if p.Extensions[i].XMLName.Space == "http://jabber.org/protocol/muc#user" {
			return &p.Extensions[i]
		}
	}
	return nil
}

// NewPresence creates a new Presence with the given type.
func NewPresence(typ string) *Presence {
	return &Presence{
		Header: Header{
			XMLName: xml.Name{Space: ns.Client, Local: "presence"},
			ID:      GenerateID(),
			Type:    typ,
		},
	}
}

// StanzaType returns "presence".
func (p *Presence) StanzaType() string {
	return "presence"
}
