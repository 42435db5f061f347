package im

import "github.com/anchorwire/xmpp/stanza"

// IQFilter inspects an inbound IQ. Returning true consumes it: the chain
// stops and no typed event is raised for it.
type IQFilter func(iq *stanza.IQ) bool

// MessageFilter inspects an inbound message the same way.
type MessageFilter func(msg *stanza.Message) bool

// PresenceFilter inspects an inbound presence the same way.
type PresenceFilter func(pres *stanza.Presence) bool

// IQOutFilter mutates an outbound IQ in place. It cannot abort the send.
type IQOutFilter func(iq *stanza.IQ)

// MessageOutFilter mutates an outbound message in place.
type MessageOutFilter func(msg *stanza.Message)

// PresenceOutFilter mutates an outbound presence in place.
type PresenceOutFilter func(pres *stanza.Presence)

// chains holds the input/output chain for each stanza kind. Filters run in
// extension-load order; AddX appends are expected to happen in that order.
type chains struct {
	iqIn        []IQFilter
	iqOut       []IQOutFilter
	messageIn   []MessageFilter
	messageOut  []MessageOutFilter
	presenceIn  []PresenceFilter
	presenceOut []PresenceOutFilter
}

func (c *chains) addIQIn(f IQFilter)                 { c.iqIn = append(c.iqIn, f) }
func (c *chains) addIQOut(f IQOutFilter)              { c.iqOut = append(c.iqOut, f) }
func (c *chains) addMessageIn(f MessageFilter)        { c.messageIn = append(c.messageIn, f) }
func (c *chains) addMessageOut(f MessageOutFilter)    { c.messageOut = append(c.messageOut, f) }
func (c *chains) addPresenceIn(f PresenceFilter)      { c.presenceIn = append(c.presenceIn, f) }
func (c *chains) addPresenceOut(f PresenceOutFilter)  { c.presenceOut = append(c.presenceOut, f) }

func (c *chains) runIQIn(iq *stanza.IQ) bool {
	for _, f := range c.iqIn {
		if f(iq) {
			return true
		}
	}
	return false
}

func (c *chains) runMessageIn(msg *stanza.Message) bool {
	for _, f := range c.messageIn {
		if f(msg) {
			return true
		}
	}
	return false
}

func (c *chains) runPresenceIn(pres *stanza.Presence) bool {
	for _, f := range c.presenceIn {
		if f(pres) {
			return true
		}
	}
	return false
}

func (c *chains) runIQOut(iq *stanza.IQ) {
	for _, f := range c.iqOut {
		f(iq)
	}
}

func (c *chains) runMessageOut(msg *stanza.Message) {
	for _, f := range c.messageOut {
		f(msg)
	}
}

func (c *chains) runPresenceOut(pres *stanza.Presence) {
	for _, f := range c.presenceOut {
		f(pres)
	}
}
