package im

import (
	"testing"

	"github.com/anchorwire/xmpp/stanza"
)

func TestChainsRunIQInStopsAtFirstConsumer(t *testing.T) {
	t.Parallel()
	var c chains
	var order []string
	c.addIQIn(func(*stanza.IQ) bool {
		order = append(order, "first")
		return false
	})
	c.addIQIn(func(*stanza.IQ) bool {
		order = append(order, "second")
		return true
	})
	c.addIQIn(func(*stanza.IQ) bool {
		order = append(order, "third")
		return true
	})

	if !c.runIQIn(stanza.NewIQ(stanza.IQGet)) {
		t.Fatal("runIQIn = false, want true once a filter consumes the stanza")
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("filter order = %v, want [first second]", order)
	}
}

func TestChainsRunMessageInNoFiltersReturnsFalse(t *testing.T) {
	t.Parallel()
	var c chains
	if c.runMessageIn(stanza.NewMessage(stanza.MessageChat)) {
		t.Fatal("runMessageIn with no registered filters should return false")
	}
}

func TestChainsRunPresenceOutMutatesInPlace(t *testing.T) {
	t.Parallel()
	var c chains
	c.addPresenceOut(func(p *stanza.Presence) { p.Priority = 5 })
	c.addPresenceOut(func(p *stanza.Presence) { p.Show = "away" })

	pres := &stanza.Presence{}
	c.runPresenceOut(pres)
	if pres.Priority != 5 || pres.Show != "away" {
		t.Fatalf("presence = %+v, want Priority=5 Show=away", pres)
	}
}
