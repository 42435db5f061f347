package muc

import (
	"context"
	"encoding/xml"
	"testing"

	"github.com/anchorwire/xmpp/internal/ns"
	"github.com/anchorwire/xmpp/jid"
	"github.com/anchorwire/xmpp/plugin"
	"github.com/anchorwire/xmpp/stanza"
	"github.com/anchorwire/xmpp/storage/memory"
)

func TestPluginJoinSendsPresenceWithMucX(t *testing.T) {
	ctx := context.Background()
	p := New()

	var sent any
	if err := p.Initialize(ctx, plugin.InitParams{
		Storage: memory.New(),
		SendElement: func(_ context.Context, v any) error {
			sent = v
			return nil
		},
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if err := p.Join(ctx, "room@conference.example.com", "alice", "secret", nil); err != nil {
		t.Fatalf("Join: %v", err)
	}

	pres, ok := sent.(*stanza.Presence)
	if !ok {
		t.Fatalf("expected *stanza.Presence, got %T", sent)
	}
	if pres.To.String() != "room@conference.example.com/alice" {
		t.Fatalf("To = %q, want room@conference.example.com/alice", pres.To.String())
	}
	if len(pres.Extensions) != 1 {
		t.Fatalf("expected 1 extension, got %d", len(pres.Extensions))
	}

	room, ok := p.GetRoom(ctx, "room@conference.example.com")
	if !ok || !room.Joined || room.Nick != "alice" {
		t.Fatalf("GetRoom: expected joined room with nick alice, got %+v (ok=%v)", room, ok)
	}
}

func TestObservePresenceUpdatesOccupantCache(t *testing.T) {
	ctx := context.Background()
	p := New()
	if err := p.Initialize(ctx, plugin.InitParams{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	from, err := jid.Parse("room@conference.example.com/bob")
	if err != nil {
		t.Fatalf("jid.Parse: %v", err)
	}

	pres := stanza.NewPresence(stanza.PresenceAvailable)
	pres.From = from
	pres.Extensions = append(pres.Extensions, stanza.Extension{
		XMLName: xml.Name{Space: ns.MUCUser, Local: "x"},
		Inner:   []byte(`<item affiliation="member" role="participant"/><status code="110"/>`),
	})

	ux, ok := p.ObservePresence(pres)
	if !ok {
		t.Fatal("ObservePresence: expected a MUC presence to be recognized")
	}
	if !ux.StatusSet().Has(CodeFullJIDVisible) {
		t.Fatal("StatusSet: expected code 110 to be present")
	}

	room, ok := p.GetRoom(ctx, "room@conference.example.com")
	if !ok {
		t.Fatal("GetRoom: expected room to exist after occupant presence")
	}
	occ, ok := room.Occupants["bob"]
	if !ok {
		t.Fatal("expected occupant bob to be cached")
	}
	if occ.Affiliation != AffMember || occ.Role != RoleParticipant {
		t.Fatalf("occupant = %+v, want affiliation=member role=participant", occ)
	}

	// Unavailable presence removes the occupant.
	pres.Type = stanza.PresenceUnavailable
	if _, ok := p.ObservePresence(pres); !ok {
		t.Fatal("ObservePresence: expected unavailable presence to still be recognized")
	}
	room, _ = p.GetRoom(ctx, "room@conference.example.com")
	if _, ok := room.Occupants["bob"]; ok {
		t.Fatal("expected occupant bob to be removed on unavailable presence")
	}
}

func TestObserveSubject(t *testing.T) {
	ctx := context.Background()
	p := New()
	if err := p.Initialize(ctx, plugin.InitParams{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	from, err := jid.Parse("room@conference.example.com/alice")
	if err != nil {
		t.Fatalf("jid.Parse: %v", err)
	}

	msg := stanza.NewMessage(stanza.MessageGroupchat)
	msg.From = from
	msg.Subject = "New topic"

	room, subject, ok := p.ObserveSubject(msg)
	if !ok {
		t.Fatal("ObserveSubject: expected a subject-only message to be recognized")
	}
	if room != "room@conference.example.com" || subject != "New topic" {
		t.Fatalf("got room=%q subject=%q", room, subject)
	}

	cached, ok := p.GetRoom(ctx, "room@conference.example.com")
	if !ok || cached.Subject != "New topic" {
		t.Fatalf("expected cached subject to be updated, got %+v", cached)
	}

	// A message carrying a body alongside type=groupchat is not a
	// subject change.
	msg.Body = "hello"
	if _, _, ok := p.ObserveSubject(msg); ok {
		t.Fatal("ObserveSubject: a message with a body must not be treated as a subject change")
	}
}

func TestObserveDirectInvite(t *testing.T) {
	p := New()
	if err := p.Initialize(context.Background(), plugin.InitParams{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	msg := stanza.NewMessage("")
	msg.Extensions = append(msg.Extensions, stanza.Extension{
		XMLName: xml.Name{Space: ns.MUCInvite, Local: "x"},
		Attrs: []xml.Attr{
			{Name: xml.Name{Local: "jid"}, Value: "room@conference.example.com"},
			{Name: xml.Name{Local: "reason"}, Value: "let's talk"},
		},
	})

	di, ok := p.ObserveDirectInvite(msg)
	if !ok {
		t.Fatal("ObserveDirectInvite: expected a direct invitation to be recognized")
	}
	if di.JID != "room@conference.example.com" || di.Reason != "let's talk" {
		t.Fatalf("got %+v", di)
	}
}
