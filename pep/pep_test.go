package pep

import (
	"context"
	"encoding/xml"
	"testing"

	"github.com/anchorwire/xmpp/internal/ns"
	"github.com/anchorwire/xmpp/jid"
	"github.com/anchorwire/xmpp/plugin"
	"github.com/anchorwire/xmpp/plugins/disco"
	"github.com/anchorwire/xmpp/plugins/pubsub"
	"github.com/anchorwire/xmpp/stanza"
)

func TestMoodRoundTrips(t *testing.T) {
	want := Mood{Value: MoodHappy, Text: "just landed a release"}
	body, err := xml.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Mood
	if err := xml.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestActivityRoundTrips(t *testing.T) {
	want := Activity{General: ActivityDoingChores, Specific: "cleaning", Text: "tidying the workshop"}
	body, err := xml.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Activity
	if err := xml.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestInitializeAdvertisesNotifyFeatures(t *testing.T) {
	ctx := context.Background()
	mgr := plugin.NewManager()
	d := disco.New()
	p := New()
	if err := mgr.Register(d); err != nil {
		t.Fatalf("register disco: %v", err)
	}
	if err := mgr.Register(p); err != nil {
		t.Fatalf("register pep: %v", err)
	}
	if err := mgr.Initialize(ctx, plugin.InitParams{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	features := d.Info().Features
	want := map[string]bool{ns.Mood + "+notify": false, ns.Activity + "+notify": false, ns.Tune + "+notify": false}
	for _, f := range features {
		if _, ok := want[f.Var]; ok {
			want[f.Var] = true
		}
	}
	for feature, seen := range want {
		if !seen {
			t.Fatalf("expected disco feature %q to be advertised", feature)
		}
	}
}

func TestPublishMoodSendsPubSubPublishToOwnBareJID(t *testing.T) {
	ctx := context.Background()
	p := New()

	var sent *stanza.IQ
	if err := p.Initialize(ctx, plugin.InitParams{
		IQRequest: func(_ context.Context, req *stanza.IQ) (*stanza.IQ, error) {
			sent = req
			return req.ResultIQ(), nil
		},
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if err := p.PublishMood(ctx, &Mood{Value: MoodExcited}); err != nil {
		t.Fatalf("PublishMood: %v", err)
	}
	if sent == nil {
		t.Fatal("expected an IQ to be sent")
	}
	if !sent.To.IsZero() {
		t.Fatalf("To = %q, want zero (PEP publishes to the own bare JID implicitly)", sent.To)
	}

	var payload pubsub.PubSub
	if err := xml.Unmarshal(sent.Query, &payload); err != nil {
		t.Fatalf("decode pubsub payload: %v", err)
	}
	if payload.Publish == nil || payload.Publish.Node != ns.Mood {
		t.Fatalf("Publish = %+v, want node %q", payload.Publish, ns.Mood)
	}
	if len(payload.Publish.Items) != 1 {
		t.Fatalf("Items = %d, want 1", len(payload.Publish.Items))
	}

	var mood Mood
	if err := xml.Unmarshal(payload.Publish.Items[0].Payload, &mood); err != nil {
		t.Fatalf("decode mood item: %v", err)
	}
	if mood.Value != MoodExcited {
		t.Fatalf("Value = %q, want %q", mood.Value, MoodExcited)
	}
}

func TestPublishMoodNilRetracts(t *testing.T) {
	ctx := context.Background()
	p := New()

	var sent *stanza.IQ
	if err := p.Initialize(ctx, plugin.InitParams{
		IQRequest: func(_ context.Context, req *stanza.IQ) (*stanza.IQ, error) {
			sent = req
			return req.ResultIQ(), nil
		},
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if err := p.PublishMood(ctx, nil); err != nil {
		t.Fatalf("PublishMood(nil): %v", err)
	}
	var payload pubsub.PubSub
	if err := xml.Unmarshal(sent.Query, &payload); err != nil {
		t.Fatalf("decode pubsub payload: %v", err)
	}
	if payload.Retract == nil || payload.Retract.Node != ns.Mood {
		t.Fatalf("Retract = %+v, want node %q", payload.Retract, ns.Mood)
	}
}

func TestObserveMessageDispatchesMoodEvent(t *testing.T) {
	p := New()
	var gotFrom jid.JID
	var gotMood *Mood
	p.OnMood(func(from jid.JID, mood *Mood) {
		gotFrom = from
		gotMood = mood
	})

	moodBody, err := xml.Marshal(Mood{Value: MoodCalm})
	if err != nil {
		t.Fatalf("marshal mood: %v", err)
	}
	itemsBody, err := xml.Marshal(pubsub.EventItems{Node: ns.Mood, Items: []pubsub.PubItem{{ID: "current", Payload: moodBody}}})
	if err != nil {
		t.Fatalf("marshal event items: %v", err)
	}

	from := jid.MustParse("juliet@capulet.lit")
	msg := stanza.NewMessage(stanza.MessageHeadline)
	msg.Header.From = from
	msg.Extensions = []stanza.Extension{{
		XMLName: xml.Name{Space: ns.PubSubEvent, Local: "event"},
		Inner:   itemsBody,
	}}

	if !p.ObserveMessage(msg) {
		t.Fatal("ObserveMessage: expected the event to be recognized")
	}
	if gotMood == nil || gotMood.Value != MoodCalm {
		t.Fatalf("mood = %+v, want Value %q", gotMood, MoodCalm)
	}
	if !gotFrom.Equal(from) {
		t.Fatalf("from = %q, want %q", gotFrom, from)
	}
}

func TestObserveMessageIgnoresUnrelatedExtension(t *testing.T) {
	p := New()
	msg := stanza.NewMessage(stanza.MessageNormal)
	msg.Extensions = []stanza.Extension{{XMLName: xml.Name{Space: "jabber:x:conference", Local: "x"}}}
	if p.ObserveMessage(msg) {
		t.Fatal("ObserveMessage: expected an unrelated extension to be ignored")
	}
}
