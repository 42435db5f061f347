// Package pep implements XEP-0163 Personal Eventing Protocol on top of the
// wire types in plugins/pubsub, plus the three representative personal-event
// payloads this module ships typed support for: XEP-0107 User Mood,
// XEP-0108 User Activity, and XEP-0118 User Tune.
//
// A PEP node is an ordinary pubsub node hosted at the user's own bare JID;
// publishing to it and receiving its event notifications needs no pubsub
// server-side storage, so this package only borrows pubsub's IQ/message
// payload shapes and drives them itself over plugin.InitParams.
package pep

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"sync"

	"github.com/anchorwire/xmpp/internal/ns"
	"github.com/anchorwire/xmpp/jid"
	"github.com/anchorwire/xmpp/plugin"
	"github.com/anchorwire/xmpp/plugins/disco"
	"github.com/anchorwire/xmpp/plugins/pubsub"
	"github.com/anchorwire/xmpp/stanza"
)

const Name = "pep"

// Mood values defined by XEP-0107 §3.2. Not exhaustive; any local-name
// element is accepted on decode.
const (
	MoodHappy   = "happy"
	MoodSad     = "sad"
	MoodAngry   = "angry"
	MoodExcited = "excited"
	MoodCalm    = "calm"
	MoodBored   = "bored"
)

// Activity general categories defined by XEP-0108 §4.
const (
	ActivityDoingChores  = "doing_chores"
	ActivityRelaxing     = "relaxing"
	ActivityTalking      = "talking"
	ActivityTraveling    = "traveling"
	ActivityWorking      = "working"
	ActivityUndefinedGen = "undefined"
)

// Mood is a XEP-0107 user mood event: Value is the mood element's local
// name (e.g. "happy"), Text is the optional free-text elaboration.
type Mood struct {
	Value string
	Text  string
}

// MarshalXML encodes Value as the child element name, per XEP-0107's
// one-element-per-mood wire format.
func (m Mood) MarshalXML(enc *xml.Encoder, start xml.StartElement) error {
	start.Name = xml.Name{Space: ns.Mood, Local: "mood"}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if m.Value != "" {
		valName := xml.Name{Local: m.Value}
		if err := enc.EncodeToken(xml.StartElement{Name: valName}); err != nil {
			return err
		}
		if err := enc.EncodeToken(xml.EndElement{Name: valName}); err != nil {
			return err
		}
	}
	if m.Text != "" {
		if err := encodeTextChild(enc, m.Text); err != nil {
			return err
		}
	}
	return enc.EncodeToken(xml.EndElement{Name: start.Name})
}

// UnmarshalXML recovers Value from whichever child element is present.
func (m *Mood) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var raw struct {
		Text  string   `xml:"text"`
		Value xml.Name `xml:",any"`
	}
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	m.Value = raw.Value.Local
	m.Text = raw.Text
	return nil
}

// Activity is a XEP-0108 user activity event.
type Activity struct {
	General  string
	Specific string
	Text     string
}

func (a Activity) MarshalXML(enc *xml.Encoder, start xml.StartElement) error {
	start.Name = xml.Name{Space: ns.Activity, Local: "activity"}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if a.General != "" {
		genName := xml.Name{Local: a.General}
		if err := enc.EncodeToken(xml.StartElement{Name: genName}); err != nil {
			return err
		}
		if a.Specific != "" {
			specName := xml.Name{Local: a.Specific}
			if err := enc.EncodeToken(xml.StartElement{Name: specName}); err != nil {
				return err
			}
			if err := enc.EncodeToken(xml.EndElement{Name: specName}); err != nil {
				return err
			}
		}
		if err := enc.EncodeToken(xml.EndElement{Name: genName}); err != nil {
			return err
		}
	}
	if a.Text != "" {
		if err := encodeTextChild(enc, a.Text); err != nil {
			return err
		}
	}
	return enc.EncodeToken(xml.EndElement{Name: start.Name})
}

func (a *Activity) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var raw struct {
		Text    string `xml:"text"`
		General struct {
			XMLName  xml.Name
			Specific xml.Name `xml:",any"`
		} `xml:",any"`
	}
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	a.General = raw.General.XMLName.Local
	a.Specific = raw.General.Specific.Local
	a.Text = raw.Text
	return nil
}

// Tune is a XEP-0118 user tune event. Length is in seconds, Rating is
// 1-10.
type Tune struct {
	XMLName xml.Name `xml:"http://jabber.org/protocol/tune tune"`
	Artist  string   `xml:"artist,omitempty"`
	Length  int      `xml:"length,omitempty"`
	Rating  int      `xml:"rating,omitempty"`
	Source  string   `xml:"source,omitempty"`
	Title   string   `xml:"title,omitempty"`
	Track   string   `xml:"track,omitempty"`
	URI     string   `xml:"uri,omitempty"`
}

func encodeTextChild(enc *xml.Encoder, text string) error {
	name := xml.Name{Local: "text"}
	if err := enc.EncodeToken(xml.StartElement{Name: name}); err != nil {
		return err
	}
	if err := enc.EncodeToken(xml.CharData(text)); err != nil {
		return err
	}
	return enc.EncodeToken(xml.EndElement{Name: name})
}

// Plugin implements the PEP publish/subscribe-notification surface: publish
// to, and retract from, one's own mood/activity/tune nodes, and dispatch
// inbound event notifications for them to registered listeners.
type Plugin struct {
	params plugin.InitParams

	mu         sync.Mutex
	onMood     func(from jid.JID, mood *Mood)
	onActivity func(from jid.JID, activity *Activity)
	onTune     func(from jid.JID, tune *Tune)
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string    { return Name }
func (p *Plugin) Version() string { return "1.0.0" }

func (p *Plugin) Initialize(_ context.Context, params plugin.InitParams) error {
	p.params = params
	if params.Get == nil {
		return nil
	}
	if dp, ok := params.Get(disco.Name); ok {
		if d, ok := dp.(*disco.Plugin); ok {
			d.AddFeature(ns.Mood + "+notify")
			d.AddFeature(ns.Activity + "+notify")
			d.AddFeature(ns.Tune + "+notify")
		}
	}
	return nil
}

func (p *Plugin) Close() error           { return nil }
func (p *Plugin) Dependencies() []string { return nil }

// OnMood registers the callback for an inbound mood event notification.
func (p *Plugin) OnMood(fn func(from jid.JID, mood *Mood)) {
	p.mu.Lock()
	p.onMood = fn
	p.mu.Unlock()
}

// OnActivity registers the callback for an inbound activity event
// notification.
func (p *Plugin) OnActivity(fn func(from jid.JID, activity *Activity)) {
	p.mu.Lock()
	p.onActivity = fn
	p.mu.Unlock()
}

// OnTune registers the callback for an inbound tune event notification.
func (p *Plugin) OnTune(fn func(from jid.JID, tune *Tune)) {
	p.mu.Lock()
	p.onTune = fn
	p.mu.Unlock()
}

// PublishMood publishes mood to the user's mood node, replacing any
// previous item. A nil mood retracts the current one (stops broadcasting).
func (p *Plugin) PublishMood(ctx context.Context, mood *Mood) error {
	if mood == nil {
		return p.retract(ctx, ns.Mood)
	}
	return p.publish(ctx, ns.Mood, mood)
}

// PublishActivity publishes activity to the user's activity node.
func (p *Plugin) PublishActivity(ctx context.Context, activity *Activity) error {
	if activity == nil {
		return p.retract(ctx, ns.Activity)
	}
	return p.publish(ctx, ns.Activity, activity)
}

// PublishTune publishes tune to the user's tune node. A nil tune retracts
// the current one, the XEP-0118 way of reporting "not listening to
// anything."
func (p *Plugin) PublishTune(ctx context.Context, tune *Tune) error {
	if tune == nil {
		return p.retract(ctx, ns.Tune)
	}
	return p.publish(ctx, ns.Tune, tune)
}

func (p *Plugin) publish(ctx context.Context, node string, item any) error {
	if p.params.IQRequest == nil {
		return fmt.Errorf("pep: session does not support IQ requests")
	}
	payload, err := xml.Marshal(item)
	if err != nil {
		return err
	}
	body, err := xml.Marshal(pubsub.PubSub{
		Publish: &pubsub.Publish{
			Node:  node,
			Items: []pubsub.PubItem{{ID: "current", Payload: payload}},
		},
	})
	if err != nil {
		return err
	}
	req := stanza.NewIQ(stanza.IQSet)
	req.Query = body
	resp, err := p.params.IQRequest(ctx, req)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	return nil
}

func (p *Plugin) retract(ctx context.Context, node string) error {
	if p.params.IQRequest == nil {
		return fmt.Errorf("pep: session does not support IQ requests")
	}
	body, err := xml.Marshal(pubsub.PubSub{
		Retract: &pubsub.Retract{Node: node, Notify: true, Items: []pubsub.PubItem{{ID: "current"}}},
	})
	if err != nil {
		return err
	}
	req := stanza.NewIQ(stanza.IQSet)
	req.Query = body
	resp, err := p.params.IQRequest(ctx, req)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	return nil
}

// ObserveMessage recognizes an inbound PEP event notification (a headline
// message carrying a pubsub#event items extension for mood, activity, or
// tune) and dispatches it to the matching registered callback. It reports
// false for anything else, so the caller can try other recognizers.
func (p *Plugin) ObserveMessage(msg *stanza.Message) bool {
	for i := range msg.Extensions {
		ext := &msg.Extensions[i]
		if ext.XMLName.Space != ns.PubSubEvent || ext.XMLName.Local != "event" {
			continue
		}
		var event pubsub.Event
		if err := xml.Unmarshal(wrapExtension(ext, "event"), &event); err != nil {
			return false
		}
		if event.Items == nil || len(event.Items.Items) == 0 {
			return true
		}
		p.dispatch(msg.From, event.Items.Node, event.Items.Items[0].Payload)
		return true
	}
	return false
}

func (p *Plugin) dispatch(from jid.JID, node string, payload []byte) {
	switch node {
	case ns.Mood:
		var m Mood
		if err := xml.Unmarshal(payload, &m); err != nil {
			return
		}
		p.mu.Lock()
		fn := p.onMood
		p.mu.Unlock()
		if fn != nil {
			fn(from, &m)
		}
	case ns.Activity:
		var a Activity
		if err := xml.Unmarshal(payload, &a); err != nil {
			return
		}
		p.mu.Lock()
		fn := p.onActivity
		p.mu.Unlock()
		if fn != nil {
			fn(from, &a)
		}
	case ns.Tune:
		var tu Tune
		if err := xml.Unmarshal(payload, &tu); err != nil {
			return
		}
		p.mu.Lock()
		fn := p.onTune
		p.mu.Unlock()
		if fn != nil {
			fn(from, &tu)
		}
	}
}

func wrapExtension(ext *stanza.Extension, localName string) []byte {
	var buf bytes.Buffer
	buf.WriteByte('<')
	buf.WriteString(localName)
	buf.WriteString(` xmlns="`)
	buf.WriteString(ns.PubSubEvent)
	buf.WriteByte('"')
	for _, a := range ext.Attrs {
		buf.WriteByte(' ')
		buf.WriteString(a.Name.Local)
		buf.WriteString(`="`)
		xml.EscapeText(&buf, []byte(a.Value))
		buf.WriteByte('"')
	}
	buf.WriteByte('>')
	buf.Write(ext.Inner)
	buf.WriteString("</")
	buf.WriteString(localName)
	buf.WriteByte('>')
	return buf.Bytes()
}
