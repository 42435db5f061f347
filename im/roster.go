package im

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/anchorwire/xmpp/jid"
	"github.com/anchorwire/xmpp/plugins/roster"
	"github.com/anchorwire/xmpp/stanza"
)

// GetRoster sends an IQ-Get for the roster and returns the parsed item set,
// also refreshing the local roster cache if the roster extension is
// loaded.
func (s *Session) GetRoster(ctx context.Context) ([]roster.Item, error) {
	req := stanza.NewIQ(stanza.IQGet)
	body, err := xml.Marshal(roster.Query{})
	if err != nil {
		return nil, err
	}
	req.Query = body

	resp, err := s.sess.IQRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	var q roster.Query
	if err := xml.Unmarshal(resp.Query, &q); err != nil {
		return nil, err
	}
	if s.roster != nil {
		for _, item := range q.Items {
			_ = s.roster.Set(ctx, item)
		}
	}
	return q.Items, nil
}

// AddToRoster sends an IQ-Set adding or updating item. The server is
// expected to follow up with a roster push that updates local state via
// the inbound path; this call does not itself mutate the cache.
func (s *Session) AddToRoster(ctx context.Context, item roster.Item) error {
	req := stanza.NewIQ(stanza.IQSet)
	body, err := xml.Marshal(roster.Query{Items: []roster.Item{item}})
	if err != nil {
		return err
	}
	req.Query = body
	_, err = s.sess.IQRequest(ctx, req)
	return err
}

// RemoveFromRoster sends an IQ-Set removing the contact at jid.
func (s *Session) RemoveFromRoster(ctx context.Context, contact string) error {
	req := stanza.NewIQ(stanza.IQSet)
	body, err := xml.Marshal(roster.Query{
		Items: []roster.Item{{JID: contact, Subscription: roster.SubRemove}},
	})
	if err != nil {
		return err
	}
	req.Query = body
	_, err = s.sess.IQRequest(ctx, req)
	return err
}

// RequestSubscription sends a "subscribe" presence to contact.
func (s *Session) RequestSubscription(ctx context.Context, contact jid.JID) error {
	return s.sendSubscriptionPresence(ctx, stanza.PresenceSubscribe, contact)
}

// Approve sends a "subscribed" presence to contact, approving their
// subscription request.
func (s *Session) Approve(ctx context.Context, contact jid.JID) error {
	return s.sendSubscriptionPresence(ctx, stanza.PresenceSubscribed, contact)
}

// Refuse sends an "unsubscribed" presence to contact, refusing their
// subscription request.
func (s *Session) Refuse(ctx context.Context, contact jid.JID) error {
	return s.sendSubscriptionPresence(ctx, stanza.PresenceUnsubscribed, contact)
}

// Unsubscribe sends an "unsubscribe" presence, ending our subscription to
// contact's presence.
func (s *Session) Unsubscribe(ctx context.Context, contact jid.JID) error {
	return s.sendSubscriptionPresence(ctx, stanza.PresenceUnsubscribe, contact)
}

// Revoke sends an "unsubscribed" presence, ending contact's subscription
// to our presence.
func (s *Session) Revoke(ctx context.Context, contact jid.JID) error {
	return s.sendSubscriptionPresence(ctx, stanza.PresenceUnsubscribed, contact)
}

func (s *Session) sendSubscriptionPresence(ctx context.Context, typ string, contact jid.JID) error {
	if contact.IsZero() {
		return fmt.Errorf("im: subscription target JID is empty")
	}
	pres := stanza.NewPresence(typ)
	pres.To = contact
	return s.Send(ctx, pres)
}
