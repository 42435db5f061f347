package im

import (
	"context"
	"encoding/xml"

	"github.com/anchorwire/xmpp/plugins/privacy"
	"github.com/anchorwire/xmpp/stanza"
)

// wirePrivacyFilters installs the active privacy list as an input filter
// for every stanza kind, provided a privacy extension is loaded. Installed
// once, at NewSession time, so it always runs first among filters added
// later by the caller. Privacy lists also restrict outbound presence
// (presence-out), but that enforcement is the server's per RFC 6121 §12;
// an output filter cannot abort a send, so there is nothing for the IM
// layer to do with it here.
func (s *Session) wirePrivacyFilters() {
	if s.privacy == nil {
		return
	}
	s.AddIQInFilter(func(iq *stanza.IQ) bool {
		return s.privacy.Blocks(iq.From.Bare().String(), "iq")
	})
	s.AddMessageInFilter(func(msg *stanza.Message) bool {
		return s.privacy.Blocks(msg.From.Bare().String(), "message")
	})
	s.AddPresenceInFilter(func(pres *stanza.Presence) bool {
		return s.privacy.Blocks(pres.From.Bare().String(), "presence-in")
	})
}

// GetPrivacyLists fetches every privacy list name and, for names already
// known locally, leaves the cache untouched; it always refreshes the
// active/default selection.
func (s *Session) GetPrivacyLists(ctx context.Context) ([]string, error) {
	req := stanza.NewIQ(stanza.IQGet)
	body, err := xml.Marshal(privacy.Query{})
	if err != nil {
		return nil, err
	}
	req.Query = body

	resp, err := s.sess.IQRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	var q privacy.Query
	if err := xml.Unmarshal(resp.Query, &q); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(q.Lists))
	for _, l := range q.Lists {
		names = append(names, l.Name)
		if s.privacy != nil {
			s.privacy.SetList(l)
		}
	}
	if s.privacy != nil {
		if q.Active != nil {
			s.privacy.SetActive(q.Active.Name)
		}
		if q.Default != nil {
			s.privacy.SetDefault(q.Default.Name)
		}
	}
	return names, nil
}

// SetPrivacyList sends an IQ-Set replacing the named list's items.
func (s *Session) SetPrivacyList(ctx context.Context, list privacy.List) error {
	req := stanza.NewIQ(stanza.IQSet)
	body, err := xml.Marshal(privacy.Query{Lists: []privacy.List{list}})
	if err != nil {
		return err
	}
	req.Query = body
	if _, err := s.sess.IQRequest(ctx, req); err != nil {
		return err
	}
	if s.privacy != nil {
		s.privacy.SetList(list)
	}
	return nil
}

// SetActivePrivacyList sends an IQ-Set activating name for this session
// (empty clears the active list).
func (s *Session) SetActivePrivacyList(ctx context.Context, name string) error {
	req := stanza.NewIQ(stanza.IQSet)
	body, err := xml.Marshal(privacy.Query{Active: &privacy.Default{Name: name}})
	if err != nil {
		return err
	}
	req.Query = body
	if _, err := s.sess.IQRequest(ctx, req); err != nil {
		return err
	}
	if s.privacy != nil {
		s.privacy.SetActive(name)
	}
	return nil
}

// SetDefaultPrivacyList sends an IQ-Set declaring name the account-wide
// default (empty clears the default).
func (s *Session) SetDefaultPrivacyList(ctx context.Context, name string) error {
	req := stanza.NewIQ(stanza.IQSet)
	body, err := xml.Marshal(privacy.Query{Default: &privacy.Default{Name: name}})
	if err != nil {
		return err
	}
	req.Query = body
	if _, err := s.sess.IQRequest(ctx, req); err != nil {
		return err
	}
	if s.privacy != nil {
		s.privacy.SetDefault(name)
	}
	return nil
}
