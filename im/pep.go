package im

import (
	"context"
	"errors"

	"github.com/anchorwire/xmpp/jid"
	"github.com/anchorwire/xmpp/pep"
	"github.com/anchorwire/xmpp/stanza"
)

var errPEPNotLoaded = errors.New("im: pep extension not loaded")

// handlePEPEvent recognizes an inbound PEP event notification (mood,
// activity, or tune) and dispatches it to whichever typed callback is
// registered. It reports false for anything else.
func (s *Session) handlePEPEvent(msg *stanza.Message) bool {
	if s.pep == nil {
		return false
	}
	return s.pep.ObserveMessage(msg)
}

// OnMood registers the callback invoked when a contact publishes or clears
// their XEP-0107 mood.
func (s *Session) OnMood(fn func(from jid.JID, mood *pep.Mood)) {
	if s.pep == nil {
		return
	}
	s.pep.OnMood(fn)
}

// OnActivity registers the callback invoked when a contact publishes or
// clears their XEP-0108 activity.
func (s *Session) OnActivity(fn func(from jid.JID, activity *pep.Activity)) {
	if s.pep == nil {
		return
	}
	s.pep.OnActivity(fn)
}

// OnTune registers the callback invoked when a contact publishes or clears
// their XEP-0118 tune.
func (s *Session) OnTune(fn func(from jid.JID, tune *pep.Tune)) {
	if s.pep == nil {
		return
	}
	s.pep.OnTune(fn)
}

// SetMood publishes the account's current mood. A nil mood clears it.
func (s *Session) SetMood(ctx context.Context, mood *pep.Mood) error {
	if s.pep == nil {
		return errPEPNotLoaded
	}
	return s.pep.PublishMood(ctx, mood)
}

// SetActivity publishes the account's current activity. A nil activity
// clears it.
func (s *Session) SetActivity(ctx context.Context, activity *pep.Activity) error {
	if s.pep == nil {
		return errPEPNotLoaded
	}
	return s.pep.PublishActivity(ctx, activity)
}

// SetTune publishes the account's current tune. A nil tune reports that
// nothing is playing.
func (s *Session) SetTune(ctx context.Context, tune *pep.Tune) error {
	if s.pep == nil {
		return errPEPNotLoaded
	}
	return s.pep.PublishTune(ctx, tune)
}
