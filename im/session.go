package im

import (
	"context"
	"encoding/xml"
	"io"

	xmpp "github.com/anchorwire/xmpp"
	"github.com/anchorwire/xmpp/jid"
	"github.com/anchorwire/xmpp/pep"
	"github.com/anchorwire/xmpp/plugins/filetransfer"
	"github.com/anchorwire/xmpp/plugins/ibb"
	"github.com/anchorwire/xmpp/plugins/mam"
	"github.com/anchorwire/xmpp/plugins/muc"
	"github.com/anchorwire/xmpp/plugins/presence"
	"github.com/anchorwire/xmpp/plugins/privacy"
	"github.com/anchorwire/xmpp/plugins/roster"
	"github.com/anchorwire/xmpp/plugins/socks5"
	"github.com/anchorwire/xmpp/stanza"
)

// Session wraps a raw *xmpp.Session with the IM layer: the extension
// registry, the input/output filter chains, and roster/presence/privacy
// convenience methods. It implements xmpp.Handler, so it is normally
// passed straight to (*xmpp.Session).Serve.
type Session struct {
	sess     *xmpp.Session
	registry *Registry
	chains   chains

	roster   *roster.Plugin
	presence *presence.Plugin
	privacy  *privacy.Plugin
	muc      *muc.Plugin
	mam      *mam.Plugin

	filetransfer *filetransfer.Plugin
	ibb          *ibb.Plugin
	socks5       *socks5.Plugin
	pep          *pep.Plugin

	onStatus       func(Status)
	onSubscribe    func(from jid.JID)
	onSubscribed   func(from jid.JID)
	onUnsubscribed func(from jid.JID)
	onRosterUpdate func(roster.Item)

	onGroupPresence func(GroupPresenceChanged)
	onGroupInvite   func(GroupInvite)
	onGroupDirect   func(GroupDirectInvite)
	onGroupDeclined func(GroupInviteDeclined)
	onGroupSubject  func(GroupChatSubjectChanged)
	onGroupError    func(GroupMucError)

	onFileOffer    func(FileTransferOffer) (io.WriteCloser, bool)
	onFileProgress func(FileTransferProgress)
	onFileAborted  func(FileTransferAborted)

	onCustomIQ func(from jid.JID, payload []byte) ([]byte, bool)
}

// NewSession builds the IM layer on top of sess, using registry's already
// Init'd extensions to resolve the roster/presence/privacy plugins it
// special-cases.
func NewSession(sess *xmpp.Session, registry *Registry) *Session {
	s := &Session{sess: sess, registry: registry}
	if p, ok := registry.Load(roster.Name); ok {
		s.roster, _ = p.(*roster.Plugin)
	}
	if p, ok := registry.Load(presence.Name); ok {
		s.presence, _ = p.(*presence.Plugin)
	}
	if p, ok := registry.Load(privacy.Name); ok {
		s.privacy, _ = p.(*privacy.Plugin)
	}
	if p, ok := registry.Load(muc.Name); ok {
		s.muc, _ = p.(*muc.Plugin)
	}
	if p, ok := registry.Load(mam.Name); ok {
		s.mam, _ = p.(*mam.Plugin)
	}
	if p, ok := registry.Load(filetransfer.Name); ok {
		s.filetransfer, _ = p.(*filetransfer.Plugin)
	}
	if p, ok := registry.Load(ibb.Name); ok {
		s.ibb, _ = p.(*ibb.Plugin)
	}
	if p, ok := registry.Load(socks5.Name); ok {
		s.socks5, _ = p.(*socks5.Plugin)
	}
	if p, ok := registry.Load(pep.Name); ok {
		s.pep, _ = p.(*pep.Plugin)
	}
	s.wirePrivacyFilters()
	return s
}

// Raw returns the underlying session.
func (s *Session) Raw() *xmpp.Session { return s.sess }

// Registry returns the extension registry.
func (s *Session) Registry() *Registry { return s.registry }

// OnStatus registers the callback invoked when inbound presence is
// classified as Available/Unavailable.
func (s *Session) OnStatus(fn func(Status)) { s.onStatus = fn }

// OnSubscribe registers the callback for an inbound subscription request.
// The default behavior is no auto-response; the caller decides via
// Approve/Refuse.
func (s *Session) OnSubscribe(fn func(from jid.JID)) { s.onSubscribe = fn }

// OnSubscribed registers the callback for an inbound subscription
// approval.
func (s *Session) OnSubscribed(fn func(from jid.JID)) { s.onSubscribed = fn }

// OnUnsubscribed registers the callback for an inbound subscription
// refusal/cancellation.
func (s *Session) OnUnsubscribed(fn func(from jid.JID)) { s.onUnsubscribed = fn }

// OnRosterUpdate registers the callback for an accepted roster push.
func (s *Session) OnRosterUpdate(fn func(roster.Item)) { s.onRosterUpdate = fn }

// OnGroupPresence registers the callback for occupant presence changes in
// a joined room.
func (s *Session) OnGroupPresence(fn func(GroupPresenceChanged)) { s.onGroupPresence = fn }

// OnGroupInvite registers the callback for an inbound mediated invitation.
func (s *Session) OnGroupInvite(fn func(GroupInvite)) { s.onGroupInvite = fn }

// OnGroupDirectInvite registers the callback for an inbound XEP-0249 direct
// invitation.
func (s *Session) OnGroupDirectInvite(fn func(GroupDirectInvite)) { s.onGroupDirect = fn }

// OnGroupInviteDeclined registers the callback for a declined mediated
// invitation.
func (s *Session) OnGroupInviteDeclined(fn func(GroupInviteDeclined)) { s.onGroupDeclined = fn }

// OnGroupChatSubjectChanged registers the callback for a room subject
// change.
func (s *Session) OnGroupChatSubjectChanged(fn func(GroupChatSubjectChanged)) { s.onGroupSubject = fn }

// OnGroupMucError registers the callback for a MUC-context error.
func (s *Session) OnGroupMucError(fn func(GroupMucError)) { s.onGroupError = fn }

// CustomIqDelegate registers the single consumer of IQ-get/IQ-set stanzas
// that no built-in extension recognizes. fn receives the sender and the
// raw query payload; returning ok=false (or a nil delegate) falls back to
// a service-unavailable error reply, per RFC 6121's "stanzas MUST NOT be
// silently dropped" requirement.
func (s *Session) CustomIqDelegate(fn func(from jid.JID, payload []byte) (reply []byte, ok bool)) {
	s.onCustomIQ = fn
}

// AddIQInFilter, AddMessageInFilter, AddPresenceInFilter register inbound
// filters, run in the order added (which should match extension-load
// order). AddIQOutFilter and friends register the matching outbound
// mutators.
func (s *Session) AddIQInFilter(f IQFilter)             { s.chains.addIQIn(f) }
func (s *Session) AddIQOutFilter(f IQOutFilter)         { s.chains.addIQOut(f) }
func (s *Session) AddMessageInFilter(f MessageFilter)   { s.chains.addMessageIn(f) }
func (s *Session) AddMessageOutFilter(f MessageOutFilter) { s.chains.addMessageOut(f) }
func (s *Session) AddPresenceInFilter(f PresenceFilter) { s.chains.addPresenceIn(f) }
func (s *Session) AddPresenceOutFilter(f PresenceOutFilter) { s.chains.addPresenceOut(f) }

// Send runs the outbound filter chain for st's kind, then sends it.
func (s *Session) Send(ctx context.Context, st stanza.Stanza) error {
	switch v := st.(type) {
	case *stanza.IQ:
		s.chains.runIQOut(v)
	case *stanza.Message:
		s.chains.runMessageOut(v)
	case *stanza.Presence:
		s.chains.runPresenceOut(v)
	}
	return s.sess.Send(ctx, st)
}

// HandleStanza implements xmpp.Handler: it runs the inbound filter chain
// for the stanza's kind, and if nothing consumed it, raises the
// corresponding typed IM event.
func (s *Session) HandleStanza(ctx context.Context, _ *xmpp.Session, st stanza.Stanza) error {
	switch v := st.(type) {
	case *stanza.IQ:
		if s.chains.runIQIn(v) {
			return nil
		}
		return s.handleIQ(ctx, v)
	case *stanza.Message:
		if s.chains.runMessageIn(v) {
			return nil
		}
		if s.handleArchiveMessage(v) {
			return nil
		}
		if s.handlePEPEvent(v) {
			return nil
		}
		return s.handleGroupMessage(v)
	case *stanza.Presence:
		if s.chains.runPresenceIn(v) {
			return nil
		}
		if s.handleGroupPresence(v) {
			return nil
		}
		return s.handlePresence(ctx, v)
	}
	return nil
}

func (s *Session) handleIQ(ctx context.Context, iq *stanza.IQ) error {
	if iq.Type == stanza.IQGet {
		return s.handleUnrecognizedIQ(ctx, iq)
	}
	if iq.Type != stanza.IQSet {
		return nil
	}

	if s.ibb != nil && s.ibb.ObserveIQ(ctx, iq) {
		return nil
	}
	if s.socks5 != nil && s.socks5.ObserveIQ(ctx, iq) {
		return nil
	}
	if s.handleFileOffer(ctx, iq) {
		return nil
	}

	var q roster.Query
	if err := xml.Unmarshal(iq.Query, &q); err != nil {
		// Not a roster push; fall through to the custom-IQ delegate (or a
		// service-unavailable reply) instead of dropping it.
		return s.handleUnrecognizedIQ(ctx, iq)
	}
	if !s.rosterPushAllowed(iq.From) {
		return nil
	}

	for _, item := range q.Items {
		if s.roster != nil {
			if item.Subscription == roster.SubRemove {
				_ = s.roster.Remove(ctx, item.JID)
			} else {
				_ = s.roster.Set(ctx, item)
			}
		}
		if s.onRosterUpdate != nil {
			s.onRosterUpdate(item)
		}
	}

	result := iq.ResultIQ()
	return s.Send(ctx, result)
}

// handleUnrecognizedIQ is the last stop for an inbound IQ-get or IQ-set
// that no extension claimed: it offers the stanza to CustomIqDelegate, and
// if that isn't registered (or declines it), replies with
// service-unavailable rather than dropping it on the floor. RFC 6121 §8.3.3
// requires every IQ-get/IQ-set receive a result or error response.
func (s *Session) handleUnrecognizedIQ(ctx context.Context, iq *stanza.IQ) error {
	if s.onCustomIQ != nil {
		if reply, ok := s.onCustomIQ(iq.From, iq.Query); ok {
			result := iq.ResultIQ()
			result.Query = reply
			return s.Send(ctx, result)
		}
	}
	return s.Send(ctx, iq.ErrorIQ(stanza.NewStanzaError(stanza.ErrorTypeCancel, stanza.ErrorServiceUnavailable, "")))
}

// rosterPushAllowed implements the RFC 6121 §2.1.6 guard: a roster push is
// honored only when unaddressed or addressed to the bound JID (bare or
// full); everything else is silently ignored.
func (s *Session) rosterPushAllowed(from jid.JID) bool {
	if from.IsZero() {
		return true
	}
	local := s.sess.LocalAddr()
	return from.Equal(local) || from.Equal(local.Bare())
}

func (s *Session) handlePresence(ctx context.Context, pres *stanza.Presence) error {
	switch pres.Type {
	case stanza.PresenceAvailable, stanza.PresenceUnavailable:
		st := Status{
			From:      pres.From,
			Available: pres.Type == stanza.PresenceAvailable,
			Show:      pres.Show,
			Priority:  pres.Priority,
		}
		if len(pres.Statuses) > 0 {
			st.Messages = make(map[string]string, len(pres.Statuses))
			for _, text := range pres.Statuses {
				st.Messages[text.Lang] = text.Text
			}
		}
		if s.presence != nil {
			s.presence.Update(pres.From.String(), presence.Status{
				Show:     pres.Show,
				Status:   pres.Status(),
				Priority: pres.Priority,
			})
		}
		if s.onStatus != nil {
			s.onStatus(st)
		}

	case stanza.PresenceSubscribe:
		if s.onSubscribe != nil {
			s.onSubscribe(pres.From)
		}
	case stanza.PresenceSubscribed:
		if s.onSubscribed != nil {
			s.onSubscribed(pres.From)
		}
	case stanza.PresenceUnsubscribe, stanza.PresenceUnsubscribed:
		if s.presence != nil {
			s.presence.Remove(pres.From.String())
		}
		if s.onUnsubscribed != nil {
			s.onUnsubscribed(pres.From)
		}
	}
	return nil
}

// Close tears down the extension registry and closes the underlying
// session.
func (s *Session) Close() error {
	var firstErr error
	if err := s.registry.Close(); err != nil {
		firstErr = err
	}
	if err := s.sess.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
