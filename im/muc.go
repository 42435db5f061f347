package im

import (
	"context"
	"errors"

	"github.com/anchorwire/xmpp/jid"
	"github.com/anchorwire/xmpp/plugins/disco"
	"github.com/anchorwire/xmpp/plugins/form"
	"github.com/anchorwire/xmpp/plugins/muc"
	"github.com/anchorwire/xmpp/stanza"
)

var errMUCNotLoaded = errors.New("im: muc extension not loaded")

// handleGroupPresence recognizes an inbound MUC occupant presence (one
// carrying a muc#user x) and raises GroupPresenceChanged or GroupMucError.
// It reports false when pres is not a MUC presence, so the caller can fall
// back to ordinary contact-presence handling.
func (s *Session) handleGroupPresence(pres *stanza.Presence) bool {
	if s.muc == nil {
		return false
	}
	ux, ok := s.muc.ObservePresence(pres)
	if !ok {
		return false
	}
	room := pres.From.Bare()
	if pres.Error != nil {
		if s.onGroupError != nil {
			s.onGroupError(GroupMucError{Room: room, Type: pres.Error.Type, Condition: pres.Error.Condition})
		}
		return true
	}
	var item *muc.UserItem
	if len(ux.Items) > 0 {
		item = &ux.Items[0]
	}
	if s.onGroupPresence != nil {
		s.onGroupPresence(GroupPresenceChanged{
			Room:        room,
			Nick:        pres.From.Resource(),
			Available:   pres.Type == stanza.PresenceAvailable,
			Item:        item,
			StatusCodes: ux.StatusSet(),
		})
	}
	return true
}

// handleGroupMessage recognizes mediated invites/declines, direct
// invitations, subject changes, and MUC-context errors carried by an
// inbound message, raising the matching typed event.
func (s *Session) handleGroupMessage(msg *stanza.Message) error {
	if s.muc == nil {
		return nil
	}
	if di, ok := s.muc.ObserveDirectInvite(msg); ok {
		if s.onGroupDirect != nil {
			roomJID, err := jid.Parse(di.JID)
			if err != nil {
				return nil
			}
			s.onGroupDirect(GroupDirectInvite{Room: roomJID, From: msg.From, Password: di.Password, Reason: di.Reason})
		}
		return nil
	}
	if ux, ok := s.muc.ObserveMessage(msg); ok {
		switch {
		case ux.Decline != nil:
			if s.onGroupDeclined != nil {
				s.onGroupDeclined(GroupInviteDeclined{Room: msg.From.Bare(), From: msg.From, Reason: ux.Decline.Reason})
			}
		case len(ux.Invite) > 0:
			if s.onGroupInvite != nil {
				s.onGroupInvite(GroupInvite{Room: msg.From.Bare(), From: msg.From, Reason: ux.Invite[0].Reason})
			}
		}
		if msg.Error != nil && s.onGroupError != nil {
			s.onGroupError(GroupMucError{Room: msg.From.Bare(), Type: msg.Error.Type, Condition: msg.Error.Condition})
		}
		return nil
	}
	if room, subject, ok := s.muc.ObserveSubject(msg); ok {
		if s.onGroupSubject != nil {
			roomJID, err := jid.Parse(room)
			if err != nil {
				return nil
			}
			s.onGroupSubject(GroupChatSubjectChanged{Room: roomJID, From: msg.From, Subject: subject})
		}
	}
	return nil
}

// JoinRoom sends available presence to roomJID/nick, requesting history
// when given, and optionally supplying the room password.
func (s *Session) JoinRoom(ctx context.Context, roomJID, nick, password string, history *muc.History) error {
	if s.muc == nil {
		return errMUCNotLoaded
	}
	return s.muc.Join(ctx, roomJID, nick, password, history)
}

// LeaveRoom sends unavailable presence to roomJID/nick.
func (s *Session) LeaveRoom(ctx context.Context, roomJID, nick string) error {
	if s.muc == nil {
		return errMUCNotLoaded
	}
	return s.muc.Leave(ctx, roomJID, nick)
}

// KickOccupant sets nick's role to none, removing them from the room.
func (s *Session) KickOccupant(ctx context.Context, roomJID, nick, reason string) error {
	if s.muc == nil {
		return errMUCNotLoaded
	}
	return s.muc.Kick(ctx, roomJID, nick, reason)
}

// BanOccupant sets occupantJID's affiliation to outcast.
func (s *Session) BanOccupant(ctx context.Context, roomJID, occupantJID, reason string) error {
	if s.muc == nil {
		return errMUCNotLoaded
	}
	return s.muc.Ban(ctx, roomJID, occupantJID, reason)
}

// SetOccupantAffiliation changes occupantJID's affiliation.
func (s *Session) SetOccupantAffiliation(ctx context.Context, roomJID, occupantJID, affiliation, reason string) error {
	if s.muc == nil {
		return errMUCNotLoaded
	}
	return s.muc.SetAffiliation(ctx, roomJID, occupantJID, affiliation, reason)
}

// SetOccupantRole changes nick's role.
func (s *Session) SetOccupantRole(ctx context.Context, roomJID, nick, role, reason string) error {
	if s.muc == nil {
		return errMUCNotLoaded
	}
	return s.muc.SetRole(ctx, roomJID, nick, role, reason)
}

// GrantVoice sets nick's role to participant.
func (s *Session) GrantVoice(ctx context.Context, roomJID, nick string) error {
	if s.muc == nil {
		return errMUCNotLoaded
	}
	return s.muc.GrantVoice(ctx, roomJID, nick)
}

// RevokeVoice sets nick's role to visitor.
func (s *Session) RevokeVoice(ctx context.Context, roomJID, nick string) error {
	if s.muc == nil {
		return errMUCNotLoaded
	}
	return s.muc.RevokeVoice(ctx, roomJID, nick)
}

// InviteToRoom sends a mediated invitation to inviteeJID via roomJID.
func (s *Session) InviteToRoom(ctx context.Context, roomJID, inviteeJID, reason string) error {
	if s.muc == nil {
		return errMUCNotLoaded
	}
	return s.muc.Invite(ctx, roomJID, inviteeJID, reason)
}

// InviteToRoomDirect sends a XEP-0249 direct invitation to toJID.
func (s *Session) InviteToRoomDirect(ctx context.Context, toJID, roomJID, password, reason string) error {
	if s.muc == nil {
		return errMUCNotLoaded
	}
	return s.muc.InviteDirect(ctx, toJID, roomJID, password, reason)
}

// DeclineRoomInvite refuses a mediated invitation.
func (s *Session) DeclineRoomInvite(ctx context.Context, roomJID, declinerTo, reason string) error {
	if s.muc == nil {
		return errMUCNotLoaded
	}
	return s.muc.Decline(ctx, roomJID, declinerTo, reason)
}

// EditRoomSubject sends a subject-only groupchat message to roomJID.
func (s *Session) EditRoomSubject(ctx context.Context, roomJID, subject string) error {
	if s.muc == nil {
		return errMUCNotLoaded
	}
	return s.muc.EditSubject(ctx, roomJID, subject)
}

// RequestRoomConfig fetches roomJID's configuration form.
func (s *Session) RequestRoomConfig(ctx context.Context, roomJID string) (*form.Form, error) {
	if s.muc == nil {
		return nil, errMUCNotLoaded
	}
	return s.muc.RequestConfig(ctx, roomJID)
}

// SubmitRoomConfig sends a completed configuration form to roomJID.
func (s *Session) SubmitRoomConfig(ctx context.Context, roomJID string, f *form.Form) error {
	if s.muc == nil {
		return errMUCNotLoaded
	}
	return s.muc.SubmitConfig(ctx, roomJID, f)
}

// RequestInstantRoom accepts a newly created room's default configuration.
func (s *Session) RequestInstantRoom(ctx context.Context, roomJID string) error {
	if s.muc == nil {
		return errMUCNotLoaded
	}
	return s.muc.RequestInstantRoom(ctx, roomJID)
}

// DestroyRoom destroys roomJID, optionally pointing occupants at an
// alternate room.
func (s *Session) DestroyRoom(ctx context.Context, roomJID, alternateJID, reason string) error {
	if s.muc == nil {
		return errMUCNotLoaded
	}
	return s.muc.Destroy(ctx, roomJID, alternateJID, reason)
}

// RequestVoice asks a moderated room for speaking privileges.
func (s *Session) RequestVoice(ctx context.Context, roomJID string) error {
	if s.muc == nil {
		return errMUCNotLoaded
	}
	return s.muc.RequestVoice(ctx, roomJID)
}

// DiscoverRooms lists the rooms hosted by a MUC service.
func (s *Session) DiscoverRooms(ctx context.Context, serviceJID string) ([]disco.Item, error) {
	if s.muc == nil {
		return nil, errMUCNotLoaded
	}
	return s.muc.DiscoverRooms(ctx, serviceJID)
}

// RoomInfo fetches a room's identity and feature set.
func (s *Session) RoomInfo(ctx context.Context, roomJID string) (*disco.InfoQuery, error) {
	if s.muc == nil {
		return nil, errMUCNotLoaded
	}
	return s.muc.RoomInfo(ctx, roomJID)
}
