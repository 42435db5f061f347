package im

import (
	"github.com/anchorwire/xmpp/jid"
	"github.com/anchorwire/xmpp/plugins/muc"
)

// Status is raised when inbound available/unavailable presence from a
// contact is classified.
type Status struct {
	From      jid.JID
	Available bool
	Show      string // "", ShowAway, ShowChat, ShowDND, ShowXA
	Priority  int8
	Messages  map[string]string // xml:lang -> status text; "" is the unlocalized default
}

// GroupPresenceChanged is raised for an occupant presence carrying a
// muc#user x: a join, leave, nick change, kick, ban, or other affiliation
// or role transition, distinguished by StatusCodes.
type GroupPresenceChanged struct {
	Room        jid.JID // bare room JID
	Nick        string
	Available   bool
	Item        *muc.UserItem // affiliation/role/real JID, when present
	StatusCodes muc.StatusSet
}

// GroupInvite is raised for a mediated (XEP-0045) invitation to join Room.
type GroupInvite struct {
	Room   jid.JID
	From   jid.JID
	Reason string
}

// GroupDirectInvite is raised for a XEP-0249 direct invitation.
type GroupDirectInvite struct {
	Room     jid.JID
	From     jid.JID
	Password string
	Reason   string
}

// GroupInviteDeclined is raised when an invitee declines a mediated
// invitation.
type GroupInviteDeclined struct {
	Room   jid.JID
	From   jid.JID
	Reason string
}

// GroupChatSubjectChanged is raised for a subject-only groupchat message.
type GroupChatSubjectChanged struct {
	Room    jid.JID
	From    jid.JID
	Subject string
}

// GroupMucError is raised for a MUC-context presence or message carrying an
// error child.
type GroupMucError struct {
	Room      jid.JID
	Type      string
	Condition string
}

// FileTransferOffer describes an inbound SI file-transfer request, passed
// to the callback registered via OnIncomingFileOffer. Returning a nil sink
// (or ok=false) rejects the offer with not-acceptable.
type FileTransferOffer struct {
	SID  string
	From jid.JID
	Name string
	Size int64
	Desc string
}

// FileTransferProgress is raised as bytes move for a negotiated transfer,
// sending or receiving.
type FileTransferProgress struct {
	SID         string
	Name        string
	Total       int64
	Transferred int64
}

// FileTransferAborted is raised when a transfer ends in error, including
// explicit cancellation.
type FileTransferAborted struct {
	SID  string
	Name string
	Err  error
}
