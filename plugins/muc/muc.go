// Package muc implements XEP-0045 Multi-User Chat and XEP-0249 Direct MUC
// Invitations.
package muc

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
	"github.com/anchorwire/xmpp/plugins/form"
	"github.com/anchorwire/xmpp/stanza"
	"github.com/anchorwire/xmpp/storage"
)

const Name = "muc"

// Affiliations
const (
	AffOwner   = "owner"
	AffAdmin   = "admin"
	AffMember  = "member"
	AffOutcast = "outcast"
	AffNone    = "none"
)

// Roles
const (
	RoleModerator   = "moderator"
	RoleParticipant = "participant"
	RoleVisitor     = "visitor"
	RoleNone        = "none"
)

// Status codes (XEP-0045 §17.2), the values a StatusSet may carry.
const (
	CodeNonAnonymousRoom   = 100
	CodeAffiliationChange  = 101
	CodeFullJIDVisible     = 110 // also: this is the sender's own presence
	CodeRoomCreated        = 201
	CodeNickChanged        = 210
	CodeBanned             = 301
	CodeNickAssigned       = 303
	CodeKicked             = 307
	CodeAffiliationRemoved = 321
	CodeMembersOnly        = 322
	CodeRoomDestroyed      = 332
)

// StatusSet is the set of XEP-0045 §17.2 status codes carried by a single
// presence.
type StatusSet map[int]struct{}

func newStatusSet(codes []Status) StatusSet {
	set := make(StatusSet, len(codes))
	for _, c := range codes {
		set[c.Code] = struct{}{}
	}
	return set
}

// Has reports whether code is present in the set.
func (s StatusSet) Has(code int) bool {
	_, ok := s[code]
	return ok
}

type MUC struct {
	XMLName  xml.Name `xml:"http://jabber.org/protocol/muc x"`
	History  *History `xml:"history,omitempty"`
	Password string   `xml:"password,omitempty"`
}

type History struct {
	XMLName    xml.Name `xml:"history"`
	MaxChars   *int     `xml:"maxchars,attr,omitempty"`
	MaxStanzas *int     `xml:"maxstanzas,attr,omitempty"`
	Seconds    *int     `xml:"seconds,attr,omitempty"`
	Since      string   `xml:"since,attr,omitempty"`
}

// UserX is the http://jabber.org/protocol/muc#user payload carried by MUC
// presence and message stanzas.
type UserX struct {
	XMLName xml.Name   `xml:"http://jabber.org/protocol/muc#user x"`
	Items   []UserItem `xml:"item"`
	Status  []Status   `xml:"status"`
	Invite  []Invite   `xml:"invite"`
	Decline *Decline   `xml:"decline,omitempty"`
}

func (u *UserX) StatusSet() StatusSet { return newStatusSet(u.Status) }

type UserItem struct {
	XMLName     xml.Name `xml:"item"`
	Affiliation string   `xml:"affiliation,attr,omitempty"`
	Role        string   `xml:"role,attr,omitempty"`
	JID         string   `xml:"jid,attr,omitempty"`
	Nick        string   `xml:"nick,attr,omitempty"`
	Reason      string   `xml:"reason,omitempty"`
}

type Status struct {
	XMLName xml.Name `xml:"status"`
	Code    int      `xml:"code,attr"`
}

type Invite struct {
	XMLName xml.Name `xml:"invite"`
	From    string   `xml:"from,attr,omitempty"`
	To      string   `xml:"to,attr,omitempty"`
	Reason  string   `xml:"reason,omitempty"`
}

type Decline struct {
	XMLName xml.Name `xml:"decline"`
	From    string   `xml:"from,attr,omitempty"`
	To      string   `xml:"to,attr,omitempty"`
	Reason  string   `xml:"reason,omitempty"`
}

type AdminQuery struct {
	XMLName xml.Name   `xml:"http://jabber.org/protocol/muc#admin query"`
	Items   []UserItem `xml:"item"`
}

type OwnerQuery struct {
	XMLName xml.Name `xml:"http://jabber.org/protocol/muc#owner query"`
	Form    []byte   `xml:",innerxml"`
	Destroy *Destroy `xml:"destroy,omitempty"`
}

type Destroy struct {
	XMLName xml.Name `xml:"destroy"`
	JID     string   `xml:"jid,attr,omitempty"`
	Reason  string   `xml:"reason,omitempty"`
}

// DirectInvite represents XEP-0249.
type DirectInvite struct {
	XMLName  xml.Name `xml:"jabber:x:conference x"`
	JID      string   `xml:"jid,attr"`
	Password string   `xml:"password,attr,omitempty"`
	Reason   string   `xml:"reason,attr,omitempty"`
}

// Occupant is a single room member as currently known from presence.
type Occupant struct {
	Nick        string
	JID         string // real JID, only known in non-anonymous rooms
	Affiliation string
	Role        string
}

// Room is the locally cached view of a joined (or previously joined) room.
type Room struct {
	JID       string
	Nick      string
	Joined    bool
	Subject   string
	Occupants map[string]*Occupant // keyed by nick
}

type Plugin struct {
	mu     sync.RWMutex
	rooms  map[string]*Room // in-memory fallback, keyed by bare room JID
	store  storage.MUCRoomStore
	params plugin.InitParams
}

func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Name() string    { return Name }
func (p *Plugin) Version() string { return "1.0.0" }

func (p *Plugin) Initialize(_ context.Context, params plugin.InitParams) error {
	p.params = params
	if params.Storage != nil {
		p.store = params.Storage.MUCRoomStore()
	}
	if p.store == nil {
		p.rooms = make(map[string]*Room)
	}
	return nil
}
func (p *Plugin) Close() error           { return nil }
func (p *Plugin) Dependencies() []string { return nil }

// --- local cache -----------------------------------------------------

func (p *Plugin) room(roomJID string) *Room {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.rooms[roomJID]
	if !ok {
		r = &Room{JID: roomJID, Occupants: make(map[string]*Occupant)}
		p.rooms[roomJID] = r
	}
	if r.Occupants == nil {
		r.Occupants = make(map[string]*Occupant)
	}
	return r
}

func (p *Plugin) GetRoom(_ context.Context, roomJID string) (*Room, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.rooms[roomJID]
	return r, ok
}

func (p *Plugin) Rooms(_ context.Context) []*Room {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rooms := make([]*Room, 0, len(p.rooms))
	for _, r := range p.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// noteOccupant updates the local room/occupant cache from an inbound MUC
// presence.
func (p *Plugin) noteOccupant(roomBare, nick string, available bool, item *UserItem) {
	r := p.room(roomBare)
	p.mu.Lock()
	defer p.mu.Unlock()
	if !available {
		delete(r.Occupants, nick)
		return
	}
	occ := &Occupant{Nick: nick}
	if item != nil {
		occ.JID = item.JID
		occ.Affiliation = item.Affiliation
		occ.Role = item.Role
	}
	r.Occupants[nick] = occ
}

func (p *Plugin) setSubject(roomBare, subject string) {
	r := p.room(roomBare)
	p.mu.Lock()
	defer p.mu.Unlock()
	r.Subject = subject
}

func (p *Plugin) setJoined(roomBare, nick string, joined bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.rooms[roomBare]
	if !ok {
		r = &Room{JID: roomBare, Occupants: make(map[string]*Occupant)}
		p.rooms[roomBare] = r
	}
	r.Joined = joined
	r.Nick = nick
	if p.store != nil {
		if joined {
			_ = p.store.CreateRoom(context.Background(), &storage.MUCRoom{RoomJID: roomBare, Name: nick})
		} else {
			_ = p.store.DeleteRoom(context.Background(), roomBare)
		}
	}
}

// --- decoding helpers --------------------------------------------------

// wrapExtension reconstitutes the full <x/> element Extension's generic
// decoder split into a namespace, an attribute set, and raw inner XML,
// so it can be unmarshaled again into a concrete type.
func wrapExtension(ext *stanza.Extension, namespace string) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<x xmlns="`)
	buf.WriteString(namespace)
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
	buf.WriteString(`</x>`)
	return buf.Bytes()
}

// decodeUserX unmarshals ext's captured payload back into a UserX.
func decodeUserX(ext *stanza.Extension) (*UserX, error) {
	if ext == nil {
		return nil, fmt.Errorf("muc: no muc#user payload present")
	}
	var ux UserX
	if err := xml.Unmarshal(wrapExtension(ext, ns.MUCUser), &ux); err != nil {
		return nil, err
	}
	return &ux, nil
}

// --- network operations ------------------------------------------------

func (p *Plugin) send(ctx context.Context, v any) error {
	if p.params.SendElement == nil {
		return fmt.Errorf("muc: session does not support sending elements")
	}
	return p.params.SendElement(ctx, v)
}

func roomNickJID(roomJID, nick string) (jid.JID, error) {
	room, err := jid.Parse(roomJID)
	if err != nil {
		return jid.JID{}, err
	}
	return room.WithResource(nick), nil
}

// Join sends available presence to roomJID/nick, requesting history and
// supplying password when set.
func (p *Plugin) Join(ctx context.Context, roomJID, nick, password string, history *History) error {
	to, err := roomNickJID(roomJID, nick)
	if err != nil {
		return err
	}
	pres := stanza.NewPresence(stanza.PresenceAvailable)
	pres.To = to
	body, err := xml.Marshal(MUC{History: history, Password: password})
	if err != nil {
		return err
	}
	pres.Extensions = append(pres.Extensions, stanza.Extension{
		XMLName: xml.Name{Space: ns.MUC, Local: "x"},
		Inner:   body,
	})
	if err := p.send(ctx, pres); err != nil {
		return err
	}
	p.setJoined(roomJID, nick, true)
	return nil
}

// Leave sends unavailable presence to roomJID/nick.
func (p *Plugin) Leave(ctx context.Context, roomJID, nick string) error {
	to, err := roomNickJID(roomJID, nick)
	if err != nil {
		return err
	}
	pres := stanza.NewPresence(stanza.PresenceUnavailable)
	pres.To = to
	if err := p.send(ctx, pres); err != nil {
		return err
	}
	p.setJoined(roomJID, "", false)
	return nil
}

func (p *Plugin) admin(ctx context.Context, roomJID string, item UserItem) error {
	if p.params.IQRequest == nil {
		return fmt.Errorf("muc: session does not support IQ requests")
	}
	req := stanza.NewIQ(stanza.IQSet)
	to, err := jid.Parse(roomJID)
	if err != nil {
		return err
	}
	req.To = to
	body, err := xml.Marshal(AdminQuery{Items: []UserItem{item}})
	if err != nil {
		return err
	}
	req.Query = body
	_, err = p.params.IQRequest(ctx, req)
	return err
}

// Kick sets nick's role to none, removing them from the room.
func (p *Plugin) Kick(ctx context.Context, roomJID, nick, reason string) error {
	return p.admin(ctx, roomJID, UserItem{Nick: nick, Role: RoleNone, Reason: reason})
}

// Ban sets occupantJID's affiliation to outcast.
func (p *Plugin) Ban(ctx context.Context, roomJID, occupantJID, reason string) error {
	return p.admin(ctx, roomJID, UserItem{JID: occupantJID, Affiliation: AffOutcast, Reason: reason})
}

// SetAffiliation changes occupantJID's affiliation.
func (p *Plugin) SetAffiliation(ctx context.Context, roomJID, occupantJID, affiliation, reason string) error {
	return p.admin(ctx, roomJID, UserItem{JID: occupantJID, Affiliation: affiliation, Reason: reason})
}

// SetRole changes nick's role.
func (p *Plugin) SetRole(ctx context.Context, roomJID, nick, role, reason string) error {
	return p.admin(ctx, roomJID, UserItem{Nick: nick, Role: role, Reason: reason})
}

// GrantVoice sets nick's role to participant.
func (p *Plugin) GrantVoice(ctx context.Context, roomJID, nick string) error {
	return p.SetRole(ctx, roomJID, nick, RoleParticipant, "")
}

// RevokeVoice sets nick's role to visitor.
func (p *Plugin) RevokeVoice(ctx context.Context, roomJID, nick string) error {
	return p.SetRole(ctx, roomJID, nick, RoleVisitor, "")
}

// Invite sends a mediated invitation to inviteeJID via the room.
func (p *Plugin) Invite(ctx context.Context, roomJID, inviteeJID, reason string) error {
	msg := stanza.NewMessage("")
	to, err := jid.Parse(roomJID)
	if err != nil {
		return err
	}
	msg.To = to
	body, err := xml.Marshal(UserX{Invite: []Invite{{To: inviteeJID, Reason: reason}}})
	if err != nil {
		return err
	}
	msg.Extensions = append(msg.Extensions, stanza.Extension{
		XMLName: xml.Name{Space: ns.MUCUser, Local: "x"},
		Inner:   body,
	})
	return p.send(ctx, msg)
}

// InviteDirect sends a XEP-0249 direct invitation to toJID.
func (p *Plugin) InviteDirect(ctx context.Context, toJID, roomJID, password, reason string) error {
	msg := stanza.NewMessage("")
	to, err := jid.Parse(toJID)
	if err != nil {
		return err
	}
	msg.To = to
	body, err := xml.Marshal(DirectInvite{JID: roomJID, Password: password, Reason: reason})
	if err != nil {
		return err
	}
	msg.Extensions = append(msg.Extensions, stanza.Extension{
		XMLName: xml.Name{Space: ns.MUCInvite, Local: "x"},
		Inner:   body,
	})
	return p.send(ctx, msg)
}

// Decline refuses a mediated invitation to roomJID, addressed back to the
// original inviter declinerTo.
func (p *Plugin) Decline(ctx context.Context, roomJID, declinerTo, reason string) error {
	msg := stanza.NewMessage("")
	to, err := jid.Parse(roomJID)
	if err != nil {
		return err
	}
	msg.To = to
	body, err := xml.Marshal(UserX{Decline: &Decline{To: declinerTo, Reason: reason}})
	if err != nil {
		return err
	}
	msg.Extensions = append(msg.Extensions, stanza.Extension{
		XMLName: xml.Name{Space: ns.MUCUser, Local: "x"},
		Inner:   body,
	})
	return p.send(ctx, msg)
}

// EditSubject sends a subject-only groupchat message to roomJID.
func (p *Plugin) EditSubject(ctx context.Context, roomJID, subject string) error {
	msg := stanza.NewMessage(stanza.MessageGroupchat)
	to, err := jid.Parse(roomJID)
	if err != nil {
		return err
	}
	msg.To = to
	msg.Subject = subject
	return p.send(ctx, msg)
}

// RequestConfig fetches the room configuration form (IQ-Get to the owner
// namespace).
func (p *Plugin) RequestConfig(ctx context.Context, roomJID string) (*form.Form, error) {
	if p.params.IQRequest == nil {
		return nil, fmt.Errorf("muc: session does not support IQ requests")
	}
	req := stanza.NewIQ(stanza.IQGet)
	to, err := jid.Parse(roomJID)
	if err != nil {
		return nil, err
	}
	req.To = to
	body, err := xml.Marshal(OwnerQuery{})
	if err != nil {
		return nil, err
	}
	req.Query = body
	resp, err := p.params.IQRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	var q OwnerQuery
	if err := xml.Unmarshal(resp.Query, &q); err != nil {
		return nil, err
	}
	var f form.Form
	if err := xml.Unmarshal(q.Form, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// SubmitConfig sends a completed configuration form back as an IQ-Set.
func (p *Plugin) SubmitConfig(ctx context.Context, roomJID string, f *form.Form) error {
	if p.params.IQRequest == nil {
		return fmt.Errorf("muc: session does not support IQ requests")
	}
	req := stanza.NewIQ(stanza.IQSet)
	to, err := jid.Parse(roomJID)
	if err != nil {
		return err
	}
	req.To = to
	formBody, err := xml.Marshal(f)
	if err != nil {
		return err
	}
	req.Query = formBody
	_, err = p.params.IQRequest(ctx, req)
	return err
}

// RequestInstantRoom accepts a newly-created room's defaults by submitting
// an empty "submit" form to the owner namespace.
func (p *Plugin) RequestInstantRoom(ctx context.Context, roomJID string) error {
	return p.SubmitConfig(ctx, roomJID, &form.Form{Type: form.TypeSubmit})
}

// Destroy destroys roomJID, optionally pointing occupants at an alternate
// room.
func (p *Plugin) Destroy(ctx context.Context, roomJID, alternateJID, reason string) error {
	if p.params.IQRequest == nil {
		return fmt.Errorf("muc: session does not support IQ requests")
	}
	req := stanza.NewIQ(stanza.IQSet)
	to, err := jid.Parse(roomJID)
	if err != nil {
		return err
	}
	req.To = to
	body, err := xml.Marshal(OwnerQuery{Destroy: &Destroy{JID: alternateJID, Reason: reason}})
	if err != nil {
		return err
	}
	req.Query = body
	_, err = p.params.IQRequest(ctx, req)
	return err
}

// RequestVoice asks a moderated room for speaking privileges via a
// muc#request data form, per XEP-0045 §7.13.
func (p *Plugin) RequestVoice(ctx context.Context, roomJID string) error {
	msg := stanza.NewMessage("")
	to, err := jid.Parse(roomJID)
	if err != nil {
		return err
	}
	msg.To = to
	f := form.Form{
		Type: form.TypeSubmit,
		Fields: []form.Field{
			{Var: "FORM_TYPE", Type: form.FieldHidden, Values: []string{"http://jabber.org/protocol/muc#request"}},
			{Var: "muc#role", Type: form.FieldTextSingle, Values: []string{RoleParticipant}},
		},
	}
	body, err := xml.Marshal(f)
	if err != nil {
		return err
	}
	msg.Extensions = append(msg.Extensions, stanza.Extension{
		XMLName: xml.Name{Space: "jabber:x:data", Local: "x"},
		Inner:   body,
	})
	return p.send(ctx, msg)
}

// DiscoverRooms lists the rooms hosted by a MUC service.
func (p *Plugin) DiscoverRooms(ctx context.Context, serviceJID string) ([]disco.Item, error) {
	if p.params.IQRequest == nil {
		return nil, fmt.Errorf("muc: session does not support IQ requests")
	}
	req := stanza.NewIQ(stanza.IQGet)
	to, err := jid.Parse(serviceJID)
	if err != nil {
		return nil, err
	}
	req.To = to
	body, err := xml.Marshal(disco.ItemsQuery{})
	if err != nil {
		return nil, err
	}
	req.Query = body
	resp, err := p.params.IQRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	var q disco.ItemsQuery
	if err := xml.Unmarshal(resp.Query, &q); err != nil {
		return nil, err
	}
	return q.Items, nil
}

// ObservePresence recognizes an inbound MUC presence (one carrying a
// muc#user x), updates the local occupant cache, and returns its decoded
// payload. ok is false for an ordinary, non-MUC presence.
func (p *Plugin) ObservePresence(pres *stanza.Presence) (ux *UserX, ok bool) {
	ext := pres.MUCUser()
	if ext == nil {
		return nil, false
	}
	decoded, err := decodeUserX(ext)
	if err != nil {
		return nil, false
	}
	roomBare := pres.From.Bare().String()
	nick := pres.From.Resource()
	var item *UserItem
	if len(decoded.Items) > 0 {
		item = &decoded.Items[0]
	}
	p.noteOccupant(roomBare, nick, pres.Type == stanza.PresenceAvailable, item)
	return decoded, true
}

// ObserveMessage recognizes an inbound mediated invite/decline (a message
// carrying a muc#user x) and returns its decoded payload.
func (p *Plugin) ObserveMessage(msg *stanza.Message) (ux *UserX, ok bool) {
	ext := msg.MUCUser()
	if ext == nil {
		return nil, false
	}
	decoded, err := decodeUserX(ext)
	if err != nil {
		return nil, false
	}
	return decoded, true
}

// ObserveDirectInvite recognizes an inbound XEP-0249 direct invitation.
func (p *Plugin) ObserveDirectInvite(msg *stanza.Message) (*DirectInvite, bool) {
	ext := msg.DirectInviteExt()
	if ext == nil {
		return nil, false
	}
	var di DirectInvite
	if err := xml.Unmarshal(wrapExtension(ext, ns.MUCInvite), &di); err != nil {
		return nil, false
	}
	return &di, true
}

// ObserveSubject recognizes a subject-only groupchat message (no body),
// updates the cached room subject, and returns the room JID and subject.
func (p *Plugin) ObserveSubject(msg *stanza.Message) (roomJID, subject string, ok bool) {
	if msg.Type != stanza.MessageGroupchat || msg.Body != "" || msg.Subject == "" {
		return "", "", false
	}
	roomJID = msg.From.Bare().String()
	p.setSubject(roomJID, msg.Subject)
	return roomJID, msg.Subject, true
}

// RoomInfo fetches a room's identity and feature set.
func (p *Plugin) RoomInfo(ctx context.Context, roomJID string) (*disco.InfoQuery, error) {
	if p.params.IQRequest == nil {
		return nil, fmt.Errorf("muc: session does not support IQ requests")
	}
	req := stanza.NewIQ(stanza.IQGet)
	to, err := jid.Parse(roomJID)
	if err != nil {
		return nil, err
	}
	req.To = to
	body, err := xml.Marshal(disco.InfoQuery{})
	if err != nil {
		return nil, err
	}
	req.Query = body
	resp, err := p.params.IQRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	var q disco.InfoQuery
	if err := xml.Unmarshal(resp.Query, &q); err != nil {
		return nil, err
	}
	return &q, nil
}
