// Package filetransfer implements XEP-0096 SI File Transfer: the
// stream-initiation profile that negotiates a byte-stream method (SOCKS5
// or In-Band) and then drives the chosen backend to move the file.
package filetransfer

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/anchorwire/xmpp/internal/ns"
	"github.com/anchorwire/xmpp/jid"
	"github.com/anchorwire/xmpp/plugin"
	"github.com/anchorwire/xmpp/plugins/bytestream"
	"github.com/anchorwire/xmpp/plugins/form"
	"github.com/anchorwire/xmpp/plugins/si"
	"github.com/anchorwire/xmpp/stanza"
)

const Name = "filetransfer"

// methodPreference is the order backends are offered/selected in,
// SOCKS5 before In-Band, per XEP-0096's recommendation.
var methodPreference = []string{ns.SOCKS5, ns.IBB}

// Hash is a XEP-0300 content hash advertised alongside file metadata.
type Hash struct {
	XMLName xml.Name `xml:"urn:xmpp:hashes:2 hash"`
	Algo    string   `xml:"algo,attr"`
	Value   string   `xml:",chardata"`
}

// Range requests or confirms a partial transfer starting at Offset.
type Range struct {
	XMLName xml.Name `xml:"range"`
	Offset  int64    `xml:"offset,attr,omitempty"`
	Length  int64    `xml:"length,attr,omitempty"`
}

// File is the XEP-0096 SI file-transfer profile content.
type File struct {
	XMLName xml.Name `xml:"http://jabber.org/protocol/si/profile/file-transfer file"`
	Name    string   `xml:"name,attr"`
	Size    int64    `xml:"size,attr"`
	Date    string   `xml:"date,attr,omitempty"`
	Desc    string   `xml:"desc,omitempty"`
	Range   *Range   `xml:"range,omitempty"`
	Hashes  []Hash   `xml:"hash,omitempty"`
}

// Session is one negotiated file transfer, indexed by SID for the
// lifetime of the transfer.
type Session struct {
	SID       string
	Direction bytestream.Direction
	From      string
	To        string
	Meta      File
	Method    string // the selected byte-stream namespace

	transferred atomic.Int64
	cancel      context.CancelFunc
}

// Transferred returns the number of bytes moved so far.
func (s *Session) Transferred() int64 { return s.transferred.Load() }

// OfferRequest is what an inbound SI file-transfer offer decodes to,
// handed to the accept callback so it can decide whether to receive it.
type OfferRequest struct {
	SID     string
	From    jid.JID
	Meta    File
	Methods []string
}

// AcceptFunc decides whether to receive an incoming file. Returning a nil
// sink, or accept=false, rejects the offer with not-acceptable.
type AcceptFunc func(ctx context.Context, req OfferRequest) (sink io.WriteCloser, accept bool)

// Plugin implements XEP-0096, coordinating XEP-0095 Stream Initiation with
// whichever byte-stream backends (XEP-0065 SOCKS5, XEP-0047 In-Band) are
// loaded.
type Plugin struct {
	params plugin.InitParams
	si     *si.Plugin

	mu       sync.Mutex
	backends map[string]bytestream.Backend
	sessions map[string]*Session

	acceptFn AcceptFunc

	// ForceInBand skips SOCKS5 entirely, even when loaded, matching the
	// spec's force_in_band override.
	ForceInBand bool

	onProgress func(*Session, int64)
	onAborted  func(*Session, error)
}

func New() *Plugin {
	return &Plugin{backends: make(map[string]bytestream.Backend)}
}

func (p *Plugin) Name() string    { return Name }
func (p *Plugin) Version() string { return "1.0.0" }

func (p *Plugin) Initialize(_ context.Context, params plugin.InitParams) error {
	p.params = params
	if sp, ok := params.Get(si.Name); ok {
		p.si, _ = sp.(*si.Plugin)
	}
	p.registerBackendByName(params, "socks5")
	p.registerBackendByName(params, "ibb")
	return nil
}

func (p *Plugin) registerBackendByName(params plugin.InitParams, name string) {
	if params.Get == nil {
		return
	}
	bp, ok := params.Get(name)
	if !ok {
		return
	}
	if b, ok := bp.(bytestream.Backend); ok {
		p.RegisterBackend(b)
	}
}

func (p *Plugin) Close() error           { return nil }
func (p *Plugin) Dependencies() []string { return []string{si.Name} }

// RegisterBackend makes b available as a byte-stream method, keyed by its
// namespace. Called automatically for the built-in socks5/ibb plugins when
// they're loaded alongside this one; exposed for alternative backends.
func (p *Plugin) RegisterBackend(b bytestream.Backend) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.backends[b.Namespace()] = b
}

// OnIncomingFile registers the single callback consulted for every inbound
// offer: it decides whether to receive the file and where.
func (p *Plugin) OnIncomingFile(fn AcceptFunc) { p.acceptFn = fn }

// OnProgress registers the callback invoked as bytes move for any session,
// sending or receiving.
func (p *Plugin) OnProgress(fn func(*Session, int64)) { p.onProgress = fn }

// OnAborted registers the callback invoked when a session ends in error
// (including explicit cancellation).
func (p *Plugin) OnAborted(fn func(*Session, error)) { p.onAborted = fn }

func (p *Plugin) availableMethods() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	methods := make([]string, 0, len(methodPreference))
	for _, ns_ := range methodPreference {
		if ns_ == ns.SOCKS5 && p.ForceInBand {
			continue
		}
		if _, ok := p.backends[ns_]; ok {
			methods = append(methods, ns_)
		}
	}
	return methods
}

func (p *Plugin) backend(namespace string) (bytestream.Backend, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.backends[namespace]
	return b, ok
}

func (p *Plugin) addSession(s *Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.sessions[s.SID]; exists {
		return fmt.Errorf("filetransfer: duplicate sid %q", s.SID)
	}
	if p.sessions == nil {
		p.sessions = make(map[string]*Session)
	}
	p.sessions[s.SID] = s
	return nil
}

func (p *Plugin) removeSession(sid string) {
	p.mu.Lock()
	delete(p.sessions, sid)
	p.mu.Unlock()
}

// Session returns the live session for sid, if any.
func (p *Plugin) Session(sid string) (*Session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[sid]
	return s, ok
}

// CancelTransfer aborts sid's transfer, if one is in progress.
func (p *Plugin) CancelTransfer(sid string) {
	p.mu.Lock()
	s, ok := p.sessions[sid]
	p.mu.Unlock()
	if !ok {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	if b, ok := p.backend(s.Method); ok {
		b.Cancel(sid)
	}
}

// Offer sends an SI file-transfer request to toJID for meta, reading its
// content from source, and blocks until the peer accepts (starting the
// transfer) or rejects.
func (p *Plugin) Offer(ctx context.Context, toJID, sid string, meta File, source io.Reader) (*Session, error) {
	if p.si == nil {
		return nil, fmt.Errorf("filetransfer: stream initiation plugin not loaded")
	}
	methods := p.availableMethods()
	if len(methods) == 0 {
		return nil, fmt.Errorf("filetransfer: no byte-stream backends loaded")
	}

	fileBody, err := xml.Marshal(meta)
	if err != nil {
		return nil, err
	}

	resultForm, err := p.si.Offer(ctx, toJID, sid, ns.SIFileTransfer, "", fileBody, methods)
	if err != nil {
		return nil, err
	}
	method := resultForm.GetValue("stream-method")
	backend, ok := p.backend(method)
	if !ok {
		return nil, fmt.Errorf("filetransfer: peer selected unsupported method %q", method)
	}

	local := p.params.LocalJID()
	s := &Session{SID: sid, Direction: bytestream.Sending, From: local, To: toJID, Meta: meta, Method: method}
	if err := p.addSession(s); err != nil {
		return nil, err
	}

	tctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go p.run(tctx, s, backend, &bytestream.Transfer{
		SID:          sid,
		Direction:    bytestream.Sending,
		InitiatorJID: bare(local),
		TargetJID:    bare(toJID),
		PeerJID:      toJID,
		Size:         meta.Size,
		Source:       source,
	})
	return s, nil
}

// ObserveOffer recognizes an inbound SI IQ-get profiled as file-transfer,
// decodes its file metadata and advertised methods, and reports them as an
// OfferRequest. It reports false when iq is not such an offer.
func (p *Plugin) ObserveOffer(iq *stanza.IQ) (OfferRequest, bool) {
	if iq.Type != stanza.IQSet && iq.Type != stanza.IQGet {
		return OfferRequest{}, false
	}
	var payload si.SI
	if err := xml.Unmarshal(iq.Query, &payload); err != nil || payload.Profile != ns.SIFileTransfer {
		return OfferRequest{}, false
	}
	var meta File
	if err := xml.Unmarshal(payload.Content, &meta); err != nil {
		return OfferRequest{}, false
	}
	methods := make([]string, 0, len(payload.Feature.Form.Fields))
	for _, f := range payload.Feature.Form.Fields {
		if f.Var == "stream-method" {
			methods = f.Values
			for _, opt := range f.Options {
				methods = append(methods, opt.Value)
			}
		}
	}
	return OfferRequest{SID: payload.ID, From: iq.From, Meta: meta, Methods: methods}, true
}

// HandleOffer answers an inbound SI file-transfer offer (recognized via
// ObserveOffer): a duplicate sid is rejected with Conflict, a
// no-overlapping-method or declined offer is rejected with NotAcceptable,
// and an accepted offer is registered and its receive started.
func (p *Plugin) HandleOffer(ctx context.Context, iq *stanza.IQ, req OfferRequest) error {
	if p.params.SendElement == nil {
		return fmt.Errorf("filetransfer: session does not support sending")
	}
	if _, exists := p.Session(req.SID); exists {
		return p.params.SendElement(ctx, iq.ErrorIQ(stanza.NewStanzaError(stanza.ErrorTypeCancel, stanza.ErrorConflict, "")))
	}

	method := p.selectMethod(req.Methods)
	if method == "" || p.acceptFn == nil {
		return p.params.SendElement(ctx, iq.ErrorIQ(stanza.NewStanzaError(stanza.ErrorTypeModify, stanza.ErrorNotAcceptable, "")))
	}
	sink, ok := p.acceptFn(ctx, req)
	if !ok || sink == nil {
		return p.params.SendElement(ctx, iq.ErrorIQ(stanza.NewStanzaError(stanza.ErrorTypeModify, stanza.ErrorNotAcceptable, "")))
	}
	backend, ok := p.backend(method)
	if !ok {
		return p.params.SendElement(ctx, iq.ErrorIQ(stanza.NewStanzaError(stanza.ErrorTypeModify, stanza.ErrorNotAcceptable, "")))
	}

	local := p.params.LocalJID()
	s := &Session{SID: req.SID, Direction: bytestream.Receiving, From: req.From.String(), To: local, Meta: req.Meta, Method: method}
	if err := p.addSession(s); err != nil {
		return p.params.SendElement(ctx, iq.ErrorIQ(stanza.NewStanzaError(stanza.ErrorTypeCancel, stanza.ErrorConflict, "")))
	}

	f := form.NewForm(form.TypeSubmit, "")
	f.AddField(form.Field{Var: "stream-method", Values: []string{method}})
	resultBody, err := xml.Marshal(si.SI{
		ID:      req.SID,
		Profile: ns.SIFileTransfer,
		Feature: si.FeatureNeg{Form: *f},
	})
	if err != nil {
		p.removeSession(req.SID)
		return err
	}
	result := iq.ResultIQ()
	result.Query = resultBody
	if err := p.params.SendElement(ctx, result); err != nil {
		p.removeSession(req.SID)
		return err
	}

	tctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go p.run(tctx, s, backend, &bytestream.Transfer{
		SID:          req.SID,
		Direction:    bytestream.Receiving,
		InitiatorJID: bare(req.From.String()),
		TargetJID:    bare(local),
		PeerJID:      req.From.String(),
		Size:         req.Meta.Size,
		Sink:         sink,
	})
	return nil
}

func (p *Plugin) selectMethod(offered []string) string {
	offeredSet := make(map[string]bool, len(offered))
	for _, m := range offered {
		offeredSet[m] = true
	}
	for _, m := range methodPreference {
		if m == ns.SOCKS5 && p.ForceInBand {
			continue
		}
		if !offeredSet[m] {
			continue
		}
		if _, ok := p.backend(m); ok {
			return m
		}
	}
	return ""
}

func (p *Plugin) run(ctx context.Context, s *Session, backend bytestream.Backend, t *bytestream.Transfer) {
	t.OnProgress = func(n int64) {
		s.transferred.Store(n)
		if p.onProgress != nil {
			p.onProgress(s, n)
		}
	}
	err := backend.Transfer(ctx, t)
	p.removeSession(s.SID)
	if closer, ok := t.Sink.(io.Closer); ok {
		closer.Close()
	}
	if err != nil && p.onAborted != nil {
		p.onAborted(s, err)
	}
}

func bare(s string) string {
	j, err := jid.Parse(s)
	if err != nil {
		return s
	}
	return j.Bare().String()
}
