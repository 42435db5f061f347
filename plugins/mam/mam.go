// Package mam implements XEP-0313 Message Archive Management.
package mam

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"sync"

	"github.com/anchorwire/xmpp/internal/ns"
	"github.com/anchorwire/xmpp/jid"
	"github.com/anchorwire/xmpp/plugin"
	"github.com/anchorwire/xmpp/plugins/form"
	"github.com/anchorwire/xmpp/plugins/forward"
	"github.com/anchorwire/xmpp/plugins/rsm"
	"github.com/anchorwire/xmpp/stanza"
	"github.com/anchorwire/xmpp/storage"
)

const Name = "mam"

type Query struct {
	XMLName xml.Name `xml:"urn:xmpp:mam:2 query"`
	QueryID string   `xml:"queryid,attr,omitempty"`
	Node    string   `xml:"node,attr,omitempty"`
	Form    []byte   `xml:",innerxml"`
}

type Fin struct {
	XMLName  xml.Name `xml:"urn:xmpp:mam:2 fin"`
	QueryID  string   `xml:"queryid,attr,omitempty"`
	Complete bool     `xml:"complete,attr,omitempty"`
	Stable   bool     `xml:"stable,attr,omitempty"`
	Set      []byte   `xml:",innerxml"`
}

type Result struct {
	XMLName   xml.Name `xml:"urn:xmpp:mam:2 result"`
	QueryID   string   `xml:"queryid,attr,omitempty"`
	ID        string   `xml:"id,attr"`
	Forwarded []byte   `xml:",innerxml"`
}

type Prefs struct {
	XMLName xml.Name `xml:"urn:xmpp:mam:2 prefs"`
	Default string   `xml:"default,attr"`
	Always  *JIDList `xml:"always,omitempty"`
	Never   *JIDList `xml:"never,omitempty"`
}

type JIDList struct {
	JIDs []string `xml:"jid"`
}

type Metadata struct {
	XMLName xml.Name `xml:"urn:xmpp:mam:2 metadata"`
	Start   *Info    `xml:"start,omitempty"`
	End     *Info    `xml:"end,omitempty"`
}

type Info struct {
	ID        string `xml:"id,attr"`
	Timestamp string `xml:"timestamp,attr"`
}

// ArchivedMessage is one forwarded result of a Query, reassembled from its
// MAM envelope and the XEP-0297 <forwarded/> wrapper carrying it.
type ArchivedMessage struct {
	QueryID string
	ID      string
	Stamp   string
	Message *stanza.Message
}

// QueryPage is the outcome of a single page request: the results that
// arrived before completion, the closing <fin/> (nil if the wait was cut
// short by ctx), and whether the archive has more pages after this one.
type QueryPage struct {
	Messages []ArchivedMessage
	Fin      *Fin
	Complete bool
}

// pendingQuery collects a live query's forwarded results until its <fin/>
// arrives, which may ride the IQ response itself or a later standalone
// message stanza depending on server behavior.
type pendingQuery struct {
	mu      sync.Mutex
	results []ArchivedMessage
	fin     *Fin
	done    chan struct{}
	once    sync.Once
}

func (pq *pendingQuery) append(am ArchivedMessage) {
	pq.mu.Lock()
	pq.results = append(pq.results, am)
	pq.mu.Unlock()
}

func (pq *pendingQuery) finish(f *Fin) {
	pq.mu.Lock()
	pq.fin = f
	pq.mu.Unlock()
	pq.once.Do(func() { close(pq.done) })
}

func (pq *pendingQuery) drain() []ArchivedMessage {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return append([]ArchivedMessage(nil), pq.results...)
}

// Plugin implements XEP-0313 Message Archive Management, both as the
// client side of an archive query and as the storage-backed server side
// used when this process hosts the archive (e.g. a MUC service).
type Plugin struct {
	mu      sync.Mutex
	pending map[string]*pendingQuery

	store  storage.MAMStore
	params plugin.InitParams
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string    { return Name }
func (p *Plugin) Version() string { return "1.0.0" }
func (p *Plugin) Initialize(_ context.Context, params plugin.InitParams) error {
	p.params = params
	if params.Storage != nil {
		p.store = params.Storage.MAMStore()
	}
	return nil
}
func (p *Plugin) Close() error           { return nil }
func (p *Plugin) Dependencies() []string { return nil }

// StoreMessage archives a message. Returns nil if no store is configured.
func (p *Plugin) StoreMessage(ctx context.Context, msg *storage.ArchivedMessage) error {
	if p.store == nil {
		return nil
	}
	return p.store.ArchiveMessage(ctx, msg)
}

// QueryMessages queries the message archive. Returns nil result if no store is configured.
func (p *Plugin) QueryMessages(ctx context.Context, query *storage.MAMQuery) (*storage.MAMResult, error) {
	if p.store == nil {
		return &storage.MAMResult{Complete: true}, nil
	}
	return p.store.QueryMessages(ctx, query)
}

// PageRequest describes one archive page request against archiveJID (a
// bare account JID for a personal archive, or a room JID for a MUC
// archive).
type PageRequest struct {
	With  string
	Start string
	End   string
	Max   int
	// Before and After select the RSM paging direction; at most one
	// should be set. An empty PageRequest with Max>0 fetches the most
	// recent Max messages (RSM "before" the empty string).
	Before string
	After  string
}

func (r PageRequest) rsmSet() rsm.Set {
	max := r.Max
	if max <= 0 {
		max = 50
	}
	switch {
	case r.Before != "":
		return rsm.NewRequestBefore(max, r.Before)
	case r.After != "":
		return rsm.NewRequestAfter(max, r.After)
	default:
		return rsm.NewRequest(max)
	}
}

func (r PageRequest) filterForm() form.Form {
	f := form.Form{
		Type: form.TypeSubmit,
		Fields: []form.Field{
			{Var: "FORM_TYPE", Type: form.FieldHidden, Values: []string{ns.MAM}},
		},
	}
	if r.With != "" {
		f.Fields = append(f.Fields, form.Field{Var: "with", Values: []string{r.With}})
	}
	if r.Start != "" {
		f.Fields = append(f.Fields, form.Field{Var: "start", Values: []string{r.Start}})
	}
	if r.End != "" {
		f.Fields = append(f.Fields, form.Field{Var: "end", Values: []string{r.End}})
	}
	return f
}

// GetArchivedMessages sends a MAM query to archiveJID and collects its
// forwarded results, finalizing either when the IQ response itself carries
// the closing <fin/> or when one arrives as a subsequent message stanza.
func (p *Plugin) GetArchivedMessages(ctx context.Context, archiveJID string, req PageRequest) (*QueryPage, error) {
	if p.params.IQRequest == nil {
		return nil, fmt.Errorf("mam: session does not support IQ requests")
	}

	formBody, err := xml.Marshal(req.filterForm())
	if err != nil {
		return nil, fmt.Errorf("mam: encode filter form: %w", err)
	}
	setBody, err := xml.Marshal(req.rsmSet())
	if err != nil {
		return nil, fmt.Errorf("mam: encode rsm set: %w", err)
	}

	queryID := stanza.GenerateID()
	q := Query{QueryID: queryID, Form: append(formBody, setBody...)}
	qBody, err := xml.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("mam: encode query: %w", err)
	}

	pq := &pendingQuery{done: make(chan struct{})}
	p.mu.Lock()
	if p.pending == nil {
		p.pending = make(map[string]*pendingQuery)
	}
	p.pending[queryID] = pq
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, queryID)
		p.mu.Unlock()
	}()

	iq := stanza.NewIQ(stanza.IQSet)
	if archiveJID != "" {
		if to, err := jid.Parse(archiveJID); err == nil {
			iq.Header.To = to
		}
	}
	iq.Query = qBody

	resp, err := p.params.IQRequest(ctx, iq)
	if err != nil {
		return nil, err
	}

	if fin, ok := decodeFin(resp.Query); ok {
		return &QueryPage{Messages: pq.drain(), Fin: fin, Complete: fin.Complete}, nil
	}

	select {
	case <-pq.done:
		fin := pq.finSnapshot()
		page := &QueryPage{Messages: pq.drain(), Fin: fin}
		if fin != nil {
			page.Complete = fin.Complete
		}
		return page, nil
	case <-ctx.Done():
		return &QueryPage{Messages: pq.drain()}, ctx.Err()
	}
}

func (pq *pendingQuery) finSnapshot() *Fin {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return pq.fin
}

func decodeFin(body []byte) (*Fin, bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, false
	}
	var f Fin
	if err := xml.Unmarshal(body, &f); err != nil {
		return nil, false
	}
	if f.XMLName.Local != "fin" {
		return nil, false
	}
	return &f, true
}

// ObserveMessage recognizes an inbound <message/> carrying a MAM <result/>
// or <fin/> extension and feeds it to the matching live query. It reports
// false when msg carries neither, so the caller can try other recognizers.
func (p *Plugin) ObserveMessage(msg *stanza.Message) bool {
	for i := range msg.Extensions {
		ext := &msg.Extensions[i]
		if ext.XMLName.Space != ns.MAM {
			continue
		}
		switch ext.XMLName.Local {
		case "result":
			var r Result
			if err := xml.Unmarshal(wrapExtension(ext, "result"), &r); err != nil {
				continue
			}
			p.handleResult(r)
			return true
		case "fin":
			var f Fin
			if err := xml.Unmarshal(wrapExtension(ext, "fin"), &f); err != nil {
				continue
			}
			p.handleFin(f)
			return true
		}
	}
	return false
}

func (p *Plugin) handleResult(r Result) {
	p.mu.Lock()
	pq, ok := p.pending[r.QueryID]
	p.mu.Unlock()
	if !ok {
		return
	}
	var fwd forward.Forwarded
	if err := xml.Unmarshal(r.Forwarded, &fwd); err != nil {
		return
	}
	am := ArchivedMessage{QueryID: r.QueryID, ID: r.ID, Message: fwd.Message}
	if fwd.Delay != nil {
		am.Stamp = fwd.Delay.Stamp
	}
	pq.append(am)
}

func (p *Plugin) handleFin(f Fin) {
	if f.QueryID == "" {
		return
	}
	p.mu.Lock()
	pq, ok := p.pending[f.QueryID]
	p.mu.Unlock()
	if !ok {
		return
	}
	pq.finish(&f)
}

// wrapExtension reconstructs a decodable element from a generically
// captured Extension, since Extension.Inner only holds the element's
// children: the opening tag (namespace and attributes) has to be
// resynthesized.
func wrapExtension(ext *stanza.Extension, localName string) []byte {
	var buf bytes.Buffer
	buf.WriteByte('<')
	buf.WriteString(localName)
	buf.WriteString(` xmlns="`)
	buf.WriteString(ns.MAM)
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

// SetPreferences submits archiving preferences (default policy plus
// always/never JID lists) to the server.
func (p *Plugin) SetPreferences(ctx context.Context, prefs Prefs) (*Prefs, error) {
	if p.params.IQRequest == nil {
		return nil, fmt.Errorf("mam: session does not support IQ requests")
	}
	body, err := xml.Marshal(prefs)
	if err != nil {
		return nil, err
	}
	iq := stanza.NewIQ(stanza.IQSet)
	iq.Query = body
	resp, err := p.params.IQRequest(ctx, iq)
	if err != nil {
		return nil, err
	}
	var result Prefs
	if err := xml.Unmarshal(resp.Query, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPreferences fetches the current archiving preferences.
func (p *Plugin) GetPreferences(ctx context.Context) (*Prefs, error) {
	if p.params.IQRequest == nil {
		return nil, fmt.Errorf("mam: session does not support IQ requests")
	}
	iq := stanza.NewIQ(stanza.IQGet)
	iq.Query = []byte(`<prefs xmlns="urn:xmpp:mam:2"/>`)
	resp, err := p.params.IQRequest(ctx, iq)
	if err != nil {
		return nil, err
	}
	var result Prefs
	if err := xml.Unmarshal(resp.Query, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
