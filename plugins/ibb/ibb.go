// Package ibb implements XEP-0047 In-Band Bytestreams, one of the
// byte-stream backends SIFileTransfer negotiates.
package ibb

import (
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"sync"

	"github.com/anchorwire/xmpp/internal/ns"
	"github.com/anchorwire/xmpp/jid"
	"github.com/anchorwire/xmpp/plugin"
	"github.com/anchorwire/xmpp/plugins/bytestream"
	"github.com/anchorwire/xmpp/stanza"
)

const Name = "ibb"

// DefaultBlockSize is used for the Open negotiation when the caller
// doesn't override it.
const DefaultBlockSize = 4096

type Open struct {
	XMLName   xml.Name `xml:"http://jabber.org/protocol/ibb open"`
	BlockSize int      `xml:"block-size,attr"`
	SID       string   `xml:"sid,attr"`
	Stanza    string   `xml:"stanza,attr,omitempty"`
}

type Data struct {
	XMLName xml.Name `xml:"http://jabber.org/protocol/ibb data"`
	SID     string   `xml:"sid,attr"`
	Seq     uint16   `xml:"seq,attr"`
	Value   string   `xml:",chardata"`
}

type Close struct {
	XMLName xml.Name `xml:"http://jabber.org/protocol/ibb close"`
	SID     string   `xml:"sid,attr"`
}

// inbound tracks a receiving-side session: the next sequence number
// expected and where decoded bytes land.
type inbound struct {
	mu       sync.Mutex
	nextSeq  uint16
	started  bool
	sink     io.Writer
	progress func(int64)
	total    int64
	done     chan error
}

type Plugin struct {
	params plugin.InitParams

	mu       sync.Mutex
	sessions map[string]*inbound
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string    { return Name }
func (p *Plugin) Version() string { return "1.0.0" }
func (p *Plugin) Initialize(_ context.Context, params plugin.InitParams) error {
	p.params = params
	return nil
}
func (p *Plugin) Close() error           { return nil }
func (p *Plugin) Dependencies() []string { return nil }

// Namespace implements bytestream.Backend.
func (p *Plugin) Namespace() string { return ns.IBB }

// Transfer implements bytestream.Backend: on the sending side it opens the
// channel and streams sequential Data frames; on the receiving side it
// waits for frames delivered to ObserveIQ until Close arrives.
func (p *Plugin) Transfer(ctx context.Context, t *bytestream.Transfer) error {
	if t.Direction == bytestream.Sending {
		return p.send(ctx, t)
	}
	return p.receive(ctx, t)
}

// Cancel implements bytestream.Backend.
func (p *Plugin) Cancel(sid string) {
	p.mu.Lock()
	in, ok := p.sessions[sid]
	delete(p.sessions, sid)
	p.mu.Unlock()
	if ok {
		p.finish(in, fmt.Errorf("ibb: transfer %s cancelled", sid))
	}
}

func (p *Plugin) send(ctx context.Context, t *bytestream.Transfer) error {
	if p.params.IQRequest == nil {
		return fmt.Errorf("ibb: session does not support IQ requests")
	}
	peer, err := jid.Parse(t.PeerJID)
	if err != nil {
		return err
	}

	open := Open{BlockSize: DefaultBlockSize, SID: t.SID}
	body, err := xml.Marshal(open)
	if err != nil {
		return err
	}
	req := stanza.NewIQ(stanza.IQSet)
	req.Header.To = peer
	req.Query = body
	if _, err := p.params.IQRequest(ctx, req); err != nil {
		return fmt.Errorf("ibb: open: %w", err)
	}

	buf := make([]byte, DefaultBlockSize)
	var seq uint16
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := t.Source.Read(buf)
		if n > 0 {
			frame := Data{SID: t.SID, Seq: seq, Value: base64.StdEncoding.EncodeToString(buf[:n])}
			fbody, ferr := xml.Marshal(frame)
			if ferr != nil {
				return ferr
			}
			dreq := stanza.NewIQ(stanza.IQSet)
			dreq.Header.To = peer
			dreq.Query = fbody
			if _, err := p.params.IQRequest(ctx, dreq); err != nil {
				return fmt.Errorf("ibb: data seq=%d: %w", seq, err)
			}
			seq++
			total += int64(n)
			if t.OnProgress != nil {
				t.OnProgress(total)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}

	cbody, err := xml.Marshal(Close{SID: t.SID})
	if err != nil {
		return err
	}
	creq := stanza.NewIQ(stanza.IQSet)
	creq.Header.To = peer
	creq.Query = cbody
	_, err = p.params.IQRequest(ctx, creq)
	return err
}

func (p *Plugin) receive(ctx context.Context, t *bytestream.Transfer) error {
	in := &inbound{sink: t.Sink, progress: t.OnProgress, done: make(chan error, 1)}
	p.mu.Lock()
	if p.sessions == nil {
		p.sessions = make(map[string]*inbound)
	}
	p.sessions[t.SID] = in
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.sessions, t.SID)
		p.mu.Unlock()
	}()

	select {
	case err := <-in.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ObserveIQ recognizes an inbound open/data/close IQ-set addressed to a
// registered session, applies it, and sends the IQ-result or IQ-error the
// sender is waiting on. It reports false when iq carries none of the three.
func (p *Plugin) ObserveIQ(ctx context.Context, iq *stanza.IQ) bool {
	if iq.Type != stanza.IQSet {
		return false
	}

	var sniff struct {
		XMLName xml.Name `xml:",any"`
	}
	if err := xml.Unmarshal(iq.Query, &sniff); err != nil || sniff.XMLName.Space != ns.IBB {
		return false
	}

	switch sniff.XMLName.Local {
	case "open":
		var open Open
		if xml.Unmarshal(iq.Query, &open) != nil {
			return false
		}
		p.mu.Lock()
		in, ok := p.sessions[open.SID]
		p.mu.Unlock()
		if ok {
			in.mu.Lock()
			in.started = true
			in.mu.Unlock()
		}
		p.reply(ctx, iq, nil)
		return true

	case "data":
		var data Data
		if xml.Unmarshal(iq.Query, &data) != nil {
			return false
		}
		p.mu.Lock()
		in, ok := p.sessions[data.SID]
		p.mu.Unlock()
		if !ok {
			p.reply(ctx, iq, stanza.NewStanzaError(stanza.ErrorTypeCancel, stanza.ErrorItemNotFound, ""))
			return true
		}
		in.mu.Lock()
		if data.Seq != in.nextSeq {
			in.mu.Unlock()
			p.reply(ctx, iq, stanza.NewStanzaError(stanza.ErrorTypeModify, stanza.ErrorUnexpectedRequest, ""))
			p.Cancel(data.SID)
			return true
		}
		in.nextSeq++
		raw, err := base64.StdEncoding.DecodeString(data.Value)
		if err != nil {
			in.mu.Unlock()
			p.reply(ctx, iq, stanza.NewStanzaError(stanza.ErrorTypeModify, stanza.ErrorBadRequest, ""))
			p.Cancel(data.SID)
			return true
		}
		if _, werr := in.sink.Write(raw); werr != nil {
			in.mu.Unlock()
			p.reply(ctx, iq, stanza.NewStanzaError(stanza.ErrorTypeCancel, stanza.ErrorInternalServerError, ""))
			p.Cancel(data.SID)
			return true
		}
		in.total += int64(len(raw))
		if in.progress != nil {
			in.progress(in.total)
		}
		in.mu.Unlock()
		p.reply(ctx, iq, nil)
		return true

	case "close":
		var cl Close
		if xml.Unmarshal(iq.Query, &cl) != nil {
			return false
		}
		p.reply(ctx, iq, nil)
		p.mu.Lock()
		in, ok := p.sessions[cl.SID]
		delete(p.sessions, cl.SID)
		p.mu.Unlock()
		if ok {
			p.finish(in, nil)
		}
		return true
	}
	return false
}

func (p *Plugin) finish(in *inbound, err error) {
	select {
	case in.done <- err:
	default:
	}
}

func (p *Plugin) reply(ctx context.Context, iq *stanza.IQ, stanzaErr *stanza.StanzaError) {
	if p.params.SendElement == nil {
		return
	}
	if stanzaErr != nil {
		_ = p.params.SendElement(ctx, iq.ErrorIQ(stanzaErr))
		return
	}
	_ = p.params.SendElement(ctx, iq.ResultIQ())
}
