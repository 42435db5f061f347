// Package socks5 implements XEP-0065 SOCKS5 Bytestreams, SIFileTransfer's
// preferred byte-stream backend.
package socks5

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/anchorwire/xmpp/internal/ns"
	"github.com/anchorwire/xmpp/jid"
	"github.com/anchorwire/xmpp/plugin"
	"github.com/anchorwire/xmpp/plugins/bytestream"
	"github.com/anchorwire/xmpp/stanza"
)

const Name = "socks5"

// AcceptTimeout bounds how long a listening initiator waits for the target
// to connect before giving up on direct candidates.
const AcceptTimeout = 30 * time.Second

type Query struct {
	XMLName     xml.Name        `xml:"http://jabber.org/protocol/bytestreams query"`
	SID         string          `xml:"sid,attr"`
	Mode        string          `xml:"mode,attr,omitempty"`
	Streamhosts []Streamhost    `xml:"streamhost"`
	Used        *StreamhostUsed `xml:"streamhost-used,omitempty"`
}

type Streamhost struct {
	XMLName xml.Name `xml:"streamhost"`
	JID     string   `xml:"jid,attr"`
	Host    string   `xml:"host,attr"`
	Port    int      `xml:"port,attr"`
}

type StreamhostUsed struct {
	XMLName xml.Name `xml:"streamhost-used"`
	JID     string   `xml:"jid,attr"`
}

// pendingTarget tracks the receiving side of a transfer: it is registered
// before the initiator's bytestreams query can possibly arrive, and
// ObserveIQ resolves it once the query is recognized.
type pendingTarget struct {
	t    *bytestream.Transfer
	done chan error
}

type Plugin struct {
	params plugin.InitParams

	mu      sync.Mutex
	pending map[string]*pendingTarget

	// ListenAddr overrides the host:port advertised in our own streamhost
	// candidate; tests substitute a loopback listener.
	ListenAddr string
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
func (p *Plugin) Namespace() string { return ns.SOCKS5 }

// Transfer implements bytestream.Backend.
func (p *Plugin) Transfer(ctx context.Context, t *bytestream.Transfer) error {
	if t.Direction == bytestream.Sending {
		return p.send(ctx, t)
	}
	return p.receive(ctx, t)
}

// Cancel implements bytestream.Backend.
func (p *Plugin) Cancel(sid string) {
	p.mu.Lock()
	pt, ok := p.pending[sid]
	delete(p.pending, sid)
	p.mu.Unlock()
	if ok {
		p.finish(pt, fmt.Errorf("socks5: transfer %s cancelled", sid))
	}
}

// send is the initiator role: listen for a direct connection, advertise it
// as a streamhost candidate, and act as the SOCKS5 server once the peer
// connects.
func (p *Plugin) send(ctx context.Context, t *bytestream.Transfer) error {
	if p.params.IQRequest == nil {
		return fmt.Errorf("socks5: session does not support IQ requests")
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("socks5: listen: %w", err)
	}
	defer ln.Close()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		return err
	}
	port := 0
	fmt.Sscanf(portStr, "%d", &port)
	if p.ListenAddr != "" {
		host, portStr, _ = net.SplitHostPort(p.ListenAddr)
		fmt.Sscanf(portStr, "%d", &port)
	}

	local := Streamhost{JID: t.InitiatorJID, Host: host, Port: port}
	query := Query{SID: t.SID, Streamhosts: []Streamhost{local}}
	body, err := xml.Marshal(query)
	if err != nil {
		return err
	}

	peer, err := jid.Parse(t.PeerJID)
	if err != nil {
		return err
	}
	req := stanza.NewIQ(stanza.IQSet)
	req.Header.To = peer
	req.Query = body

	type acceptResult struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan acceptResult, 1)
	go func() {
		_ = ln.SetDeadline(time.Now().Add(AcceptTimeout))
		conn, err := ln.Accept()
		accepted <- acceptResult{conn, err}
	}()

	resp, err := p.params.IQRequest(ctx, req)
	if err != nil {
		return fmt.Errorf("socks5: streamhost offer: %w", err)
	}
	var result Query
	if err := xml.Unmarshal(resp.Query, &result); err != nil {
		return err
	}
	if result.Used == nil || result.Used.JID != local.JID {
		return fmt.Errorf("socks5: peer did not select our streamhost")
	}

	ar := <-accepted
	if ar.err != nil {
		return fmt.Errorf("socks5: accept: %w", ar.err)
	}
	conn := ar.conn
	defer conn.Close()

	domain := authDomain(t.SID, t.InitiatorJID, t.TargetJID)
	if _, err := serveHandshake(conn, domain); err != nil {
		return fmt.Errorf("socks5: handshake: %w", err)
	}

	w := &bytestream.CountingWriter{W: conn, OnProgress: t.OnProgress}
	_, err = io.Copy(w, t.Source)
	return err
}

// receive is the target role: it waits for the initiator's bytestreams
// query (delivered via ObserveIQ), dials the chosen candidate, and acts as
// the SOCKS5 client.
func (p *Plugin) receive(ctx context.Context, t *bytestream.Transfer) error {
	pt := &pendingTarget{t: t, done: make(chan error, 1)}
	p.mu.Lock()
	if p.pending == nil {
		p.pending = make(map[string]*pendingTarget)
	}
	p.pending[t.SID] = pt
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, t.SID)
		p.mu.Unlock()
	}()

	select {
	case err := <-pt.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ObserveIQ recognizes an inbound bytestreams query for a registered
// target session, dials the first reachable candidate, replies with the
// chosen streamhost, and streams the remaining bytes into the session's
// sink. It reports false when iq is not a bytestreams query.
func (p *Plugin) ObserveIQ(ctx context.Context, iq *stanza.IQ) bool {
	if iq.Type != stanza.IQSet {
		return false
	}
	var q Query
	if err := xml.Unmarshal(iq.Query, &q); err != nil || q.XMLName.Space != ns.SOCKS5 {
		return false
	}

	p.mu.Lock()
	pt, ok := p.pending[q.SID]
	p.mu.Unlock()
	if !ok {
		if p.params.SendElement != nil {
			_ = p.params.SendElement(ctx, iq.ErrorIQ(stanza.NewStanzaError(stanza.ErrorTypeCancel, stanza.ErrorItemNotFound, "")))
		}
		return true
	}

	go p.connectAndStream(ctx, iq, q, pt)
	return true
}

func (p *Plugin) connectAndStream(ctx context.Context, iq *stanza.IQ, q Query, pt *pendingTarget) {
	domain := authDomain(q.SID, pt.t.InitiatorJID, pt.t.TargetJID)

	var conn net.Conn
	var connReader io.Reader
	var used Streamhost
	for _, sh := range q.Streamhosts {
		c, err := net.DialTimeout("tcp", net.JoinHostPort(sh.Host, fmt.Sprint(sh.Port)), AcceptTimeout)
		if err != nil {
			continue
		}
		r, err := dialHandshake(c, domain)
		if err != nil {
			c.Close()
			continue
		}
		conn = c
		connReader = r
		used = sh
		break
	}
	if conn == nil {
		if p.params.SendElement != nil {
			_ = p.params.SendElement(ctx, iq.ErrorIQ(stanza.NewStanzaError(stanza.ErrorTypeCancel, stanza.ErrorItemNotFound, "")))
		}
		p.finish(pt, fmt.Errorf("socks5: no reachable streamhost candidate"))
		return
	}
	defer conn.Close()

	if p.params.SendElement != nil {
		result := iq.ResultIQ()
		body, err := xml.Marshal(Query{SID: q.SID, Used: &StreamhostUsed{JID: used.JID}})
		if err != nil {
			p.finish(pt, err)
			return
		}
		result.Query = body
		_ = p.params.SendElement(ctx, result)
	}

	w := &bytestream.CountingWriter{W: pt.t.Sink, OnProgress: pt.t.OnProgress}
	_, err := io.Copy(w, connReader)
	p.finish(pt, err)
}

func (p *Plugin) finish(pt *pendingTarget, err error) {
	select {
	case pt.done <- err:
	default:
	}
}

// authDomain is the SHA-1(sid + initiator_bare_jid + target_bare_jid) hex
// digest XEP-0065 uses as the SOCKS5 domain-name address.
func authDomain(sid, initiatorBare, targetBare string) string {
	sum := sha1.Sum([]byte(sid + initiatorBare + targetBare))
	return hex.EncodeToString(sum[:])
}

// serveHandshake performs the server side of a domain-authenticated SOCKS5
// CONNECT: no-auth method selection, then a CONNECT request whose address
// must equal wantDomain. It returns a reader that must be used for any
// further reads from conn, since bufio may have already buffered bytes
// past the handshake.
func serveHandshake(conn net.Conn, wantDomain string) (io.Reader, error) {
	r := bufio.NewReader(conn)

	hdr := make([]byte, 2)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, err
	}
	if hdr[0] != 0x05 {
		return nil, fmt.Errorf("unsupported SOCKS version %d", hdr[0])
	}
	methods := make([]byte, hdr[1])
	if _, err := io.ReadFull(r, methods); err != nil {
		return nil, err
	}
	if _, err := conn.Write([]byte{0x05, 0x00}); err != nil {
		return nil, err
	}

	req := make([]byte, 4)
	if _, err := io.ReadFull(r, req); err != nil {
		return nil, err
	}
	if req[1] != 0x01 || req[3] != 0x03 {
		return nil, fmt.Errorf("unsupported SOCKS request (cmd=%d atyp=%d)", req[1], req[3])
	}
	lenByte := make([]byte, 1)
	if _, err := io.ReadFull(r, lenByte); err != nil {
		return nil, err
	}
	domain := make([]byte, lenByte[0])
	if _, err := io.ReadFull(r, domain); err != nil {
		return nil, err
	}
	port := make([]byte, 2)
	if _, err := io.ReadFull(r, port); err != nil {
		return nil, err
	}
	if string(domain) != wantDomain {
		conn.Write([]byte{0x05, 0x05, 0x00, 0x03, byte(len(domain))})
		conn.Write(domain)
		conn.Write(port)
		return nil, fmt.Errorf("unexpected SOCKS5 domain %q", domain)
	}

	reply := []byte{0x05, 0x00, 0x00, 0x03, byte(len(domain))}
	reply = append(reply, domain...)
	reply = append(reply, port...)
	if _, err := conn.Write(reply); err != nil {
		return nil, err
	}
	return r, nil
}

// dialHandshake performs the client side of a domain-authenticated SOCKS5
// CONNECT, requesting domain as the address (port is unused by XEP-0065).
// It returns a reader that must be used for any further reads from conn.
func dialHandshake(conn net.Conn, domain string) (io.Reader, error) {
	if _, err := conn.Write([]byte{0x05, 0x01, 0x00}); err != nil {
		return nil, err
	}
	r := bufio.NewReader(conn)
	resp := make([]byte, 2)
	if _, err := io.ReadFull(r, resp); err != nil {
		return nil, err
	}
	if resp[0] != 0x05 || resp[1] != 0x00 {
		return nil, fmt.Errorf("SOCKS5 method negotiation failed")
	}

	req := []byte{0x05, 0x01, 0x00, 0x03, byte(len(domain))}
	req = append(req, domain...)
	req = append(req, 0x00, 0x00)
	if _, err := conn.Write(req); err != nil {
		return nil, err
	}

	hdr := make([]byte, 4)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, err
	}
	if hdr[1] != 0x00 {
		return nil, fmt.Errorf("SOCKS5 connect failed (reply=%d)", hdr[1])
	}
	if hdr[3] != 0x03 {
		return nil, fmt.Errorf("unexpected SOCKS5 reply address type %d", hdr[3])
	}
	lenByte := make([]byte, 1)
	if _, err := io.ReadFull(r, lenByte); err != nil {
		return nil, err
	}
	rest := make([]byte, int(lenByte[0])+2)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}
	return r, nil
}
