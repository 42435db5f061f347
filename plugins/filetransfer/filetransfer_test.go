package filetransfer

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"testing"
	"time"

	"github.com/anchorwire/xmpp/internal/ns"
	"github.com/anchorwire/xmpp/plugin"
	"github.com/anchorwire/xmpp/plugins/bytestream"
	"github.com/anchorwire/xmpp/plugins/form"
	"github.com/anchorwire/xmpp/plugins/si"
	"github.com/anchorwire/xmpp/stanza"
)

// fakeBackend records the transfers it's asked to perform instead of
// actually moving bytes over a network, signaling each one on seen so
// callers don't have to poll for the coordinator's goroutine to run.
type fakeBackend struct {
	namespace string
	seen      chan *bytestream.Transfer
}

func newFakeBackend(namespace string) *fakeBackend {
	return &fakeBackend{namespace: namespace, seen: make(chan *bytestream.Transfer, 8)}
}

func (b *fakeBackend) Namespace() string { return b.namespace }
func (b *fakeBackend) Transfer(_ context.Context, t *bytestream.Transfer) error {
	b.seen <- t
	if t.Direction == bytestream.Sending {
		_, err := io.Copy(io.Discard, t.Source)
		return err
	}
	return nil
}
func (b *fakeBackend) Cancel(string) {}

type nopWriteCloser struct{ *bytes.Buffer }

func (nopWriteCloser) Close() error { return nil }

func TestOfferSelectsBackendAndStartsTransfer(t *testing.T) {
	ctx := context.Background()
	p := New()
	backend := newFakeBackend(ns.SOCKS5)
	p.RegisterBackend(backend)

	siPlugin := si.New()
	if err := siPlugin.Initialize(ctx, plugin.InitParams{
		IQRequest: func(_ context.Context, req *stanza.IQ) (*stanza.IQ, error) {
			var payload si.SI
			if err := xml.Unmarshal(req.Query, &payload); err != nil {
				t.Fatalf("decode SI offer: %v", err)
			}
			f := form.NewForm(form.TypeSubmit, "")
			f.AddField(form.Field{Var: "stream-method", Values: []string{ns.SOCKS5}})
			resultSI := si.SI{ID: payload.ID, Profile: payload.Profile, Feature: si.FeatureNeg{Form: *f}}
			body, err := xml.Marshal(resultSI)
			if err != nil {
				return nil, err
			}
			resp := req.ResultIQ()
			resp.Query = body
			return resp, nil
		},
	}); err != nil {
		t.Fatalf("si Initialize: %v", err)
	}
	if err := p.Initialize(ctx, plugin.InitParams{LocalJID: func() string { return "alice@example.com/home" }}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	p.si = siPlugin // no params.Get wired in this unit test; inject the negotiator directly

	source := bytes.NewReader([]byte("hello, file transfer"))
	sess, err := p.Offer(ctx, "bob@example.com/work", "sid-offer-1", File{Name: "greeting.txt", Size: 21}, source)
	if err != nil {
		t.Fatalf("Offer: %v", err)
	}
	if sess.Method != ns.SOCKS5 {
		t.Fatalf("Method = %q, want %q", sess.Method, ns.SOCKS5)
	}

	// Offer launches the transfer on a goroutine once the peer accepts;
	// the fake backend signals seen as soon as it's invoked.
	select {
	case got := <-backend.seen:
		if got.SID != "sid-offer-1" {
			t.Fatalf("SID = %q, want sid-offer-1", got.SID)
		}
		if got.Direction != bytestream.Sending {
			t.Fatalf("Direction = %v, want Sending", got.Direction)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the backend to receive the transfer")
	}
}

func TestObserveOfferDecodesFileTransferProfile(t *testing.T) {
	p := New()

	meta := File{Name: "photo.png", Size: 4096, Desc: "a picture"}
	fileBody, err := xml.Marshal(meta)
	if err != nil {
		t.Fatalf("marshal meta: %v", err)
	}
	f := form.NewForm(form.TypeForm, "")
	f.AddField(form.Field{Var: "stream-method", Type: form.FieldListSingle, Options: []form.Option{{Value: ns.SOCKS5}, {Value: ns.IBB}}})
	payload := si.SI{ID: "sid-offer-2", Profile: ns.SIFileTransfer, Content: fileBody, Feature: si.FeatureNeg{Form: *f}}
	body, err := xml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal SI: %v", err)
	}
	iq := stanza.NewIQ(stanza.IQSet)
	iq.Query = body

	req, ok := p.ObserveOffer(iq)
	if !ok {
		t.Fatal("ObserveOffer: expected the offer to be recognized")
	}
	if req.SID != "sid-offer-2" {
		t.Fatalf("SID = %q, want sid-offer-2", req.SID)
	}
	if req.Meta.Name != "photo.png" || req.Meta.Size != 4096 {
		t.Fatalf("Meta = %+v", req.Meta)
	}
	if len(req.Methods) != 2 || req.Methods[0] != ns.SOCKS5 || req.Methods[1] != ns.IBB {
		t.Fatalf("Methods = %v", req.Methods)
	}
}

func TestHandleOfferAcceptsAndSelectsLoadedBackend(t *testing.T) {
	ctx := context.Background()
	p := New()
	backend := newFakeBackend(ns.IBB)
	p.RegisterBackend(backend)
	if err := p.Initialize(ctx, plugin.InitParams{LocalJID: func() string { return "bob@example.com/work" }}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	var sentResult *stanza.IQ
	p.params.SendElement = func(_ context.Context, v any) error {
		sentResult = v.(*stanza.IQ)
		return nil
	}

	var sink bytes.Buffer
	p.OnIncomingFile(func(_ context.Context, req OfferRequest) (io.WriteCloser, bool) {
		if req.Meta.Name != "notes.txt" {
			t.Fatalf("unexpected offer: %+v", req)
		}
		return nopWriteCloser{&sink}, true
	})

	f := form.NewForm(form.TypeForm, "")
	f.AddField(form.Field{Var: "stream-method", Type: form.FieldListSingle, Options: []form.Option{{Value: ns.SOCKS5}, {Value: ns.IBB}}})
	fileBody, _ := xml.Marshal(File{Name: "notes.txt", Size: 10})
	payload := si.SI{ID: "sid-offer-3", Profile: ns.SIFileTransfer, Content: fileBody, Feature: si.FeatureNeg{Form: *f}}
	body, err := xml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal SI: %v", err)
	}
	iq := stanza.NewIQ(stanza.IQSet)
	iq.Query = body

	req, ok := p.ObserveOffer(iq)
	if !ok {
		t.Fatal("ObserveOffer: expected recognition")
	}
	if err := p.HandleOffer(ctx, iq, req); err != nil {
		t.Fatalf("HandleOffer: %v", err)
	}

	if sentResult == nil || sentResult.Error != nil {
		t.Fatalf("expected a successful result IQ, got %+v", sentResult)
	}
	var resultSI si.SI
	if err := xml.Unmarshal(sentResult.Query, &resultSI); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if resultSI.Feature.Form.GetValue("stream-method") != ns.IBB {
		t.Fatalf("selected method = %q, want %q (only IBB is loaded)", resultSI.Feature.Form.GetValue("stream-method"), ns.IBB)
	}

	if _, ok := p.Session("sid-offer-3"); !ok {
		t.Fatal("expected a session to be registered")
	}
}

func TestHandleOfferRejectsDuplicateSID(t *testing.T) {
	ctx := context.Background()
	p := New()
	backend := newFakeBackend(ns.IBB)
	p.RegisterBackend(backend)
	if err := p.Initialize(ctx, plugin.InitParams{LocalJID: func() string { return "bob@example.com/work" }}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := p.addSession(&Session{SID: "dup"}); err != nil {
		t.Fatalf("addSession: %v", err)
	}

	var sentResult *stanza.IQ
	p.params.SendElement = func(_ context.Context, v any) error {
		sentResult = v.(*stanza.IQ)
		return nil
	}

	iq := stanza.NewIQ(stanza.IQSet)
	if err := p.HandleOffer(ctx, iq, OfferRequest{SID: "dup", Meta: File{Name: "x", Size: 1}}); err != nil {
		t.Fatalf("HandleOffer: %v", err)
	}
	if sentResult == nil || sentResult.Error == nil {
		t.Fatal("expected a conflict error for a duplicate sid")
	}
	if sentResult.Error.Condition != stanza.ErrorConflict {
		t.Fatalf("Condition = %q, want %q", sentResult.Error.Condition, stanza.ErrorConflict)
	}
}

func TestAvailableMethodsHonorsForceInBand(t *testing.T) {
	p := New()
	p.RegisterBackend(newFakeBackend(ns.SOCKS5))
	p.RegisterBackend(newFakeBackend(ns.IBB))

	methods := p.availableMethods()
	if len(methods) != 2 || methods[0] != ns.SOCKS5 || methods[1] != ns.IBB {
		t.Fatalf("methods = %v, want [socks5 ibb]", methods)
	}

	p.ForceInBand = true
	methods = p.availableMethods()
	if len(methods) != 1 || methods[0] != ns.IBB {
		t.Fatalf("methods with ForceInBand = %v, want [ibb]", methods)
	}
}
