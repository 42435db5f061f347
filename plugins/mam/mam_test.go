package mam

import (
	"context"
	"encoding/xml"
	"testing"

	"github.com/anchorwire/xmpp/internal/ns"
	"github.com/anchorwire/xmpp/plugin"
	"github.com/anchorwire/xmpp/stanza"
)

func TestGetArchivedMessagesFinOnIQResult(t *testing.T) {
	ctx := context.Background()
	p := New()

	var sentQuery Query
	if err := p.Initialize(ctx, plugin.InitParams{
		IQRequest: func(_ context.Context, req *stanza.IQ) (*stanza.IQ, error) {
			if err := xml.Unmarshal(req.Query, &sentQuery); err != nil {
				t.Fatalf("decode outgoing query: %v", err)
			}
			resp := req.ResultIQ()
			resp.Query = []byte(`<fin xmlns="urn:xmpp:mam:2" complete="true"/>`)
			return resp, nil
		},
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	page, err := p.GetArchivedMessages(ctx, "juliet@capulet.lit", PageRequest{Max: 10})
	if err != nil {
		t.Fatalf("GetArchivedMessages: %v", err)
	}
	if sentQuery.QueryID == "" {
		t.Fatal("expected a non-empty queryid to be sent")
	}
	if page.Fin == nil || !page.Complete {
		t.Fatalf("expected an immediate complete fin, got %+v", page)
	}
	if len(page.Messages) != 0 {
		t.Fatalf("expected no messages, got %d", len(page.Messages))
	}
}

func TestGetArchivedMessagesCollectsForwardedResults(t *testing.T) {
	ctx := context.Background()
	p := New()

	var queryID string
	if err := p.Initialize(ctx, plugin.InitParams{
		IQRequest: func(_ context.Context, req *stanza.IQ) (*stanza.IQ, error) {
			var q Query
			if err := xml.Unmarshal(req.Query, &q); err != nil {
				t.Fatalf("decode outgoing query: %v", err)
			}
			queryID = q.QueryID

			// Simulate the server delivering forwarded results as
			// independent message stanzas before answering the IQ,
			// and closing with a fin carried by the IQ result.
			result := stanza.NewMessage("")
			result.Extensions = append(result.Extensions, stanza.Extension{
				XMLName: xml.Name{Space: ns.MAM, Local: "result"},
				Attrs: []xml.Attr{
					{Name: xml.Name{Local: "queryid"}, Value: queryID},
					{Name: xml.Name{Local: "id"}, Value: "28482-98726-73623"},
				},
				Inner: []byte(`<forwarded xmlns="urn:xmpp:forward:0">` +
					`<delay xmlns="urn:xmpp:delay" stamp="2026-07-31T10:00:00Z"/>` +
					`<message xmlns="jabber:client" from="witch@shakespeare.lit" to="macbeth@shakespeare.lit" type="chat">` +
					`<body>Hail to thee</body></message></forwarded>`),
			})
			if !p.ObserveMessage(result) {
				t.Fatal("ObserveMessage: expected the forwarded result to be recognized")
			}

			resp := req.ResultIQ()
			resp.Query = []byte(`<fin xmlns="urn:xmpp:mam:2" complete="true"/>`)
			return resp, nil
		},
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	page, err := p.GetArchivedMessages(ctx, "macbeth@shakespeare.lit", PageRequest{Max: 10})
	if err != nil {
		t.Fatalf("GetArchivedMessages: %v", err)
	}
	if len(page.Messages) != 1 {
		t.Fatalf("expected 1 forwarded message, got %d", len(page.Messages))
	}
	got := page.Messages[0]
	if got.QueryID != queryID {
		t.Fatalf("QueryID = %q, want %q", got.QueryID, queryID)
	}
	if got.Stamp != "2026-07-31T10:00:00Z" {
		t.Fatalf("Stamp = %q", got.Stamp)
	}
	if got.Message == nil || got.Message.Body != "Hail to thee" {
		t.Fatalf("Message = %+v, want body %q", got.Message, "Hail to thee")
	}
}

func TestGetArchivedMessagesFinAsStandaloneMessage(t *testing.T) {
	ctx := context.Background()
	p := New()

	var queryID string
	if err := p.Initialize(ctx, plugin.InitParams{
		IQRequest: func(_ context.Context, req *stanza.IQ) (*stanza.IQ, error) {
			var q Query
			if err := xml.Unmarshal(req.Query, &q); err != nil {
				t.Fatalf("decode outgoing query: %v", err)
			}
			queryID = q.QueryID

			fin := stanza.NewMessage("")
			fin.Extensions = append(fin.Extensions, stanza.Extension{
				XMLName: xml.Name{Space: ns.MAM, Local: "fin"},
				Attrs: []xml.Attr{
					{Name: xml.Name{Local: "queryid"}, Value: queryID},
					{Name: xml.Name{Local: "complete"}, Value: "true"},
				},
			})
			if !p.ObserveMessage(fin) {
				t.Fatal("ObserveMessage: expected the standalone fin to be recognized")
			}

			// The IQ result itself carries no fin; the real answer
			// already arrived as the message above.
			return req.ResultIQ(), nil
		},
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	page, err := p.GetArchivedMessages(ctx, "", PageRequest{Max: 10})
	if err != nil {
		t.Fatalf("GetArchivedMessages: %v", err)
	}
	if page.Fin == nil || !page.Complete {
		t.Fatalf("expected a complete fin collected from the message path, got %+v", page)
	}
	if page.Fin.QueryID != queryID {
		t.Fatalf("Fin.QueryID = %q, want %q", page.Fin.QueryID, queryID)
	}
}

func TestObserveMessageIgnoresUnrelatedQueryID(t *testing.T) {
	p := New()
	if err := p.Initialize(context.Background(), plugin.InitParams{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	msg := stanza.NewMessage("")
	msg.Extensions = append(msg.Extensions, stanza.Extension{
		XMLName: xml.Name{Space: ns.MAM, Local: "result"},
		Attrs: []xml.Attr{
			{Name: xml.Name{Local: "queryid"}, Value: "no-such-query"},
			{Name: xml.Name{Local: "id"}, Value: "1"},
		},
		Inner: []byte(`<forwarded xmlns="urn:xmpp:forward:0"><message xmlns="jabber:client"/></forwarded>`),
	})

	// Still recognized as a MAM result (so the caller doesn't mistake it
	// for an ordinary chat message), even though nothing is waiting on it.
	if !p.ObserveMessage(msg) {
		t.Fatal("ObserveMessage: expected the result to be recognized despite no matching pending query")
	}
}
