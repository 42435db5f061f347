package xmpp_test

import (
	"context"
	"testing"

	"github.com/anchorwire/xmpp/pep"
	"github.com/anchorwire/xmpp/plugin"
	"github.com/anchorwire/xmpp/plugins/attention"
	"github.com/anchorwire/xmpp/plugins/blocking"
	"github.com/anchorwire/xmpp/plugins/caps"
	"github.com/anchorwire/xmpp/plugins/carbons"
	"github.com/anchorwire/xmpp/plugins/chatstates"
	"github.com/anchorwire/xmpp/plugins/delay"
	"github.com/anchorwire/xmpp/plugins/disco"
	"github.com/anchorwire/xmpp/plugins/filetransfer"
	"github.com/anchorwire/xmpp/plugins/form"
	"github.com/anchorwire/xmpp/plugins/forward"
	"github.com/anchorwire/xmpp/plugins/ibb"
	"github.com/anchorwire/xmpp/plugins/mam"
	"github.com/anchorwire/xmpp/plugins/muc"
	"github.com/anchorwire/xmpp/plugins/ping"
	"github.com/anchorwire/xmpp/plugins/presence"
	"github.com/anchorwire/xmpp/plugins/privacy"
	"github.com/anchorwire/xmpp/plugins/pubsub"
	"github.com/anchorwire/xmpp/plugins/register"
	"github.com/anchorwire/xmpp/plugins/roster"
	"github.com/anchorwire/xmpp/plugins/rsm"
	"github.com/anchorwire/xmpp/plugins/search"
	"github.com/anchorwire/xmpp/plugins/si"
	"github.com/anchorwire/xmpp/plugins/socks5"
	"github.com/anchorwire/xmpp/plugins/time"
	"github.com/anchorwire/xmpp/plugins/version"
	"github.com/anchorwire/xmpp/storage/memory"
)

func TestBuiltinPluginsInitializeAndClose(t *testing.T) {
	mgr := plugin.NewManager()
	all := []plugin.Plugin{
		attention.New(),
		blocking.New(),
		caps.New("https://example.com/client"),
		carbons.New(),
		chatstates.New(),
		delay.New(),
		disco.New(),
		filetransfer.New(),
		form.New(),
		forward.New(),
		ibb.New(),
		mam.New(),
		muc.New(),
		pep.New(),
		ping.New(),
		presence.New(),
		privacy.New(),
		pubsub.New(),
		register.New(),
		roster.New(),
		rsm.New(),
		search.New(),
		si.New(),
		socks5.New(),
		time.New(),
		version.New("xmpp-go", "test"),
	}

	for _, p := range all {
		if err := mgr.Register(p); err != nil {
			t.Fatalf("register %q: %v", p.Name(), err)
		}
	}

	params := plugin.InitParams{
		SendRaw: func(context.Context, []byte) error { return nil },
		SendElement: func(context.Context, any) error {
			return nil
		},
		State:     func() uint32 { return 0 },
		LocalJID:  func() string { return "alice@example.com" },
		RemoteJID: func() string { return "bob@example.com" },
		Storage:   memory.New(),
	}

	if err := mgr.Initialize(context.Background(), params); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := mgr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
