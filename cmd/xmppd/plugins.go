package main

import (
	"fmt"
	"sort"

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
)

func pluginRegistry(cfg Config) map[string]func() plugin.Plugin {
	return map[string]func() plugin.Plugin{
		"attention":    func() plugin.Plugin { return attention.New() },
		"blocking":     func() plugin.Plugin { return blocking.New() },
		"caps":         func() plugin.Plugin { return caps.New(cfg.CapsNode) },
		"carbons":      func() plugin.Plugin { return carbons.New() },
		"chatstates":   func() plugin.Plugin { return chatstates.New() },
		"delay":        func() plugin.Plugin { return delay.New() },
		"disco":        func() plugin.Plugin { return disco.New() },
		"filetransfer": func() plugin.Plugin { return filetransfer.New() },
		"form":         func() plugin.Plugin { return form.New() },
		"forward":      func() plugin.Plugin { return forward.New() },
		"ibb":          func() plugin.Plugin { return ibb.New() },
		"mam":          func() plugin.Plugin { return mam.New() },
		"muc":          func() plugin.Plugin { return muc.New() },
		"ping":         func() plugin.Plugin { return ping.New() },
		"presence":     func() plugin.Plugin { return presence.New() },
		"privacy":      func() plugin.Plugin { return privacy.New() },
		"pubsub":       func() plugin.Plugin { return pubsub.New() },
		"register":     func() plugin.Plugin { return register.New() },
		"roster":       func() plugin.Plugin { return roster.New() },
		"rsm":          func() plugin.Plugin { return rsm.New() },
		"search":       func() plugin.Plugin { return search.New() },
		"si":           func() plugin.Plugin { return si.New() },
		"socks5":       func() plugin.Plugin { return socks5.New() },
		"time":         func() plugin.Plugin { return time.New() },
		"version":      func() plugin.Plugin { return version.New(cfg.VersionName, cfg.VersionString) },
	}
}

func buildPlugins(cfg Config) ([]plugin.Plugin, error) {
	reg := pluginRegistry(cfg)
	if len(cfg.Plugins) == 0 {
		return nil, nil
	}

	if len(cfg.Plugins) == 1 && cfg.Plugins[0] == "all" {
		keys := make([]string, 0, len(reg))
		for k := range reg {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		plugins := make([]plugin.Plugin, 0, len(keys))
		for _, k := range keys {
			plugins = append(plugins, reg[k]())
		}
		return plugins, nil
	}

	plugins := make([]plugin.Plugin, 0, len(cfg.Plugins))
	for _, name := range cfg.Plugins {
		ctor, ok := reg[name]
		if !ok {
			return nil, fmt.Errorf("unknown plugin: %s", name)
		}
		plugins = append(plugins, ctor())
	}
	return plugins, nil
}
