// Package caps implements XEP-0115 Entity Capabilities.
package caps

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"sort"
	"strings"
	"sync"

	"github.com/anchorwire/xmpp/internal/ns"
	"github.com/anchorwire/xmpp/plugin"
	"github.com/anchorwire/xmpp/plugins/disco"
)

const Name = "caps"

// Caps represents an entity capabilities element.
type Caps struct {
	XMLName xml.Name `xml:"http://jabber.org/protocol/caps c"`
	Hash    string   `xml:"hash,attr"`
	Node    string   `xml:"node,attr"`
	Ver     string   `xml:"ver,attr"`
}

// Plugin implements XEP-0115.
type Plugin struct {
	node   string
	params plugin.InitParams

	mu        sync.RWMutex
	byHash    map[string]disco.InfoQuery // verification hash -> full info, shared by every JID presenting it
	jidHashes map[string]string          // full JID -> last-seen verification hash
}

// New creates a new caps plugin with the given node URI.
func New(node string) *Plugin {
	return &Plugin{
		node:      node,
		byHash:    make(map[string]disco.InfoQuery),
		jidHashes: make(map[string]string),
	}
}

func (p *Plugin) Name() string    { return Name }
func (p *Plugin) Version() string { return "1.0.0" }

func (p *Plugin) Initialize(_ context.Context, params plugin.InitParams) error {
	p.params = params
	return nil
}

func (p *Plugin) Close() error           { return nil }
func (p *Plugin) Dependencies() []string { return []string{disco.Name} }

// Ver computes the verification string from disco info.
func (p *Plugin) Ver(info disco.InfoQuery) string {
	var s strings.Builder

	// Sort identities
	ids := make([]disco.Identity, len(info.Identities))
	copy(ids, info.Identities)
	sort.Slice(ids, func(i, j int) bool {
		a := ids[i].Category + "/" + ids[i].Type + "/" + ids[i].Lang + "/" + ids[i].Name
		b := ids[j].Category + "/" + ids[j].Type + "/" + ids[j].Lang + "/" + ids[j].Name
		return a < b
	})

	for _, id := range ids {
		s.WriteString(id.Category + "/" + id.Type + "/" + id.Lang + "/" + id.Name + "<")
	}

	// Sort features
	feats := make([]string, len(info.Features))
	for i, f := range info.Features {
		feats[i] = f.Var
	}
	sort.Strings(feats)

	for _, f := range feats {
		s.WriteString(f + "<")
	}

	h := sha1.Sum([]byte(s.String()))
	return base64.StdEncoding.EncodeToString(h[:])
}

// Generate creates a Caps element from the current disco info.
func (p *Plugin) Generate(info disco.InfoQuery) Caps {
	return Caps{
		Hash: "sha-1",
		Node: p.node,
		Ver:  p.Ver(info),
	}
}

// Observe records that jid presented the given verification hash; if the
// hash has never been resolved to disco info, resolve returns it.
func (p *Plugin) Observe(jid, hash string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jidHashes[jid] = hash
}

// Cache stores the disco info resolved for a verification hash, shared by
// every JID that presents that hash (the point of XEP-0115: identical
// capability sets across many entities resolve to one cached lookup).
func (p *Plugin) Cache(hash string, info disco.InfoQuery) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byHash[hash] = info
}

// Supports reports whether jid is known to advertise the given disco
// feature var, resolving from the cached verification-hash info. It
// returns false, without a network round trip, when the hash for jid is
// unknown or its info hasn't been cached yet; callers needing an
// authoritative answer should fall back to disco.QueryInfo in that case.
func (p *Plugin) Supports(jid, feature string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	hash, ok := p.jidHashes[jid]
	if !ok {
		return false
	}
	info, ok := p.byHash[hash]
	if !ok {
		return false
	}
	for _, f := range info.Features {
		if f.Var == feature {
			return true
		}
	}
	return false
}

func init() {
	_ = ns.Caps // ensure ns import is used
}
