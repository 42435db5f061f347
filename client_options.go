package xmpp

import (
	"crypto/tls"

	"github.com/anchorwire/xmpp/dial"
	"github.com/anchorwire/xmpp/plugin"
	"github.com/anchorwire/xmpp/storage"
)

type clientOptions struct {
	tlsConfig *tls.Config
	dialer    *dial.Dialer
	handler   Handler
	directTLS bool
	noTLS     bool
	plugins   []plugin.Plugin
	storage   storage.Storage
}

// ClientOption configures a Client.
type ClientOption interface {
	apply(*clientOptions)
}

type clientOptionFunc func(*clientOptions)

func (f clientOptionFunc) apply(o *clientOptions) { f(o) }

// WithClientTLS sets the TLS configuration for the client.
func WithClientTLS(config *tls.Config) ClientOption {
	return clientOptionFunc(func(o *clientOptions) {
		o.tlsConfig = config
	})
}

// WithClientDialer sets a custom dialer.
func WithClientDialer(d *dial.Dialer) ClientOption {
	return clientOptionFunc(func(o *clientOptions) {
		o.dialer = d
	})
}

// WithHandler sets the stanza handler for the client.
func WithHandler(h Handler) ClientOption {
	return clientOptionFunc(func(o *clientOptions) {
		o.handler = h
	})
}

// WithDirectTLS enables Direct TLS (XEP-0368).
func WithDirectTLS() ClientOption {
	return clientOptionFunc(func(o *clientOptions) {
		o.directTLS = true
	})
}

// WithNoTLS disables TLS (for testing only).
func WithNoTLS() ClientOption {
	return clientOptionFunc(func(o *clientOptions) {
		o.noTLS = true
	})
}

// WithPlugins registers extension plugins to be initialized on Connect.
func WithPlugins(plugins ...plugin.Plugin) ClientOption {
	return clientOptionFunc(func(o *clientOptions) {
		o.plugins = append(o.plugins, plugins...)
	})
}

// WithStorage attaches a storage backend that plugins may use for durable
// state such as the roster, blocklist, and MAM archive. A client left
// without one runs entirely in memory, and plugins fall back accordingly.
func WithStorage(s storage.Storage) ClientOption {
	return clientOptionFunc(func(o *clientOptions) {
		o.storage = s
	})
}
