package xmpp

import (
	"crypto/tls"

	"github.com/anchorwire/xmpp/plugin"
	"github.com/anchorwire/xmpp/storage"
)

// serverOptions holds server configuration.
type serverOptions struct {
	addr           string
	tlsCert        string
	tlsKey         string
	negotiateTLS   *tls.Config
	authFunc       AuthFunc
	sessionHandler SessionHandlerFunc
	plugins        []plugin.Plugin
	storage        storage.Storage
}

// ServerOption configures a Server.
type ServerOption interface {
	apply(*serverOptions)
}

type serverOptionFunc func(*serverOptions)

func (f serverOptionFunc) apply(o *serverOptions) { f(o) }

// WithServerAddr sets the listen address.
func WithServerAddr(addr string) ServerOption {
	return serverOptionFunc(func(o *serverOptions) {
		o.addr = addr
	})
}

// WithServerTLS sets TLS certificate and key files.
func WithServerTLS(cert, key string) ServerOption {
	return serverOptionFunc(func(o *serverOptions) {
		o.tlsCert = cert
		o.tlsKey = key
	})
}

// WithServerSTARTTLS enables RFC 6120 STARTTLS negotiation on the plain
// listener (as opposed to WithServerTLS's direct-TLS listener): sessions
// advertise <starttls/> and upgrade in place when the client requests it.
func WithServerSTARTTLS(config *tls.Config) ServerOption {
	return serverOptionFunc(func(o *serverOptions) {
		o.negotiateTLS = config
	})
}

// WithServerAuth sets the authentication handler.
func WithServerAuth(f AuthFunc) ServerOption {
	return serverOptionFunc(func(o *serverOptions) {
		o.authFunc = f
	})
}

// WithServerSessionHandler sets the handler for new sessions.
func WithServerSessionHandler(f SessionHandlerFunc) ServerOption {
	return serverOptionFunc(func(o *serverOptions) {
		o.sessionHandler = f
	})
}

// WithServerPlugins registers extension plugins to initialize on every
// accepted session.
func WithServerPlugins(plugins ...plugin.Plugin) ServerOption {
	return serverOptionFunc(func(o *serverOptions) {
		o.plugins = append(o.plugins, plugins...)
	})
}

// WithServerStorage attaches the storage backend new sessions' plugins run
// against.
func WithServerStorage(s storage.Storage) ServerOption {
	return serverOptionFunc(func(o *serverOptions) {
		o.storage = s
	})
}
