package xmpp

import (
	"context"
	"sync"

	"github.com/anchorwire/xmpp/stanza"
)

// ErrIQTimeout is returned when a blocking IQ request's context is
// cancelled or its deadline expires before a response arrives.
var ErrIQTimeout = NewError(KindTimeout, "iq request timed out", nil)

// ErrSessionClosed is returned by pending IQ requests outstanding when the
// session is closed.
var ErrSessionClosed = NewError(KindAlreadyDisposed, "session closed", nil)

type pendingEntry struct {
	ch chan *stanza.IQ
}

// pendingTable correlates outbound IQ requests with their eventual
// result/error response by stanza id. Entries are registered before the
// request is flushed to the wire and released exactly once, by response,
// timeout, or session closure.
type pendingTable struct {
	mu      sync.Mutex
	pending map[string]*pendingEntry
}

func newPendingTable() *pendingTable {
	return &pendingTable{pending: make(map[string]*pendingEntry)}
}

func (t *pendingTable) register(id string) *pendingEntry {
	e := &pendingEntry{ch: make(chan *stanza.IQ, 1)}
	t.mu.Lock()
	t.pending[id] = e
	t.mu.Unlock()
	return e
}

func (t *pendingTable) release(id string) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// deliver routes an inbound result/error IQ to its waiter, if one is
// registered for its id. Returns true when the IQ was consumed.
func (t *pendingTable) deliver(iq *stanza.IQ) bool {
	t.mu.Lock()
	e, ok := t.pending[iq.ID]
	if ok {
		delete(t.pending, iq.ID)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	e.ch <- iq
	return true
}

// closeAll unblocks every outstanding waiter with ErrSessionClosed.
func (t *pendingTable) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, e := range t.pending {
		close(e.ch)
		delete(t.pending, id)
	}
}

// IQRequest sends an IQ and blocks until a correlated result/error arrives,
// the context is done, or the session closes.
func (s *Session) IQRequest(ctx context.Context, req *stanza.IQ) (*stanza.IQ, error) {
	if req.ID == "" {
		req.ID = stanza.GenerateID()
	}
	entry := s.pending().register(req.ID)

	if err := s.Send(ctx, req); err != nil {
		s.pending().release(req.ID)
		return nil, err
	}

	select {
	case resp, ok := <-entry.ch:
		if !ok {
			return nil, ErrSessionClosed
		}
		if resp.Type == stanza.IQError {
			return resp, resp.Error
		}
		return resp, nil
	case <-ctx.Done():
		s.pending().release(req.ID)
		return nil, ErrIQTimeout
	case <-s.closed:
		return nil, ErrSessionClosed
	}
}

// IQRequestAsync sends an IQ and invokes fn with its correlated response
// on a separate goroutine once it arrives (or the context/session ends).
func (s *Session) IQRequestAsync(ctx context.Context, req *stanza.IQ, fn func(*stanza.IQ, error)) error {
	if req.ID == "" {
		req.ID = stanza.GenerateID()
	}
	entry := s.pending().register(req.ID)

	if err := s.Send(ctx, req); err != nil {
		s.pending().release(req.ID)
		return err
	}

	go func() {
		select {
		case resp, ok := <-entry.ch:
			if !ok {
				fn(nil, ErrSessionClosed)
				return
			}
			if resp.Type == stanza.IQError {
				fn(resp, resp.Error)
				return
			}
			fn(resp, nil)
		case <-ctx.Done():
			s.pending().release(req.ID)
			fn(nil, ErrIQTimeout)
		case <-s.closed:
			fn(nil, ErrSessionClosed)
		}
	}()
	return nil
}
