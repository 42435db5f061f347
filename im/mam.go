package im

import (
	"context"
	"errors"

	"github.com/anchorwire/xmpp/plugins/mam"
	"github.com/anchorwire/xmpp/stanza"
)

var errMAMNotLoaded = errors.New("im: mam extension not loaded")

// handleArchiveMessage feeds an inbound message to the mam plugin's
// query-id-keyed result collector, so a <result/> or <fin/> arriving as an
// independent stanza reaches whichever GetArchivedMessages call is
// currently waiting on it. It reports false when msg carries neither.
func (s *Session) handleArchiveMessage(msg *stanza.Message) bool {
	if s.mam == nil {
		return false
	}
	return s.mam.ObserveMessage(msg)
}

// GetArchivedMessages queries archiveJID's MAM archive for one page of
// results matching req, collecting forwarded messages until the query's
// <fin/> arrives or ctx ends.
func (s *Session) GetArchivedMessages(ctx context.Context, archiveJID string, req mam.PageRequest) (*mam.QueryPage, error) {
	if s.mam == nil {
		return nil, errMAMNotLoaded
	}
	return s.mam.GetArchivedMessages(ctx, archiveJID, req)
}

// SetArchivePreferences submits the account's MAM archiving preferences.
func (s *Session) SetArchivePreferences(ctx context.Context, prefs mam.Prefs) (*mam.Prefs, error) {
	if s.mam == nil {
		return nil, errMAMNotLoaded
	}
	return s.mam.SetPreferences(ctx, prefs)
}

// ArchivePreferences fetches the account's current MAM archiving
// preferences.
func (s *Session) ArchivePreferences(ctx context.Context) (*mam.Prefs, error) {
	if s.mam == nil {
		return nil, errMAMNotLoaded
	}
	return s.mam.GetPreferences(ctx)
}
