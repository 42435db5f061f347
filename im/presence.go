package im

import (
	"context"
	"fmt"

	"github.com/anchorwire/xmpp/stanza"
)

// SetStatus broadcasts presence: show is one of "" (default/available),
// stanza.ShowAway, stanza.ShowChat, stanza.ShowDND, stanza.ShowXA; priority
// is included only when non-zero; messages maps xml:lang to a localized
// status string, with "" the unlocalized default. Going offline is not a
// legal use of SetStatus; call Close to disconnect instead.
func (s *Session) SetStatus(ctx context.Context, show string, priority int8, messages map[string]string) error {
	if show == stanza.PresenceUnavailable {
		return fmt.Errorf("im: %q is not a legal SetStatus availability; use Close to disconnect", stanza.PresenceUnavailable)
	}
	pres := stanza.NewPresence(stanza.PresenceAvailable)
	pres.Show = show
	pres.Priority = priority
	for lang, text := range messages {
		pres.Statuses = append(pres.Statuses, stanza.StatusText{Lang: lang, Text: text})
	}
	return s.Send(ctx, pres)
}
