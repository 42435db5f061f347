package xmpp

import (
	"errors"
	"testing"

	"github.com/anchorwire/xmpp/stanza"
)

func TestErrorHelpers(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		fn        func(string) *stanza.StanzaError
		wantType  string
		wantCond  string
	}{
		{"BadRequest", ErrBadRequest, stanza.ErrorTypeModify, stanza.ErrorBadRequest},
		{"Conflict", ErrConflict, stanza.ErrorTypeCancel, stanza.ErrorConflict},
		{"FeatureNotImplemented", ErrFeatureNotImplemented, stanza.ErrorTypeCancel, stanza.ErrorFeatureNotImplemented},
		{"Forbidden", ErrForbidden, stanza.ErrorTypeAuth, stanza.ErrorForbidden},
		{"ItemNotFound", ErrItemNotFound, stanza.ErrorTypeCancel, stanza.ErrorItemNotFound},
		{"NotAllowed", ErrNotAllowed, stanza.ErrorTypeCancel, stanza.ErrorNotAllowed},
		{"NotAuthorized", ErrNotAuthorized, stanza.ErrorTypeAuth, stanza.ErrorNotAuthorized},
		{"ServiceUnavailable", ErrServiceUnavailable, stanza.ErrorTypeCancel, stanza.ErrorServiceUnavailable},
		{"InternalServerError", ErrInternalServerError, stanza.ErrorTypeCancel, stanza.ErrorInternalServerError},
		{"RecipientUnavailable", ErrRecipientUnavailable, stanza.ErrorTypeWait, stanza.ErrorRecipientUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			se := tt.fn("test text")
			if se.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", se.Type, tt.wantType)
			}
			if se.Condition != tt.wantCond {
				t.Errorf("Condition = %q, want %q", se.Condition, tt.wantCond)
			}
			if se.Text != "test text" {
				t.Errorf("Text = %q, want %q", se.Text, "test text")
			}
		})
	}
}

func TestErrorIsMatchesByKindRegardlessOfMessage(t *testing.T) {
	t.Parallel()
	err := NewError(KindTimeout, "iq request timed out after 30s", nil)
	if !errors.Is(err, ErrKindTimeout) {
		t.Fatalf("errors.Is(%v, ErrKindTimeout) = false, want true", err)
	}
	if errors.Is(err, ErrKindCancelled) {
		t.Fatalf("errors.Is(%v, ErrKindCancelled) = true, want false", err)
	}
}

func TestErrorUnwrapExposesCause(t *testing.T) {
	t.Parallel()
	cause := errors.New("connection reset by peer")
	err := NewError(KindIO, "", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is(err, cause) = false, want true")
	}
}

func TestErrorString(t *testing.T) {
	t.Parallel()
	err := NewError(KindNotConnected, "", nil)
	want := "xmpp: not connected"
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}

	withMsg := NewError(KindTLS, "handshake failed", nil)
	want = "xmpp: tls: handshake failed"
	if got := withMsg.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestNewStanzaKindErrorWrapsStanzaError(t *testing.T) {
	t.Parallel()
	se := ErrItemNotFound("no such room")
	err := NewStanzaKindError(se)

	if !errors.Is(err, ErrKindXMPPStanzaError) {
		t.Fatalf("errors.Is(err, ErrKindXMPPStanzaError) = false, want true")
	}
	if err.Stanza != se {
		t.Fatalf("Stanza = %v, want %v", err.Stanza, se)
	}

	got, ok := AsStanzaError(err)
	if !ok || got != se {
		t.Fatalf("AsStanzaError(err) = (%v, %v), want (%v, true)", got, ok, se)
	}

	bareOK, ok := AsStanzaError(se)
	if !ok || bareOK != se {
		t.Fatalf("AsStanzaError(se) = (%v, %v), want (%v, true)", bareOK, ok, se)
	}

	if _, ok := AsStanzaError(errors.New("unrelated")); ok {
		t.Fatal("AsStanzaError(unrelated) = true, want false")
	}
}

func TestKindString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		kind Kind
		want string
	}{
		{KindIO, "io"},
		{KindTLS, "tls"},
		{KindXMPPStanzaError, "xmpp stanza error"},
		{KindNotAcceptable, "not acceptable"},
		{Kind(999), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
