package sqlite_test

import (
	"testing"

	"github.com/anchorwire/xmpp/storage"
	"github.com/anchorwire/xmpp/storage/sqlite"
	"github.com/anchorwire/xmpp/storage/storagetest"
)

func TestSQLiteStorage(t *testing.T) {
	storagetest.TestStorage(t, func() storage.Storage {
		s, err := sqlite.New(":memory:")
		if err != nil {
			t.Fatal(err)
		}
		return s
	})
}
