package file_test

import (
	"testing"

	"github.com/anchorwire/xmpp/storage"
	"github.com/anchorwire/xmpp/storage/file"
	"github.com/anchorwire/xmpp/storage/storagetest"
)

func TestFileStorage(t *testing.T) {
	storagetest.TestStorage(t, func() storage.Storage {
		return file.New(t.TempDir())
	})
}
