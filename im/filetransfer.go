package im

import (
	"context"
	"errors"
	"io"

	"github.com/anchorwire/xmpp/plugins/filetransfer"
	"github.com/anchorwire/xmpp/stanza"
)

var errFileTransferNotLoaded = errors.New("im: filetransfer extension not loaded")

// OnIncomingFileOffer registers the callback consulted for every inbound SI
// file-transfer request. Returning a nil sink, or ok=false, rejects the
// offer with not-acceptable.
func (s *Session) OnIncomingFileOffer(fn func(FileTransferOffer) (sink io.WriteCloser, ok bool)) {
	s.onFileOffer = fn
	if s.filetransfer == nil {
		return
	}
	s.filetransfer.OnIncomingFile(func(_ context.Context, req filetransfer.OfferRequest) (io.WriteCloser, bool) {
		if s.onFileOffer == nil {
			return nil, false
		}
		return s.onFileOffer(FileTransferOffer{
			SID:  req.SID,
			From: req.From,
			Name: req.Meta.Name,
			Size: req.Meta.Size,
			Desc: req.Meta.Desc,
		})
	})
}

// OnFileTransferProgress registers the callback invoked as bytes move for
// any sending or receiving transfer.
func (s *Session) OnFileTransferProgress(fn func(FileTransferProgress)) {
	s.onFileProgress = fn
	if s.filetransfer == nil {
		return
	}
	s.filetransfer.OnProgress(func(sess *filetransfer.Session, n int64) {
		if s.onFileProgress == nil {
			return
		}
		s.onFileProgress(FileTransferProgress{SID: sess.SID, Name: sess.Meta.Name, Total: sess.Meta.Size, Transferred: n})
	})
}

// OnFileTransferAborted registers the callback invoked when a transfer ends
// in error, including explicit cancellation.
func (s *Session) OnFileTransferAborted(fn func(FileTransferAborted)) {
	s.onFileAborted = fn
	if s.filetransfer == nil {
		return
	}
	s.filetransfer.OnAborted(func(sess *filetransfer.Session, err error) {
		if s.onFileAborted == nil {
			return
		}
		s.onFileAborted(FileTransferAborted{SID: sess.SID, Name: sess.Meta.Name, Err: err})
	})
}

// SendFile offers a file-transfer to toJID, reading its content from
// source, and blocks until the peer accepts and the backend starts moving
// bytes (not until the transfer completes; track it via
// OnFileTransferProgress/OnFileTransferAborted).
func (s *Session) SendFile(ctx context.Context, toJID, name string, size int64, source io.Reader) (string, error) {
	if s.filetransfer == nil {
		return "", errFileTransferNotLoaded
	}
	sid := stanza.GenerateID()
	_, err := s.filetransfer.Offer(ctx, toJID, sid, filetransfer.File{Name: name, Size: size}, source)
	if err != nil {
		return "", err
	}
	return sid, nil
}

// CancelFileTransfer aborts sid's transfer, if one is in progress.
func (s *Session) CancelFileTransfer(sid string) {
	if s.filetransfer == nil {
		return
	}
	s.filetransfer.CancelTransfer(sid)
}

// handleFileOffer recognizes an inbound SI file-transfer offer and answers
// it via the registered OnIncomingFileOffer callback. It reports false when
// iq is not such an offer, so the caller can try other unsolicited-IQ
// handling.
func (s *Session) handleFileOffer(ctx context.Context, iq *stanza.IQ) bool {
	if s.filetransfer == nil {
		return false
	}
	req, ok := s.filetransfer.ObserveOffer(iq)
	if !ok {
		return false
	}
	_ = s.filetransfer.HandleOffer(ctx, iq, req)
	return true
}
