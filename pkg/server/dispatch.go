package server

import (
	"context"
	"errors"
	"io"
	"net"
	"runtime/debug"

	"github.com/AxlAleT/Redes2/pkg/protocol"
)

// handleConn runs one connection from accept to close.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()

	sess := newSession(conn, s.cfg.MaxLineLength)
	stop := context.AfterFunc(s.ctx, func() { _ = conn.Close() })
	defer stop()
	defer func() { _ = conn.Close() }()

	s.metrics.TotalConnections.Add(1)
	s.metrics.ActiveConnections.Add(1)
	defer func() {
		s.metrics.ActiveConnections.Add(-1)
		s.metrics.TotalDisconnects.Add(1)
	}()

	defer func() {
		if r := recover(); r != nil {
			sess.log.Error("session panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	sess.log.Debug("new connection")
	s.dispatch(sess)
	sess.log.Debug("connection closed", "user", sess.Username)
}

// dispatch drives the session state machine until the session is closed.
func (s *Server) dispatch(sess *Session) {
	for sess.state != StateClosed {
		var err error
		switch sess.state {
		case StateUnauthenticated:
			err = s.authenticate(sess)
		case StateAuthenticated:
			err = s.serveCommand(sess)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				sess.log.Debug("peer closed", "state", sess.state)
			} else {
				sess.log.Warn("connection error", "state", sess.state, "err", err)
			}
			sess.state = StateClosed
		}
	}
}

// authenticate consumes the first line. Anything but a valid, known AUTH
// request is answered with AUTH_FAIL and closes the session.
func (s *Server) authenticate(sess *Session) error {
	line, err := sess.reader.ReadLine()
	if err != nil {
		return err
	}

	user, secret, perr := protocol.ParseAuth(string(line))
	if perr == nil && s.creds.Lookup(user, secret) {
		sess.Username = user
		sess.state = StateAuthenticated
		sess.log = sess.log.With("user", user)
		s.metrics.SuccessfulAuths.Add(1)
		sess.log.Info("user authenticated")
		return sess.reply(protocol.ReplyAuthOK)
	}

	s.metrics.FailedAuths.Add(1)
	sess.log.Info("authentication failed", "user", user, "malformed", perr != nil)
	sess.state = StateClosed
	return sess.reply(protocol.ReplyAuthFail)
}

// serveCommand reads and answers one line from an authenticated client.
func (s *Server) serveCommand(sess *Session) error {
	line, err := sess.reader.ReadLine()
	if err != nil {
		return err
	}

	cmd := protocol.ParseCommand(string(line))
	switch cmd.Kind {
	case protocol.KindEmpty:
		return nil

	case protocol.KindLogout:
		s.metrics.Logouts.Add(1)
		sess.log.Info("user logged out")
		sess.state = StateClosed
		return sess.reply(protocol.ReplyBye)

	case protocol.KindBadFileHeader:
		s.metrics.UploadsFailed.Add(1)
		sess.log.Warn("malformed file header", "line", cmd.Text)
		return sess.reply(protocol.FileErr(protocol.ReasonHeader))

	case protocol.KindFileUpload:
		return s.receiveFile(sess, cmd.File)

	default:
		s.metrics.ChatMessages.Add(1)
		sess.log.Info("chat message", "text", cmd.Text)
		return sess.reply(protocol.ChatReply(cmd.Text))
	}
}

// receiveFile stores one upload and acknowledges it. After a successful
// acknowledgement the upload is recorded in the ledger and mirrored, when
// those are configured; their failures are only logged.
func (s *Server) receiveFile(sess *Session, hdr protocol.FileHeader) error {
	up, err := s.receiver.Receive(sess.reader, hdr, sess.Username, sess.RemoteAddr)
	if err != nil {
		s.metrics.UploadsFailed.Add(1)
		sess.log.Warn("upload failed", "name", hdr.Name, "size", hdr.Size, "written", up.BytesWritten, "err", err)
		return sess.reply(protocol.FileErr(protocol.ReasonIO))
	}

	s.metrics.UploadsOK.Add(1)
	s.metrics.UploadBytes.Add(up.BytesWritten)
	if err := sess.reply(protocol.FileOK(hdr)); err != nil {
		return err
	}

	if s.ledger != nil {
		id, err := s.ledger.RecordUpload(up)
		if err != nil {
			sess.log.Error("record upload", "path", up.Path, "err", err)
		} else {
			up.ID = id
		}
	}
	if s.mirror != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.mirror.Mirror(s.ctx, up); err != nil {
				s.metrics.MirrorFailures.Add(1)
				sess.log.Warn("mirror upload", "path", up.Path, "err", err)
			}
		}()
	}
	return nil
}
