package smtp

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/shineum/smtp-ntfy-bridge/internal/parser"
)

// Session states for the SMTP state machine.
const (
	stateConnected = iota
	stateGreeted
	stateAuthOK
	stateMailFrom
	stateRcptTo
)

// idleTimeout is the maximum time a session can remain idle before being closed.
const idleTimeout = 60 * time.Second

// defaultMaxMessageSize applies when a session is created without a limit.
const defaultMaxMessageSize = 10 * 1024 * 1024

// maxCommandLength bounds command and AUTH response lines. It is larger
// than the RFC 5321 command limit to fit AUTH PLAIN initial responses.
const maxCommandLength = 4096

var (
	// errAuthCancelled is returned by readAuthLine when the client sends "*".
	errAuthCancelled = errors.New("authentication cancelled")

	// errLineTooLong is returned by readAuthLine for an oversized response.
	errLineTooLong = errors.New("line too long")
)

// Session represents a single SMTP client connection and manages the
// SMTP protocol state machine.
type Session struct {
	conn     net.Conn
	reader   *bufio.Reader
	writer   *bufio.Writer
	state    int
	auth     *Authenticator
	handler  Handler
	hostname string
	maxSize  int64

	// TLS support
	tlsConfig *tls.Config
	tlsActive bool

	// Current transaction
	mailFrom string
	rcptTo   []string
}

// NewSession creates a new SMTP session for the given connection. A
// maxMessageSize of zero or less selects the 10 MB default.
func NewSession(conn net.Conn, auth *Authenticator, handler Handler, hostname string, tlsConfig *tls.Config, maxMessageSize int64) *Session {
	if maxMessageSize <= 0 {
		maxMessageSize = defaultMaxMessageSize
	}

	return &Session{
		conn:      conn,
		reader:    bufio.NewReader(conn),
		writer:    bufio.NewWriter(conn),
		state:     stateConnected,
		auth:      auth,
		handler:   handler,
		hostname:  hostname,
		maxSize:   maxMessageSize,
		tlsConfig: tlsConfig,
	}
}

// Handle runs the SMTP session, processing commands until the client
// disconnects or an error occurs.
func (s *Session) Handle(ctx context.Context) {
	defer s.conn.Close()

	s.writeLine("220 %s ESMTP smtp-ntfy-bridge", s.hostname)

	for {
		select {
		case <-ctx.Done():
			s.writeLine("421 Service shutting down")
			return
		default:
		}

		if err := s.conn.SetDeadline(time.Now().Add(idleTimeout)); err != nil {
			slog.Error("failed to set connection deadline", "error", err)
			return
		}

		line, tooLong, err := s.readLine(maxCommandLength)
		if err != nil {
			if err != io.EOF {
				slog.Debug("connection read error", "error", err)
			}
			return
		}
		if tooLong {
			s.writeLine("500 Line too long")
			continue
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		cmd, arg := parseCommand(line)
		if done := s.handleCommand(ctx, cmd, arg); done {
			return
		}
	}
}

// handleCommand processes a single SMTP command and returns true if the session should end.
func (s *Session) handleCommand(ctx context.Context, cmd, arg string) bool {
	switch cmd {
	case "EHLO", "HELO":
		s.handleEHLO(cmd, arg)
	case "STARTTLS":
		s.handleSTARTTLS()
	case "AUTH":
		s.handleAUTH(arg)
	case "MAIL":
		s.handleMAIL(arg)
	case "RCPT":
		s.handleRCPT(arg)
	case "DATA":
		s.handleDATA(ctx)
	case "RSET":
		s.resetTransaction()
		s.writeLine("250 OK")
	case "NOOP":
		s.writeLine("250 OK")
	case "QUIT":
		s.writeLine("221 Bye")
		return true
	default:
		s.writeLine("500 Unrecognized command")
	}
	return false
}

// handleEHLO processes EHLO/HELO commands.
func (s *Session) handleEHLO(cmd, arg string) {
	if arg == "" {
		s.writeLine("501 Syntax: %s hostname", cmd)
		return
	}

	s.state = stateGreeted
	if cmd == "HELO" {
		s.writeLine("250 %s Hello %s", s.hostname, arg)
		return
	}

	s.writeLine("250-%s Hello %s", s.hostname, arg)
	if s.tlsConfig != nil && !s.tlsActive {
		s.writeLine("250-STARTTLS")
	}
	if s.auth.Enabled() {
		s.writeLine("250-AUTH PLAIN LOGIN")
	}
	s.writeLine("250-SIZE %d", s.maxSize)
	s.writeLine("250 OK")
}

// handleSTARTTLS upgrades the connection to TLS.
func (s *Session) handleSTARTTLS() {
	if s.tlsConfig == nil {
		s.writeLine("454 TLS not available")
		return
	}
	if s.tlsActive {
		s.writeLine("454 TLS already active")
		return
	}

	s.writeLine("220 Ready to start TLS")

	tlsConn := tls.Server(s.conn, s.tlsConfig)
	if err := tlsConn.Handshake(); err != nil {
		slog.Error("TLS handshake failed", "error", err)
		return
	}

	// RFC 3207: the client must greet again after the upgrade.
	s.conn = tlsConn
	s.reader = bufio.NewReader(tlsConn)
	s.writer = bufio.NewWriter(tlsConn)
	s.tlsActive = true
	s.state = stateConnected
}

// handleAUTH processes AUTH commands (PLAIN and LOGIN mechanisms).
func (s *Session) handleAUTH(arg string) {
	if s.state < stateGreeted {
		s.writeLine("503 Send EHLO/HELO first")
		return
	}
	if !s.auth.Enabled() {
		s.writeLine("503 AUTH not available")
		return
	}

	mechanism, initial, _ := strings.Cut(arg, " ")

	var err error
	switch strings.ToUpper(mechanism) {
	case "PLAIN":
		err = s.authPlain(initial)
	case "LOGIN":
		err = s.authLogin()
	default:
		s.writeLine("504 Unrecognized authentication type")
		return
	}

	switch {
	case errors.Is(err, errAuthCancelled):
		s.writeLine("501 Authentication cancelled")
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		slog.Debug("connection closed during AUTH", "error", err)
	case err != nil:
		slog.Info("SMTP authentication failed", "mechanism", mechanism, "error", err)
		s.writeLine("535 Authentication failed")
	default:
		s.state = stateAuthOK
		s.writeLine("235 Authentication successful")
	}
}

// authPlain verifies AUTH PLAIN credentials, prompting for them when they
// were not sent with the command.
func (s *Session) authPlain(initial string) error {
	encoded := initial
	if encoded == "" {
		var err error
		if encoded, err = s.readAuthLine("334"); err != nil {
			return err
		}
	} else if encoded == "*" {
		return errAuthCancelled
	}
	return s.auth.VerifyPlain(encoded)
}

// authLogin runs the AUTH LOGIN username/password challenges.
func (s *Session) authLogin() error {
	// base64 "Username:" and "Password:"
	user, err := s.readAuthLine("334 VXNlcm5hbWU6")
	if err != nil {
		return err
	}
	pass, err := s.readAuthLine("334 UGFzc3dvcmQ6")
	if err != nil {
		return err
	}
	return s.auth.VerifyLogin(user, pass)
}

// readAuthLine sends an AUTH challenge and reads the client's response.
func (s *Session) readAuthLine(challenge string) (string, error) {
	s.writeLine("%s", challenge)
	line, tooLong, err := s.readLine(maxCommandLength)
	if err != nil {
		return "", err
	}
	if tooLong {
		return "", errLineTooLong
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "*" {
		return "", errAuthCancelled
	}
	return line, nil
}

// handleMAIL processes the MAIL FROM command.
func (s *Session) handleMAIL(arg string) {
	if s.auth.Enabled() && s.state < stateAuthOK {
		s.writeLine("530 Authentication required")
		return
	}
	if s.state < stateGreeted {
		s.writeLine("503 Send EHLO/HELO first")
		return
	}

	addr, ok := commandAddress(arg, "FROM:")
	if !ok {
		s.writeLine("501 Syntax: MAIL FROM:<address>")
		return
	}

	s.mailFrom = addr
	s.rcptTo = nil
	s.state = stateMailFrom
	s.writeLine("250 OK")
}

// handleRCPT processes the RCPT TO command.
func (s *Session) handleRCPT(arg string) {
	if s.state < stateMailFrom {
		s.writeLine("503 Send MAIL FROM first")
		return
	}

	addr, ok := commandAddress(arg, "TO:")
	if !ok || addr == "" {
		s.writeLine("501 Syntax: RCPT TO:<address>")
		return
	}

	s.rcptTo = append(s.rcptTo, addr)
	s.state = stateRcptTo
	s.writeLine("250 OK")
}

// handleDATA reads the message, hands it to the handler and acknowledges
// it. Processing outcome does not affect the reply: failures are handled
// (and logged) by the handler so the client never retries the message.
func (s *Session) handleDATA(ctx context.Context) {
	if s.state < stateRcptTo {
		s.writeLine("503 Send RCPT TO first")
		return
	}

	s.writeLine("354 Start mail input; end with <CRLF>.<CRLF>")

	raw, tooLarge, err := s.readData()
	if err != nil {
		slog.Error("error reading DATA", "error", err)
		return
	}
	if tooLarge {
		slog.Warn("message exceeds size limit",
			"from", s.mailFrom,
			"limit", s.maxSize,
		)
		s.writeLine("552 Message exceeds fixed maximum message size")
		s.resetTransaction()
		return
	}

	if len(s.rcptTo) > 1 {
		slog.Debug("notifying first recipient only",
			"recipients", len(s.rcptTo),
		)
	}

	msg := parser.ReadEmail(raw, s.mailFrom, s.rcptTo[0])
	s.handler.Handle(ctx, msg)

	s.writeLine("250 OK message accepted")
	s.resetTransaction()
}

// readData reads the dot-terminated DATA section. Once the size limit is
// exceeded the rest of the message is consumed but discarded.
func (s *Session) readData() ([]byte, bool, error) {
	var data []byte
	tooLarge := false

	for {
		// Two bytes of slack keep the terminator readable at any fill level.
		line, tooLong, err := s.readLine(s.maxSize + 2)
		if err != nil {
			return nil, false, err
		}

		if !tooLong && strings.TrimRight(line, "\r\n") == "." {
			break
		}

		// RFC 5321 4.5.2: drop the leading dot of every dot-stuffed line.
		line = strings.TrimPrefix(line, ".")

		if tooLarge {
			continue
		}
		if tooLong || int64(len(data)+len(line)) > s.maxSize {
			tooLarge = true
			data = nil
			continue
		}
		data = append(data, line...)
	}

	return data, tooLarge, nil
}

// readLine reads one line of at most limit bytes, terminator included.
// A longer line is consumed and discarded, and tooLong is reported instead,
// so a client cannot make the session buffer an unbounded line.
func (s *Session) readLine(limit int64) (line string, tooLong bool, err error) {
	var buf []byte
	for {
		chunk, readErr := s.reader.ReadSlice('\n')
		if !tooLong {
			if int64(len(buf)+len(chunk)) > limit {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}

		switch {
		case errors.Is(readErr, bufio.ErrBufferFull):
			continue
		case readErr != nil:
			return "", tooLong, readErr
		}
		if tooLong {
			return "", true, nil
		}
		return string(buf), false, nil
	}
}

// resetTransaction clears the current mail transaction state without
// affecting the session state (greeting, auth).
func (s *Session) resetTransaction() {
	s.mailFrom = ""
	s.rcptTo = nil

	if s.auth.Enabled() && s.state >= stateAuthOK {
		s.state = stateAuthOK
	} else if s.state >= stateGreeted {
		s.state = stateGreeted
	}
}

// writeLine writes a formatted line to the client, followed by \r\n.
func (s *Session) writeLine(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	if _, err := s.writer.WriteString(line + "\r\n"); err != nil {
		slog.Error("failed to write to client", "error", err)
		return
	}
	if err := s.writer.Flush(); err != nil {
		slog.Error("failed to flush to client", "error", err)
	}
}

// parseCommand splits an SMTP command line into the command verb and its argument.
func parseCommand(line string) (string, string) {
	cmd, arg, _ := strings.Cut(line, " ")
	return strings.ToUpper(cmd), arg
}

// commandAddress extracts the address from a MAIL/RCPT argument such as
// "FROM:<user@example.com>". The null reverse-path "<>" yields an empty
// address and ok set to true.
func commandAddress(arg, prefix string) (string, bool) {
	if !strings.HasPrefix(strings.ToUpper(arg), prefix) {
		return "", false
	}
	s := strings.TrimSpace(arg[len(prefix):])

	// Handle angle-bracket format: <user@example.com> SIZE=123
	if strings.HasPrefix(s, "<") {
		end := strings.IndexByte(s, '>')
		if end < 0 {
			return "", false
		}
		return s[1:end], true
	}

	// Bare address format, ignoring ESMTP parameters
	addr, _, _ := strings.Cut(s, " ")
	return addr, addr != ""
}
