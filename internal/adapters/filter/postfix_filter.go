package filter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-smtp"
	"github.com/mikey/phishguard/internal/config"
	"github.com/mikey/phishguard/internal/core"
	"github.com/mikey/phishguard/internal/whitelist"
	"go.uber.org/zap"
)

// Values written to the status header
const (
	StatusPhishing    = "phishing"
	StatusClean       = "clean"
	StatusWhitelisted = "whitelisted"
	StatusError       = "error"
)

const analysisTimeout = 3 * time.Minute

// PostfixFilter implements a Postfix content filter. Mail arrives over SMTP,
// is analysed, tagged with verdict headers and handed back to Postfix.
type PostfixFilter struct {
	analyzer  core.Analyzer
	whitelist *whitelist.Checker
	logger    *zap.Logger
	cfg       config.ServerConfig
	server    *smtp.Server
	forward   func(sender string, recipients []string, data []byte) error
}

// NewPostfixFilter creates a new Postfix content filter
func NewPostfixFilter(
	analyzer core.Analyzer,
	checker *whitelist.Checker,
	logger *zap.Logger,
	cfg config.ServerConfig,
) *PostfixFilter {
	if cfg.SubjectPrefix == "" && cfg.ModifySubject {
		cfg.SubjectPrefix = "[PHISHING] "
	}
	if cfg.Headers.Status == "" {
		cfg.Headers.Status = "X-Phishing-Status"
	}
	if cfg.Headers.Stage == "" {
		cfg.Headers.Stage = "X-Phishing-Stage"
	}
	if cfg.Headers.Threats == "" {
		cfg.Headers.Threats = "X-Phishing-Threats"
	}

	f := &PostfixFilter{
		analyzer:  analyzer,
		whitelist: checker,
		logger:    logger,
		cfg:       cfg,
	}
	f.forward = f.sendToPostfix
	return f
}

// Start starts the Postfix filter service
func (f *PostfixFilter) Start() error {
	f.server = smtp.NewServer(&smtpBackend{filter: f})
	f.server.Addr = f.cfg.ListenAddress
	f.server.Domain = "localhost"
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = 60 * 1024 * 1024
	f.server.MaxRecipients = 50

	ln, err := net.Listen("tcp", f.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", f.cfg.ListenAddress, err)
	}

	f.logger.Info("Postfix filter starting", zap.String("address", ln.Addr().String()))
	go func() {
		if err := f.server.Serve(ln); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			f.logger.Error("SMTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop stops the Postfix filter service
func (f *PostfixFilter) Stop() error {
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// process analyses one raw message and returns it with verdict headers
// added. A returned *smtp.SMTPError rejects the message.
func (f *PostfixFilter) process(ctx context.Context, sender string, raw []byte) ([]byte, error) {
	logger := f.logger.With(zap.String("sender", sender))

	req, msg, err := parseMessage(raw)
	if err != nil {
		logger.Error("Failed to parse email message", zap.Error(err))
		return nil, &smtp.SMTPError{
			Code:         554,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Malformed message",
		}
	}

	from := msg.Header.Get("From")
	if from == "" {
		from = sender
	}
	if f.whitelist != nil && (f.whitelist.IsWhitelisted(sender) || f.whitelist.IsWhitelisted(from)) {
		logger.Info("Sender is whitelisted, skipping analysis")
		return f.rewrite(raw, StatusWhitelisted, nil, ""), nil
	}

	ctx, cancel := context.WithTimeout(ctx, analysisTimeout)
	defer cancel()

	verdict, err := f.analyzer.Analyze(ctx, req)
	if err != nil {
		// Fail open: the message is delivered with an error status
		logger.Error("Failed to analyze email", zap.Error(err))
		return f.rewrite(raw, StatusError, nil, ""), nil
	}

	logger.Info("Processed email",
		zap.Bool("is_phishing", verdict.IsPhishing),
		zap.String("stage", string(verdict.TriggeringStage)),
		zap.Strings("threats", verdict.Threats))

	if !verdict.IsPhishing {
		return f.rewrite(raw, StatusClean, verdict, ""), nil
	}

	if f.cfg.RejectPhishing {
		logger.Warn("Rejecting phishing email", zap.String("stage", string(verdict.TriggeringStage)))
		return nil, &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 7, 1},
			Message:      fmt.Sprintf("Rejected as phishing (%s)", strings.Join(verdict.Threats, ", ")),
		}
	}

	subject := ""
	if f.cfg.ModifySubject && !strings.HasPrefix(req.Subject, f.cfg.SubjectPrefix) {
		subject = f.cfg.SubjectPrefix + req.Subject
	}
	return f.rewrite(raw, StatusPhishing, verdict, subject), nil
}

// rewrite prepends the verdict headers, drops any copies of them that came
// in with the message and optionally replaces the subject
func (f *PostfixFilter) rewrite(raw []byte, status string, verdict *core.Verdict, subject string) []byte {
	var out bytes.Buffer
	fmt.Fprintf(&out, "%s: %s\r\n", f.cfg.Headers.Status, status)
	if verdict != nil {
		fmt.Fprintf(&out, "%s: %s\r\n", f.cfg.Headers.Stage, verdict.TriggeringStage)
		if len(verdict.Threats) > 0 {
			fmt.Fprintf(&out, "%s: %s\r\n", f.cfg.Headers.Threats, strings.Join(verdict.Threats, ", "))
		}
	}

	owned := []string{f.cfg.Headers.Status, f.cfg.Headers.Stage, f.cfg.Headers.Threats}
	if subject != "" {
		owned = append(owned, "Subject")
		fmt.Fprintf(&out, "Subject: %s\r\n", encodeHeader(subject))
	}

	body := splitBody(raw)
	headerBlock := raw
	if body != nil {
		headerBlock = raw[:len(raw)-len(body)]
	}
	writeHeaders(&out, headerBlock, owned)
	out.WriteString("\r\n")
	out.Write(body)
	return out.Bytes()
}

// writeHeaders copies header fields, with their folded continuation lines,
// except those named in skip
func writeHeaders(w *bytes.Buffer, block []byte, skip []string) {
	dropping := false
	for _, line := range strings.Split(string(block), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if !dropping {
				w.WriteString(line + "\r\n")
			}
			continue
		}
		dropping = false
		if name, _, ok := strings.Cut(line, ":"); ok {
			for _, s := range skip {
				if strings.EqualFold(strings.TrimSpace(name), s) {
					dropping = true
					break
				}
			}
		}
		if !dropping {
			w.WriteString(line + "\r\n")
		}
	}
}

func encodeHeader(value string) string {
	for i := 0; i < len(value); i++ {
		if value[i] >= utf8.RuneSelf {
			return mime.QEncoding.Encode("utf-8", value)
		}
	}
	return value
}

// sendToPostfix re-injects the processed email on the configured port
func (f *PostfixFilter) sendToPostfix(sender string, recipients []string, data []byte) error {
	addr := net.JoinHostPort(f.cfg.PostfixAddress, fmt.Sprint(f.cfg.PostfixPort))

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to Postfix: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	accepted := false
	for _, rcpt := range recipients {
		if err := c.Rcpt(rcpt, nil); err != nil {
			f.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", rcpt),
				zap.Error(err))
			continue
		}
		accepted = true
	}
	if !accepted {
		return errors.New("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send email data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		f.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	filter *PostfixFilter
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{filter: b.filter}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	filter     *PostfixFilter
	sender     string
	recipients []string
}

func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

func (s *smtpSession) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.filter.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	out, err := s.filter.process(context.Background(), s.sender, raw)
	if err != nil {
		return err
	}

	if !s.filter.cfg.PostfixEnabled {
		s.filter.logger.Warn("Postfix forwarding disabled, message dropped after analysis")
		return nil
	}
	if err := s.filter.forward(s.sender, s.recipients, out); err != nil {
		s.filter.logger.Error("Failed to send email back to Postfix",
			zap.Error(err),
			zap.String("sender", s.sender))
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Re-injection failed, try again later",
		}
	}
	return nil
}

func (s *smtpSession) Logout() error {
	return nil
}
