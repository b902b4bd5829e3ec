package filter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/mikey/phishguard/internal/config"
	"github.com/mikey/phishguard/internal/core"
	"github.com/mikey/phishguard/internal/whitelist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) Analyze(ctx context.Context, req *core.AnalysisRequest) (*core.Verdict, error) {
	args := m.Called(ctx, req)
	v, _ := args.Get(0).(*core.Verdict)
	return v, args.Error(1)
}

const multipartMessage = "From: CEO <ceo@corp.example>\r\n" +
	"To: finance@corp.example\r\n" +
	"Subject: =?UTF-8?Q?Chuy=E1=BB=83n_kho=E1=BA=A3n?=\r\n" +
	"X-Phishing-Status: clean\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"outer\"\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=\"inner\"\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"Please wire the funds to https://pay.evil.example/now =\r\n" +
	"today.\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html; charset=iso-8859-1\r\n" +
	"\r\n" +
	"<p>Caf\xe9</p>\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: application/pdf; name=\"invoice.pdf\"\r\n" +
	"Content-Disposition: attachment; filename=\"invoice.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0x\r\n" +
	"LjQ=\r\n" +
	"--outer--\r\n"

func TestParseMessage(t *testing.T) {
	req, msg, err := parseMessage([]byte(multipartMessage))
	require.NoError(t, err)

	assert.Equal(t, "CEO <ceo@corp.example>", msg.Header.Get("From"))
	assert.Equal(t, "Chuyển khoản", req.Subject)
	assert.Equal(t, "Please wire the funds to https://pay.evil.example/now today.", req.Body)
	assert.Equal(t, "<p>Café</p>", req.HTML)
	require.Len(t, req.Attachments, 1)
	assert.Equal(t, "invoice.pdf", req.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", req.Attachments[0].MimeType)
	assert.Equal(t, []byte("%PDF-1.4"), req.Attachments[0].Content)
}

func TestParseMessagePlain(t *testing.T) {
	req, _, err := parseMessage([]byte("Subject: hi\n\nplain body\n"))
	require.NoError(t, err)
	assert.Equal(t, "hi", req.Subject)
	assert.Equal(t, "plain body\n", req.Body)
	assert.Empty(t, req.Attachments)

	_, _, err = parseMessage([]byte("not a header block"))
	assert.Error(t, err)
}

func newTestFilter(analyzer core.Analyzer, cfg config.ServerConfig) *PostfixFilter {
	checker := whitelist.NewChecker(cfg.WhitelistedDomains, zap.NewNop())
	return NewPostfixFilter(analyzer, checker, zap.NewNop(), cfg)
}

func phishingVerdict() *core.Verdict {
	return &core.Verdict{
		IsPhishing:      true,
		TriggeringStage: core.StageURL,
		Threats:         []string{core.ThreatMaliciousURL},
	}
}

func TestProcessTagsPhishing(t *testing.T) {
	analyzer := &mockAnalyzer{}
	analyzer.On("Analyze", mock.Anything, mock.MatchedBy(func(r *core.AnalysisRequest) bool {
		return strings.Contains(r.Body, "pay.evil.example") && len(r.Attachments) == 1
	})).Return(phishingVerdict(), nil)

	f := newTestFilter(analyzer, config.ServerConfig{ModifySubject: true})
	out, err := f.process(context.Background(), "ceo@corp.example", []byte(multipartMessage))
	require.NoError(t, err)

	text := string(out)
	assert.True(t, strings.HasPrefix(text, "X-Phishing-Status: phishing\r\n"))
	assert.Contains(t, text, "X-Phishing-Stage: url\r\n")
	assert.Contains(t, text, "X-Phishing-Threats: malicious_url\r\n")
	assert.Equal(t, 1, strings.Count(text, "X-Phishing-Status:"), "incoming status header is dropped")
	assert.Equal(t, 1, strings.Count(text, "Subject:"))
	assert.Contains(t, text, "Subject: =?utf-8?q?[PHISHING]_Chuy")
	assert.Contains(t, text, "From: CEO <ceo@corp.example>\r\n")
	assert.True(t, strings.HasSuffix(text, "--outer--\r\n"), "body is passed through untouched")
	analyzer.AssertExpectations(t)
}

func TestProcessRejectsPhishing(t *testing.T) {
	analyzer := &mockAnalyzer{}
	analyzer.On("Analyze", mock.Anything, mock.Anything).Return(phishingVerdict(), nil)

	f := newTestFilter(analyzer, config.ServerConfig{RejectPhishing: true})
	_, err := f.process(context.Background(), "x@evil.example", []byte(multipartMessage))

	var smtpErr *smtp.SMTPError
	require.True(t, errors.As(err, &smtpErr))
	assert.Equal(t, 550, smtpErr.Code)
	assert.Contains(t, smtpErr.Message, core.ThreatMaliciousURL)
}

func TestProcessCleanAndErrors(t *testing.T) {
	analyzer := &mockAnalyzer{}
	analyzer.On("Analyze", mock.Anything, mock.MatchedBy(func(r *core.AnalysisRequest) bool {
		return r.Subject == "ok"
	})).Return(&core.Verdict{TriggeringStage: core.StageNone, Threats: []string{}}, nil)
	analyzer.On("Analyze", mock.Anything, mock.MatchedBy(func(r *core.AnalysisRequest) bool {
		return r.Subject == "fail"
	})).Return(nil, core.ErrNoCredentials)

	f := newTestFilter(analyzer, config.ServerConfig{RejectPhishing: true})

	out, err := f.process(context.Background(), "a@b.example", []byte("Subject: ok\r\n\r\nhello"))
	require.NoError(t, err)
	assert.Equal(t, "X-Phishing-Status: clean\r\nX-Phishing-Stage: none\r\nSubject: ok\r\n\r\nhello", string(out))

	out, err = f.process(context.Background(), "a@b.example", []byte("Subject: fail\r\n\r\nhello"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "X-Phishing-Status: error\r\n"))
}

func TestProcessWhitelistedSender(t *testing.T) {
	analyzer := &mockAnalyzer{}
	f := newTestFilter(analyzer, config.ServerConfig{WhitelistedDomains: []string{"corp.example"}})

	out, err := f.process(context.Background(), "bounce@mail.other.example", []byte(multipartMessage))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "X-Phishing-Status: whitelisted\r\n"))
	analyzer.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
}

func TestWriteHeadersDropsFoldedLines(t *testing.T) {
	block := "Subject: first\r\n line two\r\nTo: x@y.example\r\n\tfolded\r\n"
	var out bytes.Buffer
	writeHeaders(&out, []byte(block), []string{"subject"})
	assert.Equal(t, "To: x@y.example\r\n\tfolded\r\n", out.String())
}

// receiver is a minimal SMTP backend standing in for Postfix's re-injection port
type receiver struct {
	mu   sync.Mutex
	from string
	to   []string
	data []byte
}

func (r *receiver) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &receiverSession{r: r}, nil
}

type receiverSession struct{ r *receiver }

func (s *receiverSession) Reset()        {}
func (s *receiverSession) Logout() error { return nil }

func (s *receiverSession) Mail(from string, _ *smtp.MailOptions) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	s.r.from = from
	return nil
}

func (s *receiverSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	if strings.HasPrefix(to, "nobody") {
		return &smtp.SMTPError{Code: 550, EnhancedCode: smtp.EnhancedCode{5, 1, 1}, Message: "no such user"}
	}
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	s.r.to = append(s.r.to, to)
	return nil
}

func (s *receiverSession) Data(rd io.Reader) error {
	data, err := io.ReadAll(rd)
	if err != nil {
		return err
	}
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	s.r.data = data
	return nil
}

func TestSendToPostfix(t *testing.T) {
	rcv := &receiver{}
	srv := smtp.NewServer(rcv)
	srv.Domain = "localhost"
	srv.ReadTimeout = 5 * time.Second
	srv.WriteTimeout = 5 * time.Second

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln)
	defer srv.Close()

	addr := ln.Addr().(*net.TCPAddr)
	f := newTestFilter(&mockAnalyzer{}, config.ServerConfig{
		PostfixEnabled: true,
		PostfixAddress: "127.0.0.1",
		PostfixPort:    addr.Port,
	})

	msg := []byte("Subject: hi\r\n\r\nhello\r\n")
	err = f.sendToPostfix("a@b.example", []string{"nobody@c.example", "c@d.example"}, msg)
	require.NoError(t, err)

	rcv.mu.Lock()
	defer rcv.mu.Unlock()
	assert.Equal(t, "a@b.example", rcv.from)
	assert.Equal(t, []string{"c@d.example"}, rcv.to)
	assert.Contains(t, string(rcv.data), "hello")

	err = f.sendToPostfix("a@b.example", []string{"nobody@c.example"}, msg)
	assert.ErrorContains(t, err, "all recipients were rejected")
}
