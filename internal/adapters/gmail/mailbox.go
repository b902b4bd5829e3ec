package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/mikey/phishguard/internal/config"
	"github.com/mikey/phishguard/internal/core"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	inboxQuery  = "is:unread in:inbox -category:social -category:promotions"
	unreadLabel = "UNREAD"
)

// Mailbox implements core.Mailbox over the Gmail API
type Mailbox struct {
	cfg    config.MailboxConfig
	logger *zap.Logger

	mu      sync.Mutex
	service *gmailapi.Service
}

// NewMailbox creates a mailbox. No network call is made until Authenticate.
func NewMailbox(cfg config.MailboxConfig, logger *zap.Logger) *Mailbox {
	if cfg.User == "" {
		cfg.User = "me"
	}
	return &Mailbox{cfg: cfg, logger: logger}
}

// NewMailboxWithService wraps an already built Gmail service
func NewMailboxWithService(svc *gmailapi.Service, user string, logger *zap.Logger) *Mailbox {
	m := NewMailbox(config.MailboxConfig{User: user}, logger)
	m.service = svc
	return m
}

// Authenticate loads the OAuth client and cached token and checks that the
// account is reachable. It is safe to call repeatedly.
func (m *Mailbox) Authenticate(ctx context.Context) error {
	svc, err := m.connect(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrUnauthenticated, err)
	}
	if _, err := svc.Users.GetProfile(m.cfg.User).Context(ctx).Do(); err != nil {
		m.mu.Lock()
		m.service = nil
		m.mu.Unlock()
		return fmt.Errorf("%w: %v", core.ErrUnauthenticated, err)
	}
	return nil
}

func (m *Mailbox) connect(ctx context.Context) (*gmailapi.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.service != nil {
		return m.service, nil
	}

	secret, err := os.ReadFile(m.cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read client credentials: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(secret, gmailapi.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client credentials: %w", err)
	}
	token, err := readToken(m.cfg.TokenFile)
	if err != nil {
		return nil, err
	}

	svc, err := gmailapi.NewService(ctx, option.WithHTTPClient(oauthCfg.Client(context.Background(), token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	m.logger.Info("Connected to Gmail", zap.String("user", m.cfg.User))
	m.service = svc
	return svc, nil
}

func readToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open token file: %w", err)
	}
	defer f.Close()

	var token oauth2.Token
	if err := json.NewDecoder(f).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to decode token file: %w", err)
	}
	return &token, nil
}

func (m *Mailbox) svc(ctx context.Context) (*gmailapi.Service, error) {
	svc, err := m.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrUnauthenticated, err)
	}
	return svc, nil
}

// ListByLabel returns up to max message ids carrying a label
func (m *Mailbox) ListByLabel(ctx context.Context, label string, max int) ([]string, error) {
	svc, err := m.svc(ctx)
	if err != nil {
		return nil, err
	}
	call := svc.Users.Messages.List(m.cfg.User).LabelIds(label).Context(ctx)
	return listIDs(call, max)
}

// ListUnread returns up to max unread inbox ids outside the excluded labels
func (m *Mailbox) ListUnread(ctx context.Context, excludeLabels []string, max int) ([]string, error) {
	svc, err := m.svc(ctx)
	if err != nil {
		return nil, err
	}
	call := svc.Users.Messages.List(m.cfg.User).Q(unreadQuery(excludeLabels)).Context(ctx)
	return listIDs(call, max)
}

func unreadQuery(excludeLabels []string) string {
	var sb strings.Builder
	sb.WriteString(inboxQuery)
	for _, l := range excludeLabels {
		sb.WriteString(" -label:")
		sb.WriteString(l)
	}
	return sb.String()
}

func listIDs(call *gmailapi.UsersMessagesListCall, max int) ([]string, error) {
	if max > 0 {
		call = call.MaxResults(int64(max))
	}
	resp, err := call.Do()
	if err != nil {
		return nil, mapError("list messages", err)
	}
	ids := make([]string, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		ids = append(ids, msg.Id)
	}
	return ids, nil
}

// GetContent fetches one message with its attachments
func (m *Mailbox) GetContent(ctx context.Context, id string) (*core.AnalysisRequest, error) {
	svc, err := m.svc(ctx)
	if err != nil {
		return nil, err
	}
	msg, err := svc.Users.Messages.Get(m.cfg.User, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, mapError("get message "+id, err)
	}

	fetch := func(attachmentID string) ([]byte, error) {
		body, err := svc.Users.Messages.Attachments.Get(m.cfg.User, id, attachmentID).Context(ctx).Do()
		if err != nil {
			return nil, mapError("get attachment", err)
		}
		return decodeData(body.Data)
	}
	req := extractContent(msg, fetch, m.logger.With(zap.String("email_id", id)))
	return req, nil
}

// AddLabel applies a label to a message
func (m *Mailbox) AddLabel(ctx context.Context, id, label string) error {
	return m.modify(ctx, id, &gmailapi.ModifyMessageRequest{AddLabelIds: []string{label}})
}

// MarkRead removes the UNREAD label
func (m *Mailbox) MarkRead(ctx context.Context, id string) error {
	return m.modify(ctx, id, &gmailapi.ModifyMessageRequest{RemoveLabelIds: []string{unreadLabel}})
}

func (m *Mailbox) modify(ctx context.Context, id string, req *gmailapi.ModifyMessageRequest) error {
	svc, err := m.svc(ctx)
	if err != nil {
		return err
	}
	if _, err := svc.Users.Messages.Modify(m.cfg.User, id, req).Context(ctx).Do(); err != nil {
		return mapError("modify message "+id, err)
	}
	return nil
}

// extractContent walks the MIME tree of a message. The first text/plain
// and text/html parts become the body; every part with a filename becomes
// an attachment, left without content when it cannot be downloaded.
func extractContent(msg *gmailapi.Message, fetch func(attachmentID string) ([]byte, error), logger *zap.Logger) *core.AnalysisRequest {
	req := &core.AnalysisRequest{}
	if msg.Payload == nil {
		return req
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, "Subject") {
			req.Subject = h.Value
			break
		}
	}

	var walk func(part *gmailapi.MessagePart)
	walk = func(part *gmailapi.MessagePart) {
		if part.Filename != "" {
			att := core.Attachment{Filename: part.Filename, MimeType: part.MimeType}
			data, err := partData(part, fetch)
			if err != nil {
				logger.Warn("Could not download attachment",
					zap.String("filename", part.Filename),
					zap.Error(err))
			} else {
				att.Content = data
			}
			req.Attachments = append(req.Attachments, att)
			return
		}

		switch {
		case strings.HasPrefix(part.MimeType, "multipart/"):
			for _, child := range part.Parts {
				walk(child)
			}
		case part.MimeType == "text/plain" && req.Body == "":
			req.Body = partText(part)
		case part.MimeType == "text/html" && req.HTML == "":
			req.HTML = partText(part)
		}
	}
	walk(msg.Payload)
	return req
}

func partData(part *gmailapi.MessagePart, fetch func(string) ([]byte, error)) ([]byte, error) {
	if part.Body == nil {
		return nil, errors.New("attachment has no body")
	}
	if part.Body.Data != "" {
		return decodeData(part.Body.Data)
	}
	if part.Body.AttachmentId == "" {
		return nil, errors.New("attachment has no data")
	}
	return fetch(part.Body.AttachmentId)
}

func partText(part *gmailapi.MessagePart) string {
	if part.Body == nil || part.Body.Data == "" {
		return ""
	}
	data, err := decodeData(part.Body.Data)
	if err != nil {
		return ""
	}
	return strings.ToValidUTF8(string(data), "")
}

// decodeData accepts base64url with or without padding
func decodeData(s string) ([]byte, error) {
	if data, err := base64.URLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

func mapError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", op, core.ErrNotFound)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: %w: %v", op, core.ErrUnauthenticated, err)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%s: %w: %v", op, core.ErrRateLimited, err)
		}
	}
	return fmt.Errorf("%s: %w: %v", op, core.ErrExternalService, err)
}
