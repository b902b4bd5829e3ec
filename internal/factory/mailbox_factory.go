package factory

import (
	"os"

	"github.com/mikey/phishguard/internal/adapters/gmail"
	"github.com/mikey/phishguard/internal/config"
	"go.uber.org/zap"
)

// CreateMailbox returns the Gmail mailbox, or nil when no OAuth client
// credentials file is present
func CreateMailbox(cfg *config.Config, logger *zap.Logger) *gmail.Mailbox {
	mailboxCfg := cfg.GetMailbox()
	if mailboxCfg.CredentialsFile == "" {
		logger.Info("No mailbox configured, batch scanning disabled")
		return nil
	}
	if _, err := os.Stat(mailboxCfg.CredentialsFile); err != nil {
		logger.Info("Mailbox credentials not found, batch scanning disabled",
			zap.String("file", mailboxCfg.CredentialsFile))
		return nil
	}
	return gmail.NewMailbox(mailboxCfg, logger)
}
