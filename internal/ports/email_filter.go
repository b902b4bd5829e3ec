package ports

// EmailFilter is a long-running front end that feeds mail into the analyzer
type EmailFilter interface {
	// Start starts the email filter service
	Start() error

	// Stop stops the email filter service
	Stop() error
}
