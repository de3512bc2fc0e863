// Copyright (c) 2026 Aegia. All rights reserved.
// Author: minh.dangngo.jp@gmail.com

package auth

import (
	"context"
	"log/slog"
)

// # Mailer

// Mailer delivers templated transactional mail. Delivery failures are the
// caller's to log; no flow in this package fails on a mail error.
type Mailer interface {
	Send(context context.Context, recipient string, templateID string, params map[string]string) error
}

// LogMailer writes the mail it would send to the structured log. It is the
// development and test delivery backend.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer constructs a [LogMailer].
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs the mail instead of delivering it. Token values appear in the
// log, so this backend must never run in production.
func (mailer *LogMailer) Send(context context.Context, recipient string, templateID string, params map[string]string) error {
	mailer.logger.InfoContext(context, "mail_logged",
		slog.String("recipient", recipient),
		slog.String("template", templateID),
		slog.Any("params", params),
	)
	return nil
}
