// Package emailsvc implements core.EmailService.
package emailsvc

import (
	"github.com/sirupsen/logrus"

	"github.com/sautiplus/backoffice/core"
)

// New picks the email backend: sendgrid when an API key is configured, the console otherwise.
func New(logger core.Logger, out *logrus.Logger, conf *core.Config) core.EmailService {
	if conf.SendgridApiKey != "" && !conf.Debug {
		return NewSendgridService(logger, conf)
	}
	return NewConsoleService(out, conf)
}
