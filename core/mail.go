package core

import (
	"net/mail"
	"strings"
)

type (
	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		Body    string // text/plain
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

// NewEmailMessage returns a plain text message for a single recipient.
// Returns nil when the address is empty, which SendMessages ignores.
func NewEmailMessage(name, address, subject string, lines ...string) *EmailMessage {
	if CleanString(address) == "" {
		return nil
	}
	return &EmailMessage{
		To:      []mail.Address{{Name: name, Address: CleanString(address, true /* lower */)}},
		Subject: subject,
		Body:    strings.Join(lines, "\r\n"),
	}
}

func (m *EmailMessage) HasRecipients() bool { return m != nil && len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return m != nil && m.Body != "" }
