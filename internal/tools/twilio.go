package tools

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// CanonicalizeRecipient strips a phone number down to its digits and
// validates the result. The returned canonical form has no plus sign or
// separators.
func CanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}

	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}

	if canonical != recipient {
		slog.Debug("canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// TwilioNotifier delivers messages over WhatsApp through the Twilio REST
// API.
type TwilioNotifier struct {
	client *twilio.RestClient
	from   string // "whatsapp:+9779800000000" format
}

// NewTwilioNotifier builds a notifier from the given credentials, falling
// back to the TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER
// environment variables for any that are empty.
func NewTwilioNotifier(accountSID, authToken, from string) (*TwilioNotifier, error) {
	if accountSID == "" {
		accountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if authToken == "" {
		authToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if from == "" {
		from = os.Getenv("TWILIO_FROM_NUMBER")
	}

	if accountSID == "" || authToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if from == "" {
		return nil, fmt.Errorf("from number must be provided")
	}
	if !strings.HasPrefix(from, "whatsapp:") {
		from = "whatsapp:" + from
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &TwilioNotifier{client: client, from: from}, nil
}

// Send delivers body to the recipient's WhatsApp number.
func (n *TwilioNotifier) Send(ctx context.Context, to, body string) error {
	canonical, err := CanonicalizeRecipient(to)
	if err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:+" + canonical)
	params.SetFrom(n.from)
	params.SetBody(body)

	if _, err := n.client.Api.CreateMessage(params); err != nil {
		slog.Error("twilio send failed", "to", canonical, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}

	slog.Debug("twilio message sent", "to", canonical)
	return nil
}

// MockSender records messages instead of delivering them. It satisfies
// Notifier for tests and for running without Twilio credentials.
type MockSender struct {
	SentMessages []SentMessage
	Err          error // returned from Send when set
}

// SentMessage is one recorded delivery.
type SentMessage struct {
	To   string
	Body string
}

// NewMockSender creates an empty recorder.
func NewMockSender() *MockSender {
	return &MockSender{SentMessages: []SentMessage{}}
}

// Send records the message, or returns the injected error.
func (m *MockSender) Send(ctx context.Context, to, body string) error {
	if m.Err != nil {
		return m.Err
	}
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return nil
}
