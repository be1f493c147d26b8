package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// WhatsAppSender delivers a WhatsApp text to a phone number in E.164 form.
type WhatsAppSender interface {
	SendWhatsApp(ctx context.Context, to, body string) error
}

// TwilioWhatsApp sends WhatsApp messages through the Twilio messaging API.
type TwilioWhatsApp struct {
	client     *twilio.RestClient
	fromNumber string
}

// NewTwilioWhatsApp creates a Twilio backed sender.
func NewTwilioWhatsApp(accountSID, authToken, fromNumber string) *TwilioWhatsApp {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioWhatsApp{client: client, fromNumber: fromNumber}
}

// whatsAppAddress prefixes a number with the channel Twilio routes WhatsApp through.
func whatsAppAddress(number string) string {
	number = strings.TrimSpace(number)
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}

func (t *TwilioWhatsApp) SendWhatsApp(_ context.Context, to, body string) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("whatsapp: recipient number is empty")
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(whatsAppAddress(to))
	params.SetFrom(whatsAppAddress(t.fromNumber))
	params.SetBody(body)

	if _, err := t.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send WhatsApp message: %w", err)
	}
	return nil
}

// LogWhatsApp logs messages instead of sending them.
type LogWhatsApp struct{}

func (LogWhatsApp) SendWhatsApp(_ context.Context, to, body string) error {
	log.Info().Str("to", to).Str("body", body).Msg("[MOCK WHATSAPP] message not sent, Twilio not configured")
	return nil
}
