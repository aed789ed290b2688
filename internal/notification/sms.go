package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	twilio "github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

const DefaultTextBeltURL = "https://textbelt.com/text"

// TwilioSender sends SMS through the Twilio Messages API.
type TwilioSender struct {
	client *twilio.RestClient
	from   string
}

func NewTwilioSender(accountSID, authToken, from string) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{client: client, from: from}
}

func (s *TwilioSender) SendSMS(ctx context.Context, to, body string) error {
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	// The Twilio client takes no context; stop waiting once ctx expires.
	done := make(chan error, 1)
	go func() {
		_, err := s.client.Api.CreateMessage(params)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("twilio: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TextBeltSender posts to a TextBelt-compatible endpoint.
type TextBeltSender struct {
	url    string
	key    string
	client *http.Client
}

func NewTextBeltSender(url, key string) *TextBeltSender {
	if url == "" {
		url = DefaultTextBeltURL
	}
	if key == "" {
		key = "textbelt"
	}
	return &TextBeltSender{url: url, key: key, client: &http.Client{}}
}

type textBeltResponse struct {
	Success        bool   `json:"success"`
	Error          string `json:"error"`
	QuotaRemaining int    `json:"quotaRemaining"`
}

func (s *TextBeltSender) SendSMS(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(map[string]string{
		"phone":   to,
		"message": body,
		"key":     s.key,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("textbelt: %w", err)
	}
	defer resp.Body.Close()

	var out textBeltResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("textbelt: decode response (status %d): %w", resp.StatusCode, err)
	}
	if !out.Success {
		if out.Error == "" {
			out.Error = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return errors.New("textbelt: " + out.Error)
	}
	return nil
}
