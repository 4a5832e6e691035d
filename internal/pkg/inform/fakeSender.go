package inform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jordan-wright/email"
	"github.com/spf13/viper"
)

// FakeEmailSender posts the email as json to the URL instead of sending it
type FakeEmailSender struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewFakeEmailSender initiates email sender
func NewFakeEmailSender(c *viper.Viper) (*FakeEmailSender, error) {
	res := &FakeEmailSender{url: c.GetString("smtp.fakeUrl"), timeout: time.Second * 5, client: &http.Client{}}
	if res.url == "" {
		return nil, fmt.Errorf("no smtp.fakeUrl")
	}
	goapp.Log.Info().Str("URL", res.url).Msg("Fake sender")
	return res, nil
}

// Send posts email
func (s *FakeEmailSender) Send(mail *email.Email) error {
	body, err := json.Marshal(struct {
		From    string   `json:"from"`
		To      []string `json:"to"`
		Subject string   `json:"subject"`
		Text    string   `json:"text"`
	}{From: mail.From, To: mail.To, Subject: mail.Subject, Text: string(mail.Text)})
	if err != nil {
		return err
	}
	ctx, cancelF := context.WithTimeout(context.Background(), s.timeout)
	defer cancelF()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	goapp.Log.Info().Str("url", req.URL.String()).Str("method", req.Method).Msg("call")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
		_ = resp.Body.Close()
	}()
	if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
		return fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
	}
	return nil
}
