// Package notify отправляет письма участникам очередей.
//
// Письма никогда не отправляются внутри транзакции очереди и никогда не
// возвращают ошибку в обработчик запроса: сбой провайдера только логируется.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
)

// Email — готовое к отправке письмо.
type Email struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text"`
}

type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// ErrRejected — провайдер отклонил письмо, повторять отправку бессмысленно.
var ErrRejected = errors.New("email rejected by provider")

// ResendClient отправляет письма через SDK Resend.
// Без API-ключа отправка пропускается.
type ResendClient struct {
	apiKey string
	from   string
	client *resend.Client
}

func NewResendClient(apiKey, from string) *ResendClient {
	return &ResendClient{apiKey: apiKey, from: from, client: newResendSDK(apiKey)}
}

func newResendSDK(apiKey string) *resend.Client {
	return resend.NewCustomClient(&http.Client{
		Timeout:   10 * time.Second,
		Transport: serverErrorTransport{base: http.DefaultTransport},
	}, apiKey)
}

// WithBaseURL нужен для тестов и самостоятельно развёрнутых шлюзов.
func (c *ResendClient) WithBaseURL(u string) *ResendClient {
	base, err := url.Parse(strings.TrimSuffix(u, "/") + "/")
	if err != nil {
		return c
	}
	cp := *c
	cp.client = newResendSDK(c.apiKey)
	cp.client.BaseURL = base
	return &cp
}

func (c *ResendClient) Enabled() bool {
	return c.apiKey != ""
}

func (c *ResendClient) Send(ctx context.Context, e Email) error {
	if !c.Enabled() || len(e.To) == 0 {
		return nil
	}
	_, err := c.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    c.from,
		To:      e.To,
		Subject: e.Subject,
		Html:    e.HTML,
		Text:    e.Text,
	})
	if err == nil {
		return nil
	}
	// лимит запросов и сетевые сбои (включая 5xx, см. serverErrorTransport) можно повторить
	var netErr *url.Error
	if errors.Is(err, resend.ErrRateLimit) || errors.As(err, &netErr) {
		return fmt.Errorf("send email: %w", err)
	}
	return fmt.Errorf("%w: %v", ErrRejected, err)
}

// serverErrorTransport превращает ответы 5xx в ошибку транспорта: SDK Resend
// не отдаёт код статуса вызывающему.
type serverErrorTransport struct {
	base http.RoundTripper
}

func (t serverErrorTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		resp.Body.Close()
		return nil, fmt.Errorf("email service error: %s", resp.Status)
	}
	return resp, nil
}
