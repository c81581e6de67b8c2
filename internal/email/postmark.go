package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const postmarkURL = "https://api.postmarkapp.com/email"

type Client struct {
	serverToken string
	fromEmail   string
	baseURL     string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     baseURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
	Tag      string `json:"Tag,omitempty"`
}

// SendSubscriptionStarted tells the customer which plan they are on. A
// non-nil trialEndsAt adds the trial end date.
func (c *Client) SendSubscriptionStarted(ctx context.Context, toEmail, planName string, trialEndsAt *time.Time) error {
	subject := fmt.Sprintf("Your %s subscription is active", planName)
	text := fmt.Sprintf("You are now subscribed to the %s plan.", planName)
	if trialEndsAt != nil {
		subject = fmt.Sprintf("Your %s trial has started", planName)
		text = fmt.Sprintf("Your %s trial runs until %s.", planName, trialEndsAt.Format("January 2, 2006"))
	}
	return c.send(ctx, postmarkEmail{
		To:       toEmail,
		Subject:  subject,
		TextBody: text + "\n\nManage your billing at " + c.baseURL,
		HtmlBody: fmt.Sprintf(`<p>%s</p><p>Manage your billing at <a href="%s">%s</a>.</p>`, text, c.baseURL, c.baseURL),
		Tag:      "subscription-started",
	})
}

// SendSubscriptionCanceled confirms a cancellation. atPeriodEnd distinguishes
// a scheduled cancellation from an immediate one.
func (c *Client) SendSubscriptionCanceled(ctx context.Context, toEmail, planName string, atPeriodEnd bool) error {
	text := fmt.Sprintf("Your %s subscription has been canceled.", planName)
	if atPeriodEnd {
		text = fmt.Sprintf("Your %s subscription will end at the close of the current billing period.", planName)
	}
	return c.send(ctx, postmarkEmail{
		To:       toEmail,
		Subject:  fmt.Sprintf("Your %s subscription was canceled", planName),
		TextBody: text,
		HtmlBody: fmt.Sprintf(`<p>%s</p>`, text),
		Tag:      "subscription-canceled",
	})
}

func (c *Client) send(ctx context.Context, msg postmarkEmail) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}
	msg.From = c.fromEmail

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postmarkURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
