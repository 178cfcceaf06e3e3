package dingtalk

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

var ErrNoWebhook = errors.New("dingtalk webhook is empty")

// Client posts robot messages to a DingTalk webhook, signing the URL when a
// secret is configured.
type Client struct {
	webhook    string
	secret     string
	httpClient *http.Client
	now        func() time.Time
}

// Response is the robot's reply. A non-zero ErrCode means the message was
// rejected even though the HTTP call succeeded.
type Response struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (r *Response) OK() bool {
	return r != nil && r.ErrCode == 0
}

// Err returns an *APIError for a rejected message, nil otherwise.
func (r *Response) Err() error {
	if r == nil || r.ErrCode == 0 {
		return nil
	}
	return &APIError{Code: r.ErrCode, Msg: r.ErrMsg}
}

type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dingtalk errcode=%d errmsg=%s", e.Code, e.Msg)
}

// At selects who the robot mentions.
type At struct {
	Mobiles []string `json:"atMobiles,omitempty"`
	All     bool     `json:"isAtAll,omitempty"`
}

type markdownBody struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type textBody struct {
	Content string `json:"content"`
}

type message struct {
	MsgType  string        `json:"msgtype"`
	Markdown *markdownBody `json:"markdown,omitempty"`
	Text     *textBody     `json:"text,omitempty"`
	At       *At           `json:"at,omitempty"`
}

type SendOption func(*message)

// WithAtAll mentions everyone in the group.
func WithAtAll() SendOption {
	return func(m *message) {
		if m.At == nil {
			m.At = &At{}
		}
		m.At.All = true
	}
}

// WithAtMobiles mentions the given members. Markdown messages only ping them
// when the text also contains @<mobile>, which the option appends.
func WithAtMobiles(mobiles ...string) SendOption {
	return func(m *message) {
		if len(mobiles) == 0 {
			return
		}
		if m.At == nil {
			m.At = &At{}
		}
		m.At.Mobiles = append(m.At.Mobiles, mobiles...)
		if m.Markdown != nil {
			for _, mob := range mobiles {
				m.Markdown.Text += " @" + mob
			}
		}
	}
}

func NewClient(webhook, secret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		webhook:    webhook,
		secret:     secret,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.webhook != ""
}

func (c *Client) SendMarkdown(ctx context.Context, title, markdown string, opts ...SendOption) (*Response, error) {
	return c.send(ctx, &message{
		MsgType:  "markdown",
		Markdown: &markdownBody{Title: title, Text: markdown},
	}, opts)
}

func (c *Client) SendText(ctx context.Context, content string, opts ...SendOption) (*Response, error) {
	return c.send(ctx, &message{
		MsgType: "text",
		Text:    &textBody{Content: content},
	}, opts)
}

func (c *Client) send(ctx context.Context, msg *message, opts []SendOption) (*Response, error) {
	if !c.Enabled() {
		return nil, ErrNoWebhook
	}
	for _, opt := range opts {
		opt(msg)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s message: %w", msg.MsgType, err)
	}
	endpoint, err := c.endpoint()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("dingtalk status %d", resp.StatusCode)
	}
	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// endpoint appends timestamp and sign when a secret is set. The signature
// is base64(HMAC-SHA256(secret, "<ms>\n<secret>")).
func (c *Client) endpoint() (string, error) {
	if c.secret == "" {
		return c.webhook, nil
	}
	u, err := url.Parse(c.webhook)
	if err != nil {
		return "", fmt.Errorf("invalid webhook url: %w", err)
	}
	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	mac := hmac.New(sha256.New, []byte(c.secret))
	_, _ = mac.Write([]byte(ts + "\n" + c.secret))

	q := u.Query()
	q.Set("timestamp", ts)
	q.Set("sign", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
