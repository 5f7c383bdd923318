package teleobi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrorKind classifies a failed provider call for the retry policy.
type ErrorKind int

const (
	// KindTransient errors (timeouts, 429, 5xx) are worth retrying.
	KindTransient ErrorKind = iota
	// KindPermanent errors (other 4xx, API-level rejection) are not.
	KindPermanent
)

// Error is a classified provider failure.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("teleobi: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("teleobi: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient reports whether the error is a retryable provider failure.
func IsTransient(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == KindTransient
	}
	return false
}

// Template is one entry of the provider's template catalog.
type Template struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Language string `json:"language"`
	Category string `json:"category"`
	Status   string `json:"status"`
	Body     string `json:"body"`
}

var bodyVarPattern = regexp.MustCompile(`\{\{(\d+)\}\}`)

// VariableCount returns the highest {{n}} placeholder in the template body.
func (t Template) VariableCount() int {
	max := 0
	for _, m := range bodyVarPattern.FindAllStringSubmatch(t.Body, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	}
	return max
}

// Client talks to the Teleobi WhatsApp API. It performs exactly one HTTP
// attempt per call; retry policy belongs to the caller.
type Client struct {
	baseURL       string
	apiToken      string
	phoneNumberID string
	httpClient    *http.Client
}

func NewClient(baseURL, apiToken, phoneNumberID string) *Client {
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiToken:      apiToken,
		phoneNumberID: phoneNumberID,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type sendResponse struct {
	Status      string          `json:"status"`
	Message     string          `json:"message"`
	WaMessageID string          `json:"wa_message_id"`
	Data        json.RawMessage `json:"data"`
}

// SendTemplate delivers one template message. Variables are keyed by their
// 1-based placeholder position and posted as templateVariable-{slug}-{n}.
// On success it returns the provider message id.
func (c *Client) SendTemplate(ctx context.Context, phoneNumber, templateID, templateSlug string, variables []string) (string, error) {
	form := url.Values{}
	form.Set("apiToken", c.apiToken)
	form.Set("phone_number_id", c.phoneNumberID)
	form.Set("phone_number", phoneNumber)
	form.Set("template_id", templateID)
	for i, v := range variables {
		form.Set(fmt.Sprintf("templateVariable-%s-%d", templateSlug, i+1), v)
	}

	body, err := c.postForm(ctx, "/whatsapp/send/template", form)
	if err != nil {
		return "", err
	}

	var resp sendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &Error{Kind: KindTransient, Message: "unreadable send response", Err: err}
	}
	if resp.Status != "1" {
		msg := resp.Message
		if msg == "" {
			msg = "provider rejected the message"
		}
		return "", &Error{Kind: KindPermanent, Message: msg}
	}
	return resp.WaMessageID, nil
}

type templateListResponse struct {
	Status  string     `json:"status"`
	Message string     `json:"message"`
	Data    []Template `json:"data"`
}

// FetchTemplates pulls the approved template catalog.
func (c *Client) FetchTemplates(ctx context.Context) ([]Template, error) {
	form := url.Values{}
	form.Set("apiToken", c.apiToken)
	form.Set("phone_number_id", c.phoneNumberID)

	body, err := c.postForm(ctx, "/whatsapp/template/list", form)
	if err != nil {
		return nil, err
	}

	var resp templateListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &Error{Kind: KindTransient, Message: "unreadable template list response", Err: err}
	}
	if resp.Status != "1" {
		msg := resp.Message
		if msg == "" {
			msg = "provider rejected the template list request"
		}
		return nil, &Error{Kind: KindPermanent, Message: msg}
	}
	return resp.Data, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &Error{Kind: KindPermanent, Message: "failed to build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: classifyNetworkError(err), Message: "request failed", Err: err}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, &Error{Kind: KindTransient, StatusCode: res.StatusCode, Message: "failed to read response", Err: err}
	}

	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		return body, nil
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500:
		return nil, &Error{
			Kind:       KindTransient,
			StatusCode: res.StatusCode,
			Message:    fmt.Sprintf("provider returned HTTP %d", res.StatusCode),
		}
	default:
		return nil, &Error{
			Kind:       KindPermanent,
			StatusCode: res.StatusCode,
			Message:    fmt.Sprintf("provider returned HTTP %d", res.StatusCode),
		}
	}
}

func classifyNetworkError(err error) ErrorKind {
	if errors.Is(err, context.Canceled) {
		return KindPermanent
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return KindTransient
	}
	// Connection refused and DNS failures usually clear up.
	return KindTransient
}
