// Package whatsapp is a client for the WhatsApp Business Cloud API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/capitalize-ai/support-inbox/internal/apperr"
	"github.com/capitalize-ai/support-inbox/internal/model"
	"github.com/capitalize-ai/support-inbox/pkg/metrics"
)

// DefaultBaseURL is the Graph API root used when none is configured.
const DefaultBaseURL = "https://graph.facebook.com/v21.0"

// DefaultMaxMediaBytes bounds a single media download.
const DefaultMaxMediaBytes = 100 << 20

// Client sends messages and retrieves media via the Cloud API.
type Client struct {
	BaseURL       string
	AccessToken   string
	PhoneNumberID string
	HTTPClient    *http.Client

	// MaxMediaBytes is the largest download accepted. Larger media fail
	// instead of being truncated.
	MaxMediaBytes int64
}

// NewClient creates a Cloud API client. The access token and phone number
// id are required.
func NewClient(baseURL, accessToken, phoneNumberID string) (*Client, error) {
	var missing []string
	if accessToken == "" {
		missing = append(missing, "access token")
	}
	if phoneNumberID == "" {
		missing = append(missing, "phone number id")
	}
	if len(missing) > 0 {
		return nil, apperr.Config("whatsapp.NewClient", fmt.Errorf("missing %s", strings.Join(missing, " and ")))
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		AccessToken:   accessToken,
		PhoneNumberID: phoneNumberID,
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
		MaxMediaBytes: DefaultMaxMediaBytes,
	}, nil
}

// SendText sends a plain text message and returns the provider message id.
func (c *Client) SendText(ctx context.Context, to, text string) (string, error) {
	return c.send(ctx, &SendRequest{
		To:   to,
		Type: "text",
		Text: &TextContent{Body: text},
	})
}

// SendAttachment sends media by public URL. The message type follows the
// MIME major type; anything that is not image, video or audio goes out as a
// document.
func (c *Client) SendAttachment(ctx context.Context, to, url, mimeType, caption, filename string) (string, error) {
	req := &SendRequest{To: to}
	link := &MediaLink{Link: url, Caption: caption}

	switch {
	case strings.HasPrefix(mimeType, "image/"):
		req.Type, req.Image = "image", link
	case strings.HasPrefix(mimeType, "video/"):
		req.Type, req.Video = "video", link
	case strings.HasPrefix(mimeType, "audio/"):
		// Audio messages do not carry captions.
		link.Caption = ""
		req.Type, req.Audio = "audio", link
	default:
		link.Filename = filename
		req.Type, req.Document = "document", link
	}
	return c.send(ctx, req)
}

// SendTemplate sends a pre-approved template by name.
func (c *Client) SendTemplate(ctx context.Context, to, name, language string) (string, error) {
	return c.send(ctx, &SendRequest{
		To:   to,
		Type: "template",
		Template: &Template{
			Name:     name,
			Language: TemplateLanguage{Code: language},
		},
	})
}

// SendInteractiveButtons sends body text with up to three quick-reply buttons.
func (c *Client) SendInteractiveButtons(ctx context.Context, to, body string, buttons []model.ReplyButton) (string, error) {
	if len(buttons) == 0 || len(buttons) > model.MaxWelcomeButtons {
		return "", apperr.Send("whatsapp.SendInteractiveButtons",
			fmt.Errorf("need 1 to %d buttons, got %d", model.MaxWelcomeButtons, len(buttons)))
	}

	out := make([]InteractiveButton, len(buttons))
	for i, b := range buttons {
		id := b.ID
		if id == "" {
			id = fmt.Sprintf("btn_%d", i+1)
		}
		out[i] = InteractiveButton{Type: "reply", Reply: ButtonReply{ID: id, Title: b.Title}}
	}

	return c.send(ctx, &SendRequest{
		To:   to,
		Type: "interactive",
		Interactive: &InteractiveMessage{
			Type:   "button",
			Body:   InteractiveBody{Text: body},
			Action: InteractiveAction{Buttons: out},
		},
	})
}

func (c *Client) send(ctx context.Context, req *SendRequest) (string, error) {
	req.MessagingProduct = "whatsapp"
	req.RecipientType = "individual"

	id, err := c.doSend(ctx, req)
	metrics.RecordSend(req.Type, err)
	if err != nil {
		return "", apperr.Send("whatsapp.send", err)
	}
	return id, nil
}

func (c *Client) doSend(ctx context.Context, req *SendRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.BaseURL, c.PhoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", apiError(resp.StatusCode, respBody)
	}

	var result SendResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(result.Messages) == 0 || result.Messages[0].ID == "" {
		return "", errors.New("response carries no message id")
	}
	return result.Messages[0].ID, nil
}

// GetMedia resolves a media handle to a short-lived download URL.
func (c *Client) GetMedia(ctx context.Context, mediaID string) (*MediaResponse, error) {
	url := fmt.Sprintf("%s/%s", c.BaseURL, mediaID)
	body, err := c.get(ctx, url, 1<<20)
	if err != nil {
		return nil, apperr.MediaFetch("whatsapp.GetMedia", err)
	}

	var media MediaResponse
	if err := json.Unmarshal(body, &media); err != nil {
		return nil, apperr.MediaFetch("whatsapp.GetMedia", fmt.Errorf("unmarshal response: %w", err))
	}
	if media.URL == "" {
		return nil, apperr.MediaFetch("whatsapp.GetMedia", fmt.Errorf("no url returned for media %s", mediaID))
	}
	return &media, nil
}

// Download retrieves media bytes from a URL returned by GetMedia.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, apperr.MediaFetch("whatsapp.Download", errors.New("empty url"))
	}
	limit := c.MaxMediaBytes
	if limit <= 0 {
		limit = DefaultMaxMediaBytes
	}
	body, err := c.get(ctx, url, limit)
	if err != nil {
		return nil, apperr.MediaFetch("whatsapp.Download", err)
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, body)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("response exceeds %d bytes", limit)
	}
	return body, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
}

func apiError(status int, body []byte) error {
	var e APIError
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return fmt.Errorf("whatsapp API error (status %d, code %d): %s", status, e.Error.Code, e.Error.Message)
	}
	return fmt.Errorf("whatsapp API error (status %d): %s", status, strings.TrimSpace(string(body)))
}
