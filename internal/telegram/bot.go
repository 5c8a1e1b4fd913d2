package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const botAPIBase = "https://api.telegram.org"

// Bot is the Provider implementation over the Telegram Bot HTTP API.
type Bot struct {
	token  string
	base   string
	client *http.Client
}

// NewBot returns a provider for the given bot token.
func NewBot(token string) *Bot {
	return &Bot{
		token:  token,
		base:   botAPIBase,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// apiResponse is the Bot API envelope. Parameters carries the retry hint on
// 429 responses.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
	Result      json.RawMessage `json:"result"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

type message struct {
	MessageID int64 `json:"message_id"`
}

func (b *Bot) SendText(ctx context.Context, chatID, text string) (int64, error) {
	res, err := b.call(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return 0, err
	}
	return messageID(res)
}

func (b *Bot) EditText(ctx context.Context, chatID string, messageID int64, text string) error {
	_, err := b.call(ctx, "editMessageText", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	})
	return err
}

func (b *Bot) SendPhoto(ctx context.Context, chatID string, photo []byte, caption string) (int64, error) {
	res, err := b.upload(ctx, "sendPhoto", map[string]string{
		"chat_id": chatID,
		"caption": caption,
	}, "photo", photo)
	if err != nil {
		return 0, err
	}
	return messageID(res)
}

func (b *Bot) EditPhoto(ctx context.Context, chatID string, messageID int64, photo []byte, caption string) error {
	media, err := json.Marshal(map[string]any{
		"type":    "photo",
		"media":   "attach://photo",
		"caption": caption,
	})
	if err != nil {
		return err
	}
	_, err = b.upload(ctx, "editMessageMedia", map[string]string{
		"chat_id":    chatID,
		"message_id": fmt.Sprintf("%d", messageID),
		"media":      string(media),
	}, "photo", photo)
	return err
}

// call posts a JSON-bodied method.
func (b *Bot) call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url(method), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return b.do(req, method)
}

// upload posts a multipart method with one file part.
func (b *Bot) upload(ctx context.Context, method string, fields map[string]string, fileField string, file []byte) (json.RawMessage, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, err
		}
	}
	part, err := w.CreateFormFile(fileField, "image.webp")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(file); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url(method), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return b.do(req, method)
}

func (b *Bot) do(req *http.Request, method string) (json.RawMessage, error) {
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("telegram %s: read response: %w", method, err)
	}
	var api apiResponse
	if err := json.Unmarshal(body, &api); err != nil {
		return nil, fmt.Errorf("telegram %s: status %d: %w", method, resp.StatusCode, err)
	}
	if api.OK {
		return api.Result, nil
	}
	return nil, classify(&api, method)
}

// classify maps Bot API failures onto the worker's error taxonomy.
func classify(api *apiResponse, method string) error {
	if api.ErrorCode == http.StatusTooManyRequests {
		retryAfter := 5 * time.Second
		if api.Parameters != nil && api.Parameters.RetryAfter > 0 {
			retryAfter = time.Duration(api.Parameters.RetryAfter) * time.Second
		}
		return &RateLimitedError{RetryAfter: retryAfter}
	}
	desc := strings.ToLower(api.Description)
	switch {
	case strings.Contains(desc, "message is not modified"):
		return ErrNotModified
	case strings.Contains(desc, "message to edit not found"),
		strings.Contains(desc, "message can't be edited"):
		return ErrMessageGone
	}
	return fmt.Errorf("telegram %s: %s (code %d)", method, api.Description, api.ErrorCode)
}

func (b *Bot) url(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", b.base, b.token, method)
}

func messageID(res json.RawMessage) (int64, error) {
	var msg message
	if err := json.Unmarshal(res, &msg); err != nil {
		return 0, fmt.Errorf("decode message: %w", err)
	}
	return msg.MessageID, nil
}
