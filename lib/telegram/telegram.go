// Package telegram is a thin client for the pieces of the Telegram
// Bot API the bot and notifier need: long-polled updates, messages
// with inline keyboards and callback acknowledgement.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"uscbot-backend/lib/telemetry"
)

// ErrForbidden means the recipient blocked the bot or never started a
// chat with it. Callers deciding per-recipient delivery treat this as
// a skip, not a failure.
var ErrForbidden = fmt.Errorf("telegram: forbidden")

func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

type apiError struct {
	Code        int
	Description string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("telegram: api error %d: %s", e.Code, e.Description)
}

type Client struct {
	http *resty.Client
}

func NewClient(token string) *Client {
	client := resty.New()
	client.SetBaseURL("https://api.telegram.org/bot" + token)
	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetTimeout(time.Second * 90)

	telemetry.InstrumentResty(client, "telegram/http")

	return &Client{http: client}
}

// NewClientWithBaseURL exists for tests that point the client at a
// local fake API server.
func NewClientWithBaseURL(baseURL string) *Client {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(time.Second * 10)
	return &Client{http: client}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

func call[T any](ctx context.Context, c *Client, method string, body any) (T, error) {
	var out T

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetBody(body).
		Post("/" + method)
	if err != nil {
		return out, err
	}

	var wrapped apiResponse
	if err := json.Unmarshal(res.Body(), &wrapped); err != nil {
		return out, fmt.Errorf("telegram: parse %s response: %w", method, err)
	}
	if !wrapped.OK {
		if wrapped.ErrorCode == http.StatusForbidden {
			return out, fmt.Errorf("%w: %s", ErrForbidden, wrapped.Description)
		}
		return out, &apiError{Code: wrapped.ErrorCode, Description: wrapped.Description}
	}
	if len(wrapped.Result) > 0 {
		if err := json.Unmarshal(wrapped.Result, &out); err != nil {
			return out, fmt.Errorf("telegram: parse %s result: %w", method, err)
		}
	}
	return out, nil
}

// GetUpdates long-polls for new updates. offset should be one past the
// last update the caller already handled.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	return call[[]Update](ctx, c, "getUpdates", map[string]any{
		"offset":  offset,
		"timeout": int(timeout.Seconds()),
		"allowed_updates": []string{
			"message", "callback_query",
		},
	})
}

type SendMessageParams struct {
	ChatID      int64
	Text        string
	ReplyMarkup *InlineKeyboardMarkup
}

func (c *Client) SendMessage(ctx context.Context, params SendMessageParams) (Message, error) {
	body := map[string]any{
		"chat_id": params.ChatID,
		"text":    params.Text,
	}
	if params.ReplyMarkup != nil {
		body["reply_markup"] = params.ReplyMarkup
	}
	return call[Message](ctx, c, "sendMessage", body)
}

// EditMessageText replaces a sent message's text and drops its inline
// keyboard, used after a yes/no prompt is answered.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	_, err := call[json.RawMessage](ctx, c, "editMessageText", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	})
	return err
}

// AnswerCallbackQuery stops the client side loading spinner on the
// pressed button.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	_, err := call[json.RawMessage](ctx, c, "answerCallbackQuery", map[string]any{
		"callback_query_id": callbackID,
		"text":              text,
	})
	return err
}
