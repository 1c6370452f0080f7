package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fakeAPI(t *testing.T, handler func(method string, body map[string]any) (int, string)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body map[string]any
		if len(raw) > 0 {
			require.NoError(t, json.Unmarshal(raw, &body))
		}

		status, response := handler(r.URL.Path, body)
		w.Header().Set("content-type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, response)
	}))
}

func TestSendMessage(t *testing.T) {
	server := fakeAPI(t, func(method string, body map[string]any) (int, string) {
		require.Equal(t, "/sendMessage", method)
		require.Equal(t, float64(42), body["chat_id"])
		require.Equal(t, "hoi", body["text"])
		require.Contains(t, body, "reply_markup")
		return 200, `{"ok":true,"result":{"message_id":7,"chat":{"id":42},"text":"hoi"}}`
	})
	defer server.Close()

	client := NewClientWithBaseURL(server.URL)
	msg, err := client.SendMessage(context.Background(), SendMessageParams{
		ChatID:      42,
		Text:        "hoi",
		ReplyMarkup: YesNoKeyboard("abc,Y", "abc,N"),
	})
	require.NoError(t, err)
	require.Equal(t, int64(7), msg.MessageID)
	require.Equal(t, int64(42), msg.Chat.ID)
}

func TestSendMessageForbidden(t *testing.T) {
	server := fakeAPI(t, func(method string, body map[string]any) (int, string) {
		return 403, `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`
	})
	defer server.Close()

	client := NewClientWithBaseURL(server.URL)
	_, err := client.SendMessage(context.Background(), SendMessageParams{ChatID: 42, Text: "hoi"})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestSendMessageAPIError(t *testing.T) {
	server := fakeAPI(t, func(method string, body map[string]any) (int, string) {
		return 400, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`
	})
	defer server.Close()

	client := NewClientWithBaseURL(server.URL)
	_, err := client.SendMessage(context.Background(), SendMessageParams{ChatID: 42, Text: "hoi"})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrForbidden)
	require.Contains(t, err.Error(), "chat not found")
}

func TestGetUpdates(t *testing.T) {
	server := fakeAPI(t, func(method string, body map[string]any) (int, string) {
		require.Equal(t, "/getUpdates", method)
		require.Equal(t, float64(13), body["offset"])
		return 200, `{"ok":true,"result":[
			{"update_id":13,"message":{"message_id":1,"chat":{"id":42},"from":{"id":9,"first_name":"Sam"},"text":"/start"}},
			{"update_id":14,"callback_query":{"id":"cb1","from":{"id":9,"first_name":"Sam"},"data":"abc,Y","message":{"message_id":2,"chat":{"id":42}}}}
		]}`
	})
	defer server.Close()

	client := NewClientWithBaseURL(server.URL)
	updates, err := client.GetUpdates(context.Background(), 13, time.Second)
	require.NoError(t, err)
	require.Len(t, updates, 2)

	require.NotNil(t, updates[0].Message)
	require.Equal(t, "/start", updates[0].Message.Text)
	require.Nil(t, updates[0].CallbackQuery)

	require.NotNil(t, updates[1].CallbackQuery)
	require.Equal(t, "abc,Y", updates[1].CallbackQuery.Data)
	require.Equal(t, int64(42), updates[1].CallbackQuery.Message.Chat.ID)
}

func TestEditAndAnswer(t *testing.T) {
	var methods []string
	server := fakeAPI(t, func(method string, body map[string]any) (int, string) {
		methods = append(methods, method)
		return 200, `{"ok":true,"result":true}`
	})
	defer server.Close()

	client := NewClientWithBaseURL(server.URL)
	require.NoError(t, client.EditMessageText(context.Background(), 42, 7, "done"))
	require.NoError(t, client.AnswerCallbackQuery(context.Background(), "cb1", "booked!"))
	require.Equal(t, []string{"/editMessageText", "/answerCallbackQuery"}, methods)
}
