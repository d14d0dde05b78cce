package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "whale_watcher/pkg/errors"
)

func TestTelegramSink_PostsChatIDAndText(t *testing.T) {
	var gotPath string
	var gotBody sendMessageRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	sink := NewTelegramSink("test-token", server.URL, &MockLogger{})
	assert.Equal(t, "telegram", sink.Name())

	err := sink.Send(context.Background(), "42", "whale spotted")
	assert.NoError(t, err)
	assert.Equal(t, "/bottest-token/sendMessage", gotPath)
	assert.Equal(t, "42", gotBody.ChatID)
	assert.Equal(t, "whale spotted", gotBody.Text)
}

func TestTelegramSink_APIRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer server.Close()

	sink := NewTelegramSink("test-token", server.URL, &MockLogger{})
	err := sink.Send(context.Background(), "42", "whale spotted")
	assert.ErrorIs(t, err, apperrors.ErrSink)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramSink_MissingToken(t *testing.T) {
	sink := NewTelegramSink("", "http://localhost:1", &MockLogger{})
	err := sink.Send(context.Background(), "42", "whale spotted")
	assert.ErrorIs(t, err, apperrors.ErrSink)
}

func TestTelegramSink_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sink := NewTelegramSink("test-token", server.URL, &MockLogger{})
	err := sink.Send(context.Background(), "42", "whale spotted")
	assert.ErrorIs(t, err, apperrors.ErrSink)
}
