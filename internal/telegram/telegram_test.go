package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k0luchiy/LumeNote/internal/notify"
)

// fakeAPI mimics the Bot API envelope for the methods the client uses.
func fakeAPI(t *testing.T, handler func(method string, r *http.Request) (any, bool)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
		method := parts[len(parts)-1]

		result, ok := handler(method, r)
		if !ok {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "bad request"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
	}))
}

func TestSendText(t *testing.T) {
	var gotChatID float64
	var gotText string
	srv := fakeAPI(t, func(method string, r *http.Request) (any, bool) {
		require.Equal(t, "sendMessage", method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotChatID = body["chat_id"].(float64)
		gotText = body["text"].(string)
		return map[string]any{"message_id": 1}, true
	})
	defer srv.Close()

	c, err := NewClient("token", WithBaseURL(srv.URL))
	require.NoError(t, err)

	require.NoError(t, c.SendText(context.Background(), 42, "hello"))
	assert.Equal(t, float64(42), gotChatID)
	assert.Equal(t, "hello", gotText)
}

func TestSendTextAPIError(t *testing.T) {
	srv := fakeAPI(t, func(string, *http.Request) (any, bool) { return nil, false })
	defer srv.Close()

	c, err := NewClient("token", WithBaseURL(srv.URL))
	require.NoError(t, err)

	err = c.SendText(context.Background(), 42, "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad request")
}

func TestSendFileRoutesByKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "digest.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFFwav"), 0o600))

	var gotMethod, gotCaption, gotField string
	srv := fakeAPI(t, func(method string, r *http.Request) (any, bool) {
		gotMethod = method
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotCaption = r.FormValue("caption")
		for field := range r.MultipartForm.File {
			gotField = field
		}
		return map[string]any{"message_id": 2}, true
	})
	defer srv.Close()

	c, err := NewClient("token", WithBaseURL(srv.URL))
	require.NoError(t, err)

	require.NoError(t, c.SendFile(context.Background(), 42, notify.FileAudio, path, "your digest"))
	assert.Equal(t, "sendAudio", gotMethod)
	assert.Equal(t, "audio", gotField)
	assert.Equal(t, "your digest", gotCaption)

	require.NoError(t, c.SendFile(context.Background(), 42, notify.FilePhoto, path, ""))
	assert.Equal(t, "sendPhoto", gotMethod)
	assert.Equal(t, "photo", gotField)

	err = c.SendFile(context.Background(), 42, notify.FileKind("sticker"), path, "")
	assert.Error(t, err)
}

func TestGetUpdates(t *testing.T) {
	srv := fakeAPI(t, func(method string, r *http.Request) (any, bool) {
		require.Equal(t, "getUpdates", method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(7), body["offset"])
		return []map[string]any{
			{"update_id": 7, "message": map[string]any{
				"message_id": 1,
				"from":       map[string]any{"id": 9},
				"chat":       map[string]any{"id": 10},
				"text":       "/start",
			}},
		}, true
	})
	defer srv.Close()

	c, err := NewClient("token", WithBaseURL(srv.URL))
	require.NoError(t, err)

	updates, err := c.GetUpdates(context.Background(), 7, time.Second)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, int64(7), updates[0].UpdateID)
	require.NotNil(t, updates[0].Message)
	assert.Equal(t, "/start", updates[0].Message.Text)
	assert.Equal(t, int64(9), updates[0].Message.From.ID)
}

func TestDownloadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getFile"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok":     true,
				"result": map[string]any{"file_path": "documents/file_0.txt"},
			})
		case strings.Contains(r.URL.Path, "/file/bot"):
			_, _ = io.WriteString(w, "file contents")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := NewClient("token", WithBaseURL(srv.URL))
	require.NoError(t, err)

	dir := t.TempDir()
	path, err := c.DownloadFile(context.Background(), "file-id", dir, "../escape.txt")
	require.NoError(t, err)

	// Upload names cannot escape the staging directory.
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, "_escape.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "file contents", string(data))
}

// TestDownloadFileUniqueStaging covers the staging directory being shared by
// every user: two downloads declaring the same file name must land at
// distinct paths so neither overwrites (or later deletes) the other.
func TestDownloadFileUniqueStaging(t *testing.T) {
	var serve string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getFile"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok":     true,
				"result": map[string]any{"file_path": "documents/file_0.txt"},
			})
		case strings.Contains(r.URL.Path, "/file/bot"):
			_, _ = io.WriteString(w, serve)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := NewClient("token", WithBaseURL(srv.URL))
	require.NoError(t, err)

	dir := t.TempDir()

	serve = "first user's notes"
	first, err := c.DownloadFile(context.Background(), "file-a", dir, "notes.pdf")
	require.NoError(t, err)

	serve = "second user's notes"
	second, err := c.DownloadFile(context.Background(), "file-b", dir, "notes.pdf")
	require.NoError(t, err)

	require.NotEqual(t, first, second)

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "first user's notes", string(data))

	data, err = os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, "second user's notes", string(data))
}

func TestNewClientRequiresToken(t *testing.T) {
	_, err := NewClient("")
	assert.Error(t, err)
}
