// Package telegram is a thin Telegram Bot API client.
//
// It covers exactly the surface the bot and the worker need: long polling for
// updates, sending text and files, and downloading user uploads. Formatting,
// keyboards and the rest of the Bot API stay out of scope.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/k0luchiy/LumeNote/internal/notify"
)

// Update is one incoming event from the Bot API.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message is an incoming chat message.
type Message struct {
	MessageID int64     `json:"message_id"`
	From      *User     `json:"from"`
	Chat      Chat      `json:"chat"`
	Text      string    `json:"text"`
	Document  *Document `json:"document"`
}

// User is the message author.
type User struct {
	ID int64 `json:"id"`
}

// Chat is the conversation the message belongs to.
type Chat struct {
	ID int64 `json:"id"`
}

// Document is an attached file.
type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
}

// apiResponse is the Bot API envelope around every result.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Client talks to the Telegram Bot API.
type Client struct {
	token   string
	baseURL string
	client  *http.Client
}

var _ notify.Sender = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the API host, used in tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// NewClient creates a Bot API client.
func NewClient(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	c := &Client{
		token:   token,
		baseURL: "https://api.telegram.org",
		client:  &http.Client{Timeout: 90 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) methodURL(method string) string {
	return c.baseURL + "/bot" + c.token + "/" + method
}

// call posts a JSON body to a Bot API method and decodes the result.
func (c *Client) call(ctx context.Context, method string, body any, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("telegram: encoding %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("telegram: building %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s failed: %w", method, err)
	}
	defer resp.Body.Close()

	return decodeResponse(method, resp, result)
}

func decodeResponse(method string, resp *http.Response, result any) error {
	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return fmt.Errorf("telegram: decoding %s response: %w", method, err)
	}
	if !api.OK {
		return fmt.Errorf("telegram: %s rejected: %s", method, api.Description)
	}
	if result != nil {
		if err := json.Unmarshal(api.Result, result); err != nil {
			return fmt.Errorf("telegram: decoding %s result: %w", method, err)
		}
	}
	return nil
}

// GetUpdates long-polls for new updates past offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         int(timeout.Seconds()),
		"allowed_updates": []string{"message"},
	}, &updates)
	if err != nil {
		return nil, err
	}
	return updates, nil
}

// SendText implements notify.Sender.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	return c.call(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	}, nil)
}

// fileMethods maps a file kind to its Bot API method and form field.
var fileMethods = map[notify.FileKind]struct{ method, field string }{
	notify.FileDocument: {"sendDocument", "document"},
	notify.FileAudio:    {"sendAudio", "audio"},
	notify.FilePhoto:    {"sendPhoto", "photo"},
}

// SendFile implements notify.Sender by uploading the file as multipart form
// data to the method matching its kind.
func (c *Client) SendFile(ctx context.Context, chatID int64, kind notify.FileKind, path, caption string) error {
	m, ok := fileMethods[kind]
	if !ok {
		return fmt.Errorf("telegram: unknown file kind %q", kind)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("telegram: opening %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return fmt.Errorf("telegram: writing form: %w", err)
	}
	if caption != "" {
		if err := w.WriteField("caption", caption); err != nil {
			return fmt.Errorf("telegram: writing form: %w", err)
		}
	}

	part, err := w.CreateFormFile(m.field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("telegram: writing form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("telegram: writing form: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("telegram: writing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(m.method), &buf)
	if err != nil {
		return fmt.Errorf("telegram: building %s request: %w", m.method, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s failed: %w", m.method, err)
	}
	defer resp.Body.Close()

	return decodeResponse(m.method, resp, nil)
}

// DownloadFile fetches an uploaded file by its file_id into dir and returns
// the local path. The caller owns the file afterwards.
func (c *Client) DownloadFile(ctx context.Context, fileID, dir, fileName string) (string, error) {
	var meta struct {
		FilePath string `json:"file_path"`
	}
	if err := c.call(ctx, "getFile", map[string]any{"file_id": fileID}, &meta); err != nil {
		return "", err
	}
	if meta.FilePath == "" {
		return "", fmt.Errorf("telegram: getFile returned no file path for %s", fileID)
	}

	fileURL := c.baseURL + "/file/bot" + c.token + "/" + meta.FilePath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", fmt.Errorf("telegram: building download request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("telegram: download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("telegram: download status %d for %s", resp.StatusCode, fileID)
	}

	if fileName == "" {
		fileName = meta.FilePath
	}
	// User-supplied names must not escape dir, and dir is shared by all
	// users: a unique prefix keeps concurrent uploads with the same declared
	// name from clobbering each other.
	dest := filepath.Join(dir, uuid.New().String()+"_"+filepath.Base(fileName))

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("telegram: creating %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = os.Remove(dest)
		return "", fmt.Errorf("telegram: writing %s: %w", dest, err)
	}
	return dest, nil
}
