package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"camlapse/internal/lapse"
)

// DefaultTelegramAPIURL is the public Bot API endpoint.
const DefaultTelegramAPIURL = "https://api.telegram.org"

// TelegramChannel posts videos to a chat through the Bot API sendDocument method.
type TelegramChannel struct {
	apiURL string
	token  string
	chatID string
	client *http.Client
}

var _ lapse.DeliveryChannel = (*TelegramChannel)(nil)

// NewTelegramChannel returns a channel for the bot token and chat. An empty
// apiURL selects DefaultTelegramAPIURL.
func NewTelegramChannel(apiURL, token, chatID string) (*TelegramChannel, error) {
	if token == "" || chatID == "" {
		return nil, fmt.Errorf("telegram delivery requires a bot token and chat id")
	}
	if apiURL == "" {
		apiURL = DefaultTelegramAPIURL
	}
	return &TelegramChannel{
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 10 * time.Minute},
	}, nil
}

func (c *TelegramChannel) Name() string { return "telegram" }

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Deliver streams the video as the "document" part of a multipart upload.
func (c *TelegramChannel) Deliver(ctx context.Context, videoPath string) error {
	f, err := os.Open(videoPath)
	if err != nil {
		return fmt.Errorf("opening video: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeDocumentForm(mw, c.chatID, filepath.Base(videoPath), f))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("sendDocument"), pr)
	if err != nil {
		pr.Close()
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		// Do reports the bot token as part of the URL.
		return fmt.Errorf("sending document: %s", c.redact(err.Error()))
	}
	defer resp.Body.Close()

	var body telegramResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return fmt.Errorf("decoding response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !body.OK {
		return fmt.Errorf("telegram rejected document (HTTP %d, code %d): %s", resp.StatusCode, body.ErrorCode, body.Description)
	}
	return nil
}

func (c *TelegramChannel) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.apiURL, c.token, method)
}

func (c *TelegramChannel) redact(s string) string {
	return strings.ReplaceAll(s, c.token, "<token>")
}

func writeDocumentForm(mw *multipart.Writer, chatID, name string, r io.Reader) error {
	if err := mw.WriteField("chat_id", chatID); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("document", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}
	return mw.Close()
}
