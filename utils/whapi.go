package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"wacast/config"
)

// SendError is a classified gateway failure. StatusCode is the provider's
// HTTP status when one was received, 0 for transport-level failures.
type SendError struct {
	StatusCode int
	Message    string
}

func (e *SendError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("whapi: %d %s", e.StatusCode, e.Message)
	}
	return "whapi: " + e.Message
}

// WhapiClient sends text messages through the Whapi.cloud gateway
type WhapiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewWhapiClient(cfg config.WhapiConfig) *WhapiClient {
	timeout := cfg.TimeoutSec
	if timeout <= 0 {
		timeout = 30
	}
	return &WhapiClient{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
	}
}

// IsConfigured reports whether gateway credentials are present. The dispatch
// loop and the bot refuse to attempt sends without them.
func (w *WhapiClient) IsConfigured() bool {
	return w.token != "" && w.baseURL != ""
}

type whapiTextRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type whapiTextResponse struct {
	Sent    bool `json:"sent"`
	Message struct {
		ID string `json:"id"`
	} `json:"message"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// SendText sends a single text message and returns the provider message id
func (w *WhapiClient) SendText(to, body string) (string, error) {
	if !w.IsConfigured() {
		return "", &SendError{Message: "gateway not configured"}
	}

	payload, err := json.Marshal(whapiTextRequest{To: to, Body: body})
	if err != nil {
		return "", &SendError{Message: "marshal request: " + err.Error()}
	}

	req, err := http.NewRequest(http.MethodPost, w.baseURL+"/messages/text", bytes.NewReader(payload))
	if err != nil {
		return "", &SendError{Message: "build request: " + err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.token)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", &SendError{Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var parsed whapiTextResponse
	_ = json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := parsed.Error.Message
		if msg == "" {
			msg = string(raw)
		}
		return "", &SendError{StatusCode: resp.StatusCode, Message: msg}
	}

	if parsed.Message.ID == "" {
		return "", &SendError{StatusCode: resp.StatusCode, Message: "gateway accepted send but returned no message id"}
	}

	return parsed.Message.ID, nil
}
