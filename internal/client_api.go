package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

var httpTimeout = 5 * time.Second

type eventListPayload struct {
	Events []Event `json:"events"`
}

type historyPayload struct {
	Messages []ChatMessage `json:"messages"`
}

func apiSignup(baseURL, username, email, password string) error {
	payload := map[string]string{"username": username, "email": email, "password": password}
	return doJSONRequest(http.MethodPost, baseURL+"/signup", "", payload, nil)
}

func apiLogin(baseURL, username, password string) (*loginResponse, error) {
	payload := map[string]string{"username": username, "password": password}
	var resp loginResponse
	if err := doJSONRequest(http.MethodPost, baseURL+"/login", "", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func apiLogout(baseURL, token string) error {
	return doJSONRequest(http.MethodPost, baseURL+"/logout", token, nil, nil)
}

func apiListEvents(baseURL string) ([]Event, error) {
	var resp eventListPayload
	if err := doJSONRequest(http.MethodGet, baseURL+"/events", "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func apiEventDetail(baseURL, eventID string) (*Event, error) {
	var event Event
	path := baseURL + "/events/" + url.PathEscape(eventID)
	if err := doJSONRequest(http.MethodGet, path, "", nil, &event); err != nil {
		return nil, err
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, fmt.Errorf("%w: event detail missing id", ErrMalformedPayload)
	}
	return &event, nil
}

// apiEventHistory fetches the historical batch, validating every record at the
// boundary so a malformed server payload fails fast instead of rendering
// half-empty messages. Server order is preserved.
func apiEventHistory(baseURL, eventID string) ([]ChatMessage, error) {
	var resp historyPayload
	path := baseURL + "/events/" + url.PathEscape(eventID) + "/messages"
	if err := doJSONRequest(http.MethodGet, path, "", nil, &resp); err != nil {
		return nil, err
	}
	for _, message := range resp.Messages {
		if err := message.validate(); err != nil {
			return nil, fmt.Errorf("history for event %s: %w", eventID, err)
		}
	}
	return resp.Messages, nil
}

// fetchEventBundle runs the two bootstrap fetches concurrently; the first
// failure wins and suppresses the chat view entirely.
func fetchEventBundle(baseURL, eventID string) (*Event, []ChatMessage, error) {
	var (
		group   errgroup.Group
		event   *Event
		history []ChatMessage
	)
	group.Go(func() error {
		detail, err := apiEventDetail(baseURL, eventID)
		if err != nil {
			return fmt.Errorf("event detail: %w", err)
		}
		event = detail
		return nil
	})
	group.Go(func() error {
		messages, err := apiEventHistory(baseURL, eventID)
		if err != nil {
			return fmt.Errorf("message history: %w", err)
		}
		history = messages
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, nil, err
	}
	return event, history, nil
}

func doJSONRequest(method, endpoint, token string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(buf)
	}
	req, err := http.NewRequest(method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: httpTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return errUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, readResponseError(resp.Body))
	}
	if out != nil && resp.ContentLength != 0 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return err
		}
	} else if out != nil && resp.ContentLength == 0 {
		// Try to decode in case the server sent a chunked body without a length header.
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func readResponseError(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return "request failed"
	}
	var parsed map[string]string
	if err := json.Unmarshal(data, &parsed); err == nil {
		if msg, ok := parsed["error"]; ok {
			return msg
		}
	}
	return strings.TrimSpace(string(data))
}

// httpBaseFromWSURL converts the ws(s) channel URL into the REST base URL.
func httpBaseFromWSURL(wsURL string) (string, error) {
	parsed, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "ws":
		parsed.Scheme = "http"
	case "wss":
		parsed.Scheme = "https"
	default:
		return "", fmt.Errorf("unsupported scheme %s", parsed.Scheme)
	}
	parsed.Path = ""
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return strings.TrimRight(parsed.String(), "/"), nil
}
