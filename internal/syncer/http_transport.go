package syncer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nikbrunner/bmsync/internal/storage"
)

// Metadata keys holding sync credentials.
const (
	KeySyncToken        = "syncToken"
	KeySyncRecoveryCode = "syncRecoveryCode"
	KeySyncDeviceID     = "syncDeviceID"
)

// HTTPTransport implements Transport against the sync service's JSON API.
type HTTPTransport struct {
	baseURL     string
	httpClient  *http.Client
	meta        storage.Metadata
	persistence Persistence
	maxRetries  int
	baseDelay   time.Duration
	maxDelay    time.Duration

	mu    sync.RWMutex
	token string
}

// NewHTTPTransport creates an HTTPTransport. Credentials saved in meta by a
// previous run are picked up.
func NewHTTPTransport(baseURL string, meta storage.Metadata, persistence Persistence, httpClient *http.Client) (*HTTPTransport, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	token, err := meta.Get(KeySyncToken)
	if err != nil {
		return nil, fmt.Errorf("read sync token: %w", err)
	}
	return &HTTPTransport{
		baseURL:     baseURL,
		httpClient:  httpClient,
		meta:        meta,
		persistence: persistence,
		maxRetries:  3,
		baseDelay:   100 * time.Millisecond,
		maxDelay:    2 * time.Second,
		token:       token,
	}, nil
}

// SetRetryDelays overrides the backoff bounds.
func (t *HTTPTransport) SetRetryDelays(base, limit time.Duration) {
	t.baseDelay = base
	t.maxDelay = limit
}

type accountRequest struct {
	DeviceName   string `json:"deviceName"`
	RecoveryCode string `json:"recoveryCode,omitempty"`
}

type accountResponse struct {
	Token        string `json:"token"`
	DeviceID     string `json:"deviceId"`
	RecoveryCode string `json:"recoveryCode,omitempty"`
}

type fetchResponse struct {
	Events       []SyncEvent `json:"events"`
	LastModified string      `json:"lastModified"`
}

type sendRequest struct {
	Events []SyncEvent `json:"events"`
}

// IsAuthenticated reports whether a session token is present.
func (t *HTTPTransport) IsAuthenticated() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token != ""
}

// RecoveryCode returns the account recovery code, nil when unknown.
func (t *HTTPTransport) RecoveryCode() []byte {
	raw, err := t.meta.Get(KeySyncRecoveryCode)
	if err != nil || raw == "" {
		return nil
	}
	code, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil
	}
	return code
}

// CreateAccount registers a new account with this device.
func (t *HTTPTransport) CreateAccount(ctx context.Context, deviceName string) error {
	var resp accountResponse
	if err := t.doJSON(ctx, http.MethodPost, "/v1/accounts", "", accountRequest{DeviceName: deviceName}, &resp); err != nil {
		return &TransportError{Op: "create account", Err: err}
	}
	return t.storeCredentials(resp)
}

// Login attaches this device to the account identified by recoveryCode.
func (t *HTTPTransport) Login(ctx context.Context, recoveryCode []byte, deviceName string) error {
	code := base64.StdEncoding.EncodeToString(recoveryCode)
	var resp accountResponse
	if err := t.doJSON(ctx, http.MethodPost, "/v1/login", "", accountRequest{DeviceName: deviceName, RecoveryCode: code}, &resp); err != nil {
		return &TransportError{Op: "login", Err: err}
	}
	if resp.RecoveryCode == "" {
		resp.RecoveryCode = code
	}
	return t.storeCredentials(resp)
}

func (t *HTTPTransport) storeCredentials(resp accountResponse) error {
	if resp.Token == "" {
		return &TransportError{Op: "authenticate", Err: fmt.Errorf("service returned no token")}
	}
	for key, value := range map[string]string{
		KeySyncToken:        resp.Token,
		KeySyncDeviceID:     resp.DeviceID,
		KeySyncRecoveryCode: resp.RecoveryCode,
	} {
		if value == "" {
			continue
		}
		if err := t.meta.Set(key, value); err != nil {
			return fmt.Errorf("store sync credentials: %w", err)
		}
	}
	t.mu.Lock()
	t.token = resp.Token
	t.mu.Unlock()
	return nil
}

// Disconnect forgets the session token and cursor. The recovery code is
// kept so the device can sign in again.
func (t *HTTPTransport) Disconnect() error {
	t.mu.Lock()
	t.token = ""
	t.mu.Unlock()
	for _, key := range []string{KeySyncToken, KeySyncDeviceID} {
		if err := t.meta.Delete(key); err != nil {
			return fmt.Errorf("clear sync credentials: %w", err)
		}
	}
	if t.persistence != nil {
		return t.persistence.UpdateLastModified("")
	}
	return nil
}

// FetchLatest downloads events since the stored cursor and hands them to
// the persistence layer. The cursor only advances after they are applied.
func (t *HTTPTransport) FetchLatest(ctx context.Context) error {
	token, err := t.currentToken()
	if err != nil {
		return err
	}
	since := ""
	if t.persistence != nil {
		if since, err = t.persistence.LastModified(); err != nil {
			return fmt.Errorf("read sync cursor: %w", err)
		}
	}
	path := "/v1/bookmarks"
	if since != "" {
		path += "?" + url.Values{"since": {since}}.Encode()
	}

	var resp fetchResponse
	if err := t.doJSON(ctx, http.MethodGet, path, token, nil, &resp); err != nil {
		return &TransportError{Op: "fetch", Err: err}
	}
	if t.persistence == nil {
		return nil
	}
	if len(resp.Events) > 0 {
		if err := t.persistence.PersistEvents(ctx, resp.Events); err != nil {
			return fmt.Errorf("persist events: %w", err)
		}
	}
	if resp.LastModified != "" && resp.LastModified != since {
		if err := t.persistence.UpdateLastModified(resp.LastModified); err != nil {
			return fmt.Errorf("store sync cursor: %w", err)
		}
	}
	return nil
}

// Send uploads a single event.
func (t *HTTPTransport) Send(ctx context.Context, ev SyncEvent) error {
	token, err := t.currentToken()
	if err != nil {
		return err
	}
	if err := t.doJSON(ctx, http.MethodPatch, "/v1/bookmarks", token, sendRequest{Events: []SyncEvent{ev}}, nil); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

func (t *HTTPTransport) currentToken() (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.token == "" {
		return "", ErrNotAuthenticated
	}
	return t.token, nil
}

func (t *HTTPTransport) doJSON(ctx context.Context, method, requestPath, token string, body, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, t.baseURL+requestPath, bodyReader)
		if err != nil {
			return err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := t.httpClient.Do(req)
		if err != nil {
			if attempt < t.maxRetries && ctx.Err() == nil {
				if waitErr := waitWithContext(ctx, t.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payload) == 0 {
				return nil
			}
			return json.Unmarshal(payload, out)
		}

		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < t.maxRetries {
			if waitErr := waitWithContext(ctx, t.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		var errPayload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(payload, &errPayload)
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Code:       errPayload.Code,
			Message:    errPayload.Message,
		}
	}
}

func (t *HTTPTransport) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	maxDelay := t.maxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	if retryAfter := parseRetryAfter(retryAfterHeader); retryAfter > 0 {
		return min(retryAfter, maxDelay)
	}
	delay := t.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return min(delay, maxDelay)
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := time.Parse(time.RFC1123, header); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
