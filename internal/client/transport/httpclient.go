package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/common"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
)

// HTTPClient implements Authority over the JSON API.
type HTTPClient struct {
	baseURL  string
	deviceID string
	http     *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// NewHTTPClient builds a client for the authority at baseURL. timeout bounds
// every request; exceeding it is reported as common.ErrNetwork.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// SetDeviceID binds login and refresh calls to a device, so issued tokens
// carry the device identity alongside the tenant.
func (c *HTTPClient) SetDeviceID(deviceID string) {
	c.deviceID = deviceID
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	DeviceID string `json:"deviceId"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
	TenantID     string `json:"tenantId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *HTTPClient) Login(ctx context.Context, username, password string) (*Session, error) {
	var resp tokenResponse
	status, err := c.postJSON(ctx, "/api/auth/login", loginRequest{Username: username, Password: password, DeviceID: c.deviceID}, &resp, false)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, common.ErrUnauthorized
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("login failed: %w (status %d)", common.ErrNetwork, status)
	}

	c.mu.Lock()
	c.accessToken = resp.AccessToken
	c.refreshToken = resp.RefreshToken
	c.mu.Unlock()

	return &Session{UserID: resp.UserID, TenantID: resp.TenantID}, nil
}

func (c *HTTPClient) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// refresh exchanges the refresh token for a new pair. Mirrors the login
// token handling; on failure the caller's original error stands.
func (c *HTTPClient) refresh(ctx context.Context) error {
	c.mu.Lock()
	rt := c.refreshToken
	c.mu.Unlock()
	if rt == "" {
		return common.ErrUnauthorized
	}

	var resp tokenResponse
	status, err := c.postJSON(ctx, "/api/auth/refresh", map[string]string{"refreshToken": rt, "deviceId": c.deviceID}, &resp, false)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return common.ErrRefreshTokenExpired
	}

	c.mu.Lock()
	c.accessToken = resp.AccessToken
	c.refreshToken = resp.RefreshToken
	c.mu.Unlock()
	return nil
}

// do executes one authenticated request. A 401 whose body names an expired
// token triggers a single refresh-and-replay; any other outcome is returned
// as-is.
func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	send := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		c.mu.Lock()
		token := c.accessToken
		c.mu.Unlock()
		if token != "" {
			req.Header.Set(common.AuthorizationHeader, "Bearer "+token)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrNetwork, err)
		}
		return resp, nil
	}

	resp, err := send()
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		var er errorResponse
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		_ = json.Unmarshal(raw, &er)
		if er.Error != common.ErrTokenExpired.Error() {
			return nil, common.ErrUnauthorized
		}
		if err := c.refresh(ctx); err != nil {
			return nil, err
		}
		return send()
	}

	return resp, nil
}

// postJSON is the unauthenticated-or-simple POST path (login, refresh).
func (c *HTTPClient) postJSON(ctx context.Context, path string, in any, out any, authed bool) (int, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if authed {
		c.mu.Lock()
		token := c.accessToken
		c.mu.Unlock()
		req.Header.Set(common.AuthorizationHeader, "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (c *HTTPClient) Write(ctx context.Context, wr model.WriteRequest) (*model.WriteResult, *model.ConflictResult, error) {
	body, err := json.Marshal(wr)
	if err != nil {
		return nil, nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/entities/write", body)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var res model.WriteResult
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return nil, nil, fmt.Errorf("failed to decode write result: %w", err)
		}
		return &res, nil, nil

	case http.StatusConflict:
		var conflict model.ConflictResult
		if err := json.NewDecoder(resp.Body).Decode(&conflict); err != nil {
			return nil, nil, fmt.Errorf("failed to decode conflict result: %w", err)
		}
		return nil, &conflict, common.ErrVersionConflict

	case http.StatusLocked:
		var denied model.LockDeniedResult
		_ = json.NewDecoder(resp.Body).Decode(&denied)
		return nil, nil, fmt.Errorf("%w: held by %s", common.ErrLockDenied, denied.Holder)

	case http.StatusBadRequest:
		return nil, nil, common.ErrMalformedPayload

	default:
		return nil, nil, fmt.Errorf("%w: write returned status %d", common.ErrNetwork, resp.StatusCode)
	}
}

func (c *HTTPClient) ListChangedSince(ctx context.Context, since int64, limit int) (*model.ChangePage, error) {
	q := url.Values{}
	q.Set("since", strconv.FormatInt(since, 10))
	q.Set("limit", strconv.Itoa(limit))

	resp, err := c.do(ctx, http.MethodGet, "/api/changes?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: changes returned status %d", common.ErrNetwork, resp.StatusCode)
	}

	var page model.ChangePage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode change page: %w", err)
	}
	return &page, nil
}

func (c *HTTPClient) AcquireLock(ctx context.Context, entityType, entityID, holder string, ttl time.Duration) error {
	body, err := json.Marshal(model.LockRequest{
		EntityType: entityType,
		EntityID:   entityID,
		Holder:     holder,
		TTLSeconds: int(ttl.Seconds()),
	})
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/locks/acquire", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusLocked:
		var denied model.LockDeniedResult
		_ = json.NewDecoder(resp.Body).Decode(&denied)
		return fmt.Errorf("%w: held by %s", common.ErrLockDenied, denied.Holder)
	default:
		return fmt.Errorf("%w: lock acquire returned status %d", common.ErrNetwork, resp.StatusCode)
	}
}

func (c *HTTPClient) ReleaseLock(ctx context.Context, entityType, entityID, holder string) error {
	body, err := json.Marshal(model.LockRequest{EntityType: entityType, EntityID: entityID, Holder: holder})
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/locks/release", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Release is best-effort: an expired or missing lease is not an error.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("%w: lock release returned status %d", common.ErrNetwork, resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/api/health", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health returned status %d", common.ErrNetwork, resp.StatusCode)
	}
	return nil
}
