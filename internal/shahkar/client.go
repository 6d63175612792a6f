package shahkar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"userapi/internal/identity"
	"userapi/internal/platform/cache"
	"userapi/internal/platform/config"
	"userapi/pkg/sentinel"
)

const (
	accessTokenKey  = "shahkar_access_token"
	refreshTokenKey = "shahkar_refresh_token"

	matchingPath = "/api/client/apim/v1/shahkar/gwsh/serviceIDmatching"
	tokenPath    = "/oauth/token"
)

// Client calls the national mobile-ownership matching service. OAuth tokens
// are cached in Redis so every process shares one token across restarts.
//
// Match never returns an error: upstream failures are recorded in the result
// and surface to the caller as an unverified match.
type Client struct {
	cfg        config.ShahkarConfig
	cache      cache.Cache
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

func NewClient(cfg config.ShahkarConfig, c cache.Cache, logger *slog.Logger) *Client {
	return &Client{
		cfg:        cfg,
		cache:      c,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     logger,
		now:        time.Now,
	}
}

// response is the persisted upstream exchange: the body as returned plus the
// HTTP status it arrived with.
type response struct {
	Data       json.RawMessage `json:"data"`
	StatusCode int             `json:"status_code"`
}

func (r response) text() string {
	b, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	return string(b)
}

// detail pulls the human-readable message out of the upstream body.
func (r response) detail() string {
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(r.Data, &body); err == nil && body.Detail != "" {
		return body.Detail
	}
	return "National code and mobile number do not match."
}

// Match verifies that the mobile number is registered to the holder of the
// national code.
func (c *Client) Match(ctx context.Context, nationalCode, mobile string) identity.MatchResult {
	if c.cfg.Mock {
		mocked := response{
			Data:       json.RawMessage(`{"detail": "Mobile and National Code Are OK."}`),
			StatusCode: http.StatusOK,
		}
		return identity.MatchResult{Verified: true, Response: mocked.text()}
	}

	resp := c.match(ctx, nationalCode, mobile)
	verified := resp.StatusCode == http.StatusOK
	if !verified {
		c.logger.Warn("identity match rejected",
			"status_code", resp.StatusCode,
			"detail", resp.detail(),
		)
	}
	result := identity.MatchResult{Verified: verified, Response: resp.text()}
	if !verified {
		result.Detail = resp.detail()
	}
	return result
}

func (c *Client) match(ctx context.Context, nationalCode, mobile string) response {
	token, err := c.accessToken(ctx)
	if err != nil {
		return failure(err)
	}

	payload, err := json.Marshal(map[string]any{
		"requestId":          c.requestID(),
		"serviceNumber":      mobile,
		"serviceType":        2,
		"identificationType": 0,
		"identificationNo":   nationalCode,
	})
	if err != nil {
		return failure(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+matchingPath, strings.NewReader(string(payload)))
	if err != nil {
		return failure(err)
	}
	req.Header.Set("pid", c.cfg.PID)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("basicAuthorization", "Basic "+c.cfg.AuthCode)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return failure(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure(err)
	}
	if !json.Valid(body) {
		body, _ = json.Marshal(map[string]string{"detail": string(body)})
	}
	return response{Data: body, StatusCode: resp.StatusCode}
}

func failure(err error) response {
	data, _ := json.Marshal(map[string]string{"detail": err.Error()})
	return response{Data: data, StatusCode: http.StatusInternalServerError}
}

// requestID is the provider code followed by a microsecond timestamp.
func (c *Client) requestID() string {
	now := c.now()
	return fmt.Sprintf("%s%s%06d", c.cfg.ProviderCode, now.Format("20060102150405"), now.Nanosecond()/1000)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// accessToken returns a cached token, refreshing or re-authenticating as
// needed.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	token, err := c.cache.Get(ctx, accessTokenKey)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return "", fmt.Errorf("load access token: %w", err)
	}

	if refresh, err := c.cache.Get(ctx, refreshTokenKey); err == nil {
		data, err := c.requestToken(ctx, url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {refresh},
		})
		if err == nil {
			ttl := time.Duration(data.ExpiresIn) * time.Second
			if err := c.cache.Set(ctx, accessTokenKey, data.AccessToken, ttl); err != nil {
				return "", fmt.Errorf("store access token: %w", err)
			}
			return data.AccessToken, nil
		}
		c.logger.Warn("token refresh failed, re-authenticating", "error", err)
	}

	data, err := c.requestToken(ctx, url.Values{
		"grant_type": {"password"},
		"username":   {c.cfg.Username},
		"password":   {c.cfg.Password},
	})
	if err != nil {
		return "", err
	}
	ttl := time.Duration(data.ExpiresIn) * time.Second
	if err := c.cache.Set(ctx, accessTokenKey, data.AccessToken, ttl); err != nil {
		return "", fmt.Errorf("store access token: %w", err)
	}
	if err := c.cache.Set(ctx, refreshTokenKey, data.RefreshToken, ttl); err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}
	return data.AccessToken, nil
}

func (c *Client) requestToken(ctx context.Context, form url.Values) (tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+c.cfg.AuthCode)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return tokenResponse{}, fmt.Errorf("token request: unexpected status %d", resp.StatusCode)
	}
	var data tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return tokenResponse{}, fmt.Errorf("decode token response: %w", err)
	}
	if data.AccessToken == "" {
		return tokenResponse{}, errors.New("token response missing access_token")
	}
	return data, nil
}
