// Package kampusapi is the transport adapter over the Kampus backend REST/SSE
// API. It implements the live feed's SnapshotFetcher and StreamOpener
// contracts plus the user and novelty resource mirrors.
package kampusapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/victorpuello/kampus-sub004/core"
	"github.com/victorpuello/kampus-sub004/core/live"
	"github.com/victorpuello/kampus-sub004/core/novelty"
	"github.com/victorpuello/kampus-sub004/core/user"
)

// APIError is a non-2xx response from the backend, with whatever detail the
// DRF error payload carried.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("kampus api: %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("kampus api: %d", e.Status)
}

// Client talks to the upstream Kampus API with one authenticated session.
// It refreshes the access token ahead of expiry; all methods are safe for
// concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	stream  *http.Client
	logger  core.Logger

	mu      sync.Mutex
	session user.Session
	refresh string
}

func NewClient(conf *core.Config, logger core.Logger) *Client {
	return &Client{
		baseURL: conf.Kampus.BaseURL,
		http:    &http.Client{Timeout: conf.Kampus.Timeout},
		// the stream client carries no global timeout: http.Client.Timeout
		// bounds the whole exchange including body reads, which would tear
		// down every healthy long-lived stream. Connection setup is bounded
		// at the transport level instead.
		stream: &http.Client{
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: conf.Kampus.Timeout}).DialContext,
				TLSHandshakeTimeout:   conf.Kampus.Timeout,
				ResponseHeaderTimeout: conf.Kampus.Timeout,
			},
		},
		logger: logger,
	}
}

// Login obtains a token pair from the backend and installs the session.
func (c *Client) Login(ctx context.Context, username, password string) (user.Session, error) {
	var out struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	payload := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, payload, &out, false); err != nil {
		return user.Session{}, err
	}

	sess, err := user.NewSession(out.Access)
	if err != nil {
		return user.Session{}, err
	}
	c.mu.Lock()
	c.session = sess
	c.refresh = out.Refresh
	c.mu.Unlock()
	return sess, nil
}

// SetSession installs an externally obtained session (e.g. a service token).
func (c *Client) SetSession(sess user.Session) {
	c.mu.Lock()
	c.session = sess
	c.refresh = ""
	c.mu.Unlock()
}

func (c *Client) Session() user.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Refresh exchanges the refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.refresh
	c.mu.Unlock()
	if refresh == "" {
		return errors.New("kampus api: no refresh token")
	}

	var out struct {
		Access string `json:"access"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", nil, map[string]string{"refresh": refresh}, &out, false); err != nil {
		return err
	}
	sess, err := user.NewSession(out.Access)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()
	return nil
}

// token returns a bearer token for the next request, refreshing first when
// the session is about to expire and a refresh token is at hand.
func (c *Client) token(ctx context.Context) string {
	c.mu.Lock()
	sess, refresh := c.session, c.refresh
	c.mu.Unlock()

	if sess.Expired() && refresh != "" {
		if err := c.Refresh(ctx); err != nil {
			if c.logger != nil {
				c.logger.Warn("kampus api: token refresh failed", err)
			}
			return sess.Token // let the backend reject it
		}
		return c.Session().Token
	}
	return sess.Token
}

// Processes lists the election processes eligible for monitoring.
func (c *Client) Processes(ctx context.Context) ([]live.Process, error) {
	var out []live.Process
	if err := c.do(ctx, http.MethodGet, "/processes", nil, nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchSnapshot implements live.SnapshotFetcher. An incremental fetch with a
// cursor carries since + includeRanking=false; everything else is a full
// fetch with includeRanking=true.
func (c *Client) FetchSnapshot(ctx context.Context, processID int, cfg live.MonitoringConfig, mode live.FetchMode, cursor string) (*live.Snapshot, error) {
	query := url.Values{}
	query.Set("windowMinutes", strconv.Itoa(cfg.WindowMinutes))
	query.Set("blankRateThreshold", strconv.FormatFloat(cfg.BlankRateThreshold, 'f', -1, 64))
	query.Set("inactivityMinutes", strconv.Itoa(cfg.InactivityMinutes))
	query.Set("spikeThreshold", strconv.Itoa(cfg.SpikeThreshold))
	query.Set("seriesLimit", strconv.Itoa(cfg.SeriesLimit))
	if mode == live.FetchIncremental && cursor != "" {
		query.Set("since", cursor)
		query.Set("includeRanking", "false")
	} else {
		query.Set("includeRanking", "true")
	}

	snap := new(live.Snapshot)
	path := fmt.Sprintf("/processes/%d/live-dashboard", processID)
	if err := c.do(ctx, http.MethodGet, path, query, nil, snap, true); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, &live.FetchError{Status: apiErr.Status, Detail: apiErr.Detail, Err: err}
		}
		return nil, &live.FetchError{Err: err}
	}
	return snap, nil
}

// Users lists backend users matching the filter.
func (c *Client) Users(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	filter.Clean()
	query := url.Values{}
	if filter.Search != "" {
		query.Set("search", filter.Search)
	}
	for _, role := range filter.Roles {
		query.Add("role", role)
	}
	if filter.IsActive != nil {
		query.Set("is_active", strconv.FormatBool(*filter.IsActive))
	}

	var out []user.User
	if err := c.do(ctx, http.MethodGet, "/users", query, nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateUser(ctx context.Context, nu user.NewUser) (*user.User, error) {
	out := new(user.User)
	if err := c.do(ctx, http.MethodPost, "/users", nil, nu, out, true); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateUser(ctx context.Context, id int, uu user.UpdateUser) (*user.User, error) {
	out := new(user.User)
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/users/%d", id), nil, uu, out, true); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteUser(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/users/%d", id), nil, nil, nil, true)
}

// Novelty case endpoints; together they satisfy novelty.API.

func (c *Client) CreateCase(ctx context.Context, nc novelty.NewCase) (*novelty.Case, error) {
	out := new(novelty.Case)
	if err := c.do(ctx, http.MethodPost, "/novelties", nil, nc, out, true); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UploadAttachment(ctx context.Context, caseID int, name string, body io.Reader) (*novelty.Attachment, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, errors.Wrap(err, "kampus api: building upload")
	}
	if _, err = io.Copy(part, body); err != nil {
		return nil, errors.Wrap(err, "kampus api: building upload")
	}
	if err = w.Close(); err != nil {
		return nil, errors.Wrap(err, "kampus api: building upload")
	}

	path := fmt.Sprintf("%s/novelties/%d/attachments", c.baseURL, caseID)
	req, err := http.NewRequest(http.MethodPost, path, &buf)
	if err != nil {
		return nil, errors.Wrap(err, "kampus api: building request")
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token := c.token(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	out := new(novelty.Attachment)
	if err = c.send(req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FileCase(ctx context.Context, caseID int) (*novelty.Case, error) {
	return c.caseAction(ctx, caseID, "file", nil)
}

func (c *Client) ReviewCase(ctx context.Context, caseID int) (*novelty.Case, error) {
	return c.caseAction(ctx, caseID, "review", nil)
}

func (c *Client) ResolveCase(ctx context.Context, caseID int, rev novelty.Review) (*novelty.Case, error) {
	return c.caseAction(ctx, caseID, "resolve", rev)
}

func (c *Client) ExecuteCase(ctx context.Context, caseID int) (*novelty.Case, error) {
	return c.caseAction(ctx, caseID, "execute", nil)
}

func (c *Client) caseAction(ctx context.Context, caseID int, action string, body interface{}) (*novelty.Case, error) {
	out := new(novelty.Case)
	path := fmt.Sprintf("/novelties/%d/%s", caseID, action)
	if err := c.do(ctx, http.MethodPost, path, nil, body, out, true); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}, authed bool) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "kampus api: encoding request")
		}
		reqBody = bytes.NewReader(data)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequest(method, u, reqBody)
	if err != nil {
		return errors.Wrap(err, "kampus api: building request")
	}
	req = req.WithContext(ctx)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		if token := c.token(ctx); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "kampus api")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail := struct {
			Detail string `json:"detail"`
		}{}
		_ = json.NewDecoder(resp.Body).Decode(&detail)
		return &APIError{Status: resp.StatusCode, Detail: detail.Detail}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "kampus api: decoding response")
	}
	return nil
}
