// Package muset is the typed client for the Muset ("Fast Learning")
// API. It layers JSON codecs and endpoint knowledge over the resilient
// httpclient, and owns the session wiring: auth header injection on the
// way out, session invalidation and login redirect on 401.
package muset

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/muset-ai/muset-go/config"
	"github.com/muset-ai/muset-go/httpclient"
	"github.com/muset-ai/muset-go/logger"
	"github.com/muset-ai/muset-go/session"
	"github.com/muset-ai/muset-go/tasks"
)

const (
	loginEndpoint    = "/api/v1/auth/login"
	logoutEndpoint   = "/api/v1/auth/logout"
	tasksEndpoint    = "/api/v1/tasks"
	roadmapsEndpoint = "/api/v1/roadmaps"
)

// Client is the typed Muset API client.
type Client struct {
	http    httpclient.Client
	baseURL string
	store   *session.Store
	log     logger.Logger
	poll    time.Duration
}

// Ensure Client satisfies the poller's status source
var _ tasks.StatusClient = (*Client)(nil)

// New builds a client from the loaded configuration. nav may be nil when
// the consumer has no navigation surface.
func New(cfg *config.Config, store *session.Store, nav httpclient.Navigator, log logger.Logger) *Client {
	normalizer := httpclient.NewErrorNormalizer(store, nav, log, cfg.API.AuthPathPrefixes)

	hc := httpclient.NewBuilder(log).
		FromConfig(cfg).
		WithDefaultHeader("Accept", "application/json").
		WithRequestInterceptor(httpclient.NewAuthInterceptor(store)).
		WithFailureHook(normalizer.Hook()).
		Build()

	return &Client{
		http:    hc,
		baseURL: strings.TrimRight(cfg.API.BaseURL, "/"),
		store:   store,
		log:     log,
		poll:    cfg.Poller.Interval,
	}
}

// NewWithHTTPClient builds a client around a pre-configured httpclient.
// Tests and advanced consumers use this to control the pipeline.
func NewWithHTTPClient(hc httpclient.Client, baseURL string, store *session.Store, log logger.Logger) *Client {
	return &Client{
		http:    hc,
		baseURL: strings.TrimRight(baseURL, "/"),
		store:   store,
		log:     log,
		poll:    tasks.DefaultInterval,
	}
}

// Login authenticates the user and stores the returned credentials in
// the session store.
func (c *Client) Login(ctx context.Context, email, password string) error {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return fmt.Errorf("marshal login request: %w", err)
	}

	resp, err := c.http.Post(ctx, &httpclient.Request{
		URL:  c.baseURL + loginEndpoint,
		Body: body,
	})
	if err != nil {
		return err
	}

	var login loginResponse
	if err := json.Unmarshal(resp.Body, &login); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}

	c.store.SetCredentials(login.Token, login.UserID)
	c.log.Info().Str("user_id", login.UserID).Msg("session established")
	return nil
}

// Logout tells the backend to revoke the session, then clears the local
// credentials. The local clear happens even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.http.Post(ctx, &httpclient.Request{URL: c.baseURL + logoutEndpoint})
	c.store.Clear()
	return err
}

// TaskStatus queries the status of an asynchronous generation task.
// This is the endpoint the task poller consumes.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (*tasks.Snapshot, error) {
	resp, err := c.http.Get(ctx, &httpclient.Request{
		URL: c.baseURL + tasksEndpoint + "/" + url.PathEscape(taskID),
	})
	if err != nil {
		return nil, err
	}

	var snap tasks.Snapshot
	if err := json.Unmarshal(resp.Body, &snap); err != nil {
		return nil, fmt.Errorf("decode task status: %w", err)
	}
	if snap.TaskID == "" {
		snap.TaskID = taskID
	}
	return &snap, nil
}

// GenerateRoadmap starts roadmap generation and returns the task id to
// poll. Generation requests are mutations and are never retried.
func (c *Client) GenerateRoadmap(ctx context.Context, req GenerateRoadmapRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	resp, err := c.http.Post(ctx, &httpclient.Request{
		URL:  c.baseURL + roadmapsEndpoint + "/generate",
		Body: body,
	})
	if err != nil {
		return "", err
	}

	var gen GenerateRoadmapResponse
	if err := json.Unmarshal(resp.Body, &gen); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	return gen.TaskID, nil
}

// Roadmap fetches one roadmap by id.
func (c *Client) Roadmap(ctx context.Context, roadmapID string) (*Roadmap, error) {
	resp, err := c.http.Get(ctx, &httpclient.Request{
		URL: c.baseURL + roadmapsEndpoint + "/" + url.PathEscape(roadmapID),
	})
	if err != nil {
		return nil, err
	}

	var roadmap Roadmap
	if err := json.Unmarshal(resp.Body, &roadmap); err != nil {
		return nil, fmt.Errorf("decode roadmap: %w", err)
	}
	return &roadmap, nil
}

// ListRoadmaps fetches the current user's roadmaps.
func (c *Client) ListRoadmaps(ctx context.Context) ([]Roadmap, error) {
	resp, err := c.http.Get(ctx, &httpclient.Request{
		URL: c.baseURL + roadmapsEndpoint,
	})
	if err != nil {
		return nil, err
	}

	var roadmaps []Roadmap
	if err := json.Unmarshal(resp.Body, &roadmaps); err != nil {
		return nil, fmt.Errorf("decode roadmap list: %w", err)
	}
	return roadmaps, nil
}

// UpdateNodeStatus records learner progress on a roadmap node. PUT is
// idempotent, so transient server failures are retried.
func (c *Client) UpdateNodeStatus(ctx context.Context, roadmapID, nodeID string, status NodeStatus) error {
	body, err := json.Marshal(updateNodeStatusRequest{Status: status})
	if err != nil {
		return fmt.Errorf("marshal node status: %w", err)
	}

	_, err = c.http.Put(ctx, &httpclient.Request{
		URL:  c.baseURL + roadmapsEndpoint + "/" + url.PathEscape(roadmapID) + "/nodes/" + url.PathEscape(nodeID),
		Body: body,
	})
	return err
}

// PollTask creates a poller for the given task bound to this client and
// the configured poll interval. The caller starts and stops it.
func (c *Client) PollTask(taskID string, callbacks tasks.Callbacks) *tasks.Poller {
	return tasks.NewPoller(c, taskID, callbacks, c.log)
}

// WatchTask returns a finite sequence of status snapshots for the task,
// ending with the first terminal one.
func (c *Client) WatchTask(ctx context.Context, taskID string) <-chan tasks.Snapshot {
	return tasks.Watch(ctx, c, taskID, c.poll)
}
