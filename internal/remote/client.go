// Package remote provides the RPC client for the remote database service,
// reached through the transport bridge.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/MainListActivity/cuckoox-google-sub012/internal/errors"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/models"
	"github.com/MainListActivity/cuckoox-google-sub012/internal/transport"
)

// Client issues correlated RPC calls against the remote service. The remote
// service is opaque: an endpoint plus credentials, spoken to only through
// the bridge's three message kinds.
type Client struct {
	bridge *transport.Bridge

	mu       sync.Mutex
	endpoint string
	open     bool
}

// NewClient creates a client over the given bridge.
func NewClient(bridge *transport.Bridge) *Client {
	return &Client{bridge: bridge}
}

// Open dials the endpoint and attaches the resulting port to the bridge.
// onClose fires when the transport drops outside an explicit Close; any
// calls left pending from a previous connection are replayed.
func (c *Client) Open(ctx context.Context, endpoint string, onClose func(error)) error {
	port, err := transport.DialWebSocket(ctx, endpoint, c.bridge.HandleMessage, onClose)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrConnectionFailure, "failed to open remote transport", err)
	}

	c.mu.Lock()
	c.endpoint = endpoint
	c.open = true
	c.mu.Unlock()

	c.bridge.AttachPort(port)
	c.bridge.ReplayPending()
	return nil
}

// Endpoint returns the endpoint of the current connection.
func (c *Client) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

// IsOpen reports whether the transport has been opened and not closed.
func (c *Client) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Use selects the namespace and database for subsequent calls.
func (c *Client) Use(ctx context.Context, namespace, database string) error {
	_, err := c.bridge.Send(ctx, "use", []string{namespace, database})
	return err
}

// SignIn authenticates with username/password credentials.
func (c *Client) SignIn(ctx context.Context, username, password string) error {
	_, err := c.bridge.Send(ctx, "signin", map[string]string{
		"user": username,
		"pass": password,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrAuthFailure, "credentials rejected", err)
	}
	return nil
}

// Authenticate authenticates with a token.
func (c *Client) Authenticate(ctx context.Context, token string) error {
	_, err := c.bridge.Send(ctx, "authenticate", []string{token})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrAuthFailure, "token rejected", err)
	}
	return nil
}

// Invalidate drops the current authentication.
func (c *Client) Invalidate(ctx context.Context) error {
	_, err := c.bridge.Send(ctx, "invalidate", nil)
	return err
}

// Query runs a query with optional variables and returns the raw result.
func (c *Client) Query(ctx context.Context, sql string, vars map[string]interface{}) (json.RawMessage, error) {
	params := []interface{}{sql}
	if vars != nil {
		params = append(params, vars)
	}
	return c.bridge.Send(ctx, "query", params)
}

// Create creates a record.
func (c *Client) Create(ctx context.Context, thing string, data models.Record) (json.RawMessage, error) {
	return c.bridge.Send(ctx, "create", []interface{}{thing, data})
}

// Select reads a record or a whole table.
func (c *Client) Select(ctx context.Context, thing string) (json.RawMessage, error) {
	return c.bridge.Send(ctx, "select", []interface{}{thing})
}

// Update replaces a record.
func (c *Client) Update(ctx context.Context, thing string, data models.Record) (json.RawMessage, error) {
	return c.bridge.Send(ctx, "update", []interface{}{thing, data})
}

// Merge merges fields into a record.
func (c *Client) Merge(ctx context.Context, thing string, data models.Record) (json.RawMessage, error) {
	return c.bridge.Send(ctx, "merge", []interface{}{thing, data})
}

// Delete deletes a record or a whole table.
func (c *Client) Delete(ctx context.Context, thing string) (json.RawMessage, error) {
	return c.bridge.Send(ctx, "delete", []interface{}{thing})
}

// Live opens a live query and routes its notifications to handler. Returns
// the remote-assigned subscription id.
func (c *Client) Live(ctx context.Context, query string, vars map[string]interface{}, handler transport.LiveHandler) (string, error) {
	params := []interface{}{query}
	if vars != nil {
		params = append(params, vars)
	}
	result, err := c.bridge.Send(ctx, "live", params)
	if err != nil {
		return "", err
	}

	var subscriptionID string
	if err := json.Unmarshal(result, &subscriptionID); err != nil {
		return "", apperrors.Wrap(apperrors.ErrRemote, "live query returned no subscription id", err)
	}

	c.bridge.RegisterLive(subscriptionID, handler)
	return subscriptionID, nil
}

// Kill terminates a live query subscription.
func (c *Client) Kill(ctx context.Context, subscriptionID string) error {
	c.bridge.UnregisterLive(subscriptionID)
	_, err := c.bridge.Send(ctx, "kill", []string{subscriptionID})
	return err
}

// Ping performs a trivial round-trip and returns its latency.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if _, err := c.bridge.Send(ctx, "ping", nil); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// GetRecord reads one record snapshot.
func (c *Client) GetRecord(ctx context.Context, table, id string) (models.Record, error) {
	result, err := c.Select(ctx, recordThing(table, id))
	if err != nil {
		return nil, err
	}
	if len(result) == 0 || string(result) == "null" {
		return nil, nil
	}
	var record models.Record
	if err := json.Unmarshal(result, &record); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRemote, "undecodable record snapshot", err)
	}
	return record, nil
}

// PutRecord creates or replaces one record.
func (c *Client) PutRecord(ctx context.Context, table, id string, record models.Record) error {
	_, err := c.Update(ctx, recordThing(table, id), record)
	return err
}

// DeleteRecord removes one record.
func (c *Client) DeleteRecord(ctx context.Context, table, id string) error {
	_, err := c.Delete(ctx, recordThing(table, id))
	return err
}

// Close closes the transport. Pending calls are not force-cancelled; the
// bridge keeps them for replay unless it is closed too.
func (c *Client) Close() error {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	return c.bridge.DetachPort()
}

func recordThing(table, id string) string {
	return fmt.Sprintf("%s:%s", table, id)
}
