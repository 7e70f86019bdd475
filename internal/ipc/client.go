package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Scribe.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Enqueue submits one unit of work for a session.
func (c *Client) Enqueue(sessionID, project, payload string) (*EnqueueResponse, error) {
	var resp EnqueueResponse
	req := EnqueueRequest{SessionID: sessionID, Project: project, Payload: payload}
	if err := c.client.Call("Scribe.Enqueue", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueList returns work items optionally filtered by statuses.
func (c *Client) QueueList(statuses []string) (*QueueListResponse, error) {
	var resp QueueListResponse
	req := QueueListRequest{Statuses: statuses}
	if err := c.client.Call("Scribe.QueueList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionList returns the durable session history.
func (c *Client) SessionList() (*SessionListResponse, error) {
	var resp SessionListResponse
	if err := c.client.Call("Scribe.SessionList", SessionListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueHealth returns queue diagnostics.
func (c *Client) QueueHealth() (*QueueHealthResponse, error) {
	var resp QueueHealthResponse
	if err := c.client.Call("Scribe.QueueHealth", QueueHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	var resp DatabaseHealthResponse
	if err := c.client.Call("Scribe.DatabaseHealth", DatabaseHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Recover triggers an on-demand recovery sweep.
func (c *Client) Recover(sessionLimit int) (*RecoverResponse, error) {
	var resp RecoverResponse
	req := RecoverRequest{SessionLimit: sessionLimit}
	if err := c.client.Call("Scribe.Recover", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Shutdown requests the daemon to stop.
func (c *Client) Shutdown() (*ShutdownResponse, error) {
	var resp ShutdownResponse
	if err := c.client.Call("Scribe.Shutdown", ShutdownRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Scribe.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
