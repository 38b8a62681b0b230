package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/1broseidon/wmcore/internal/runtimepath"
)

// Client handles IPC communication with the daemon
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new IPC client
func NewClient() *Client {
	socketPath, err := runtimepath.SocketPath()
	if err != nil {
		// Keep constructor non-failing; sendRequest surfaces connection errors.
		socketPath = ""
	}
	return NewClientAt(socketPath)
}

// NewClientAt creates a client for the socket at socketPath.
func NewClientAt(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

// sendRequest sends a request and waits for a response
func (c *Client) sendRequest(req *Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w (is the daemon running?)", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout))

	reqData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqData = append(reqData, '\n')
	if _, err := conn.Write(reqData); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	reader := bufio.NewReader(conn)
	respData, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.Status == "ERROR" {
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}

	return &resp, nil
}

// query sends cmd and decodes the response data into out.
func (c *Client) query(cmd CommandType, payload any, out any) error {
	req := &Request{Command: cmd}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", cmd, err)
		}
		req.Payload = data
	}

	resp, err := c.sendRequest(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("failed to parse %s data: %w", cmd, err)
	}
	return nil
}

// GetStatus retrieves daemon status
func (c *Client) GetStatus() (*StatusData, error) {
	var status StatusData
	if err := c.query(CommandGetStatus, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListToplevels retrieves live and closing toplevels.
func (c *Client) ListToplevels() ([]ToplevelInfo, error) {
	var data ToplevelsData
	if err := c.query(CommandListToplevels, nil, &data); err != nil {
		return nil, err
	}
	return data.Toplevels, nil
}

// ListOutputs retrieves connected outputs.
func (c *Client) ListOutputs() ([]OutputInfo, error) {
	var data OutputsData
	if err := c.query(CommandListOutputs, nil, &data); err != nil {
		return nil, err
	}
	return data.Outputs, nil
}

// GetModule describes the active policy module.
func (c *Client) GetModule() (*ModuleData, error) {
	var data ModuleData
	if err := c.query(CommandGetModule, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// ReloadModule loads the module at path, or the configured one when path
// is empty, and returns the module that is active afterwards.
func (c *Client) ReloadModule(path string) (*ModuleData, error) {
	var data ModuleData
	if err := c.query(CommandReloadModule, ReloadModulePayload{Path: path}, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Ping checks if the daemon is responding
func (c *Client) Ping() error {
	_, err := c.GetStatus()
	return err
}
