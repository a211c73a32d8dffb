// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/status"
)

// Message is one decoded frame from /v1/events. Exactly one of the
// pointer fields is set for event frames; Response is set for replies.
type Message struct {
	Channel    status.Channel
	Status     *status.ServiceStatus
	Progress   *status.SetupProgress
	Navigation *status.Navigation
	Dialog     *status.Dialog
	Response   *Response
}

// wireFrame covers both event and reply frames.
type wireFrame struct {
	Channel status.Channel  `json:"channel"`
	Data    json.RawMessage `json:"data"`
	Type    string          `json:"type"`
}

// decodeMessage converts one raw frame into a Message.
func decodeMessage(raw []byte) (Message, error) {
	var f wireFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Message{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Channel == "" {
		var resp Response
		if err := json.Unmarshal(raw, &resp); err != nil {
			return Message{}, fmt.Errorf("decode response: %w", err)
		}
		return Message{Response: &resp}, nil
	}

	msg := Message{Channel: f.Channel}
	var target any
	switch f.Channel {
	case status.ChannelDockerStatus:
		msg.Status = &status.ServiceStatus{}
		target = msg.Status
	case status.ChannelSetupProgress:
		msg.Progress = &status.SetupProgress{}
		target = msg.Progress
	case status.ChannelNavigation:
		msg.Navigation = &status.Navigation{}
		target = msg.Navigation
	case status.ChannelDialog:
		msg.Dialog = &status.Dialog{}
		target = msg.Dialog
	default:
		return msg, nil
	}
	if err := json.Unmarshal(f.Data, target); err != nil {
		return Message{}, fmt.Errorf("decode %s: %w", f.Channel, err)
	}
	return msg, nil
}

// =============================================================================
// WebSocket client
// =============================================================================

// Client is a connection to a running bridge's event stream.
//
// # Thread Safety
//
// Next must be called from one goroutine. Send may be called concurrently
// with Next.
type Client struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

// Dial connects to the bridge at addr (host:port).
func Dial(ctx context.Context, addr string) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, "ws://"+addr+"/v1/events", nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Next blocks for the next frame.
func (c *Client) Next() (Message, error) {
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		return Message{}, err
	}
	return decodeMessage(raw)
}

// Send writes one request frame.
func (c *Client) Send(req Request) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(req)
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	c.wmu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.wmu.Unlock()
	return c.conn.Close()
}

// =============================================================================
// HTTP client
// =============================================================================

// HTTPClient calls the bridge's plain HTTP routes.
type HTTPClient struct {
	Addr string
	HTTP *http.Client
}

func (h HTTPClient) client() *http.Client {
	if h.HTTP != nil {
		return h.HTTP
	}
	return &http.Client{Timeout: 15 * time.Minute}
}

// Status fetches GET /v1/status.
func (h HTTPClient) Status(ctx context.Context) (status.ServiceStatus, error) {
	var st status.ServiceStatus
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+h.Addr+"/v1/status", nil)
	if err != nil {
		return st, err
	}
	resp, err := h.client().Do(req)
	if err != nil {
		return st, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("bridge status: HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}

// Request posts one request to /v1/request. A fire-and-forget request
// returns a nil Response.
func (h HTTPClient) Request(ctx context.Context, r Request) (*Response, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+h.Addr+"/v1/request", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted, http.StatusNoContent:
		return nil, nil
	case http.StatusOK:
		var out Response
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return &out, nil
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("bridge request %s: HTTP %d: %s", r.Type, resp.StatusCode, bytes.TrimSpace(msg))
	}
}
