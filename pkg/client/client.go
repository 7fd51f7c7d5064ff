// Package client is a thin convenience wrapper for CLI tools to call the
// BlockAndFocus daemon's line-delimited JSON control protocol over a
// Unix domain socket.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/lc/blockandfocus/internal/socket"
)

// Status mirrors the GetStatus response payload.
type Status struct {
	BlockingActive     bool   `json:"blocking_active"`
	BlockedDomainCount int    `json:"blocked_domains_count"`
	QueriesBlocked     uint64 `json:"queries_blocked"`
	QueriesForwarded   uint64 `json:"queries_forwarded"`
	BypassUntil        *int64 `json:"bypass_until"`
	ActiveScheduleRule string `json:"active_schedule_rule"`
	ScheduleEnabled    bool   `json:"schedule_enabled"`
}

// Blocklist mirrors the GetBlocklist response payload.
type Blocklist struct {
	Domains []string `json:"domains"`
}

// ScheduleRule mirrors a single schedule rule on the wire.
type ScheduleRule struct {
	Name      string   `json:"name"`
	Days      []string `json:"days"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
}

// Schedule mirrors the GetSchedule/UpdateSchedule payload.
type Schedule struct {
	Enabled bool           `json:"enabled"`
	Rules   []ScheduleRule `json:"rules"`
}

// QuizChallenge mirrors the RequestBypass response payload.
type QuizChallenge struct {
	ChallengeID string   `json:"challenge_id"`
	Questions   []string `json:"questions"`
	ExpiresAt   int64    `json:"expires_at"`
}

// Error is returned when the daemon responds with type "Error".
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// Client speaks the line-JSON control protocol over a single persistent
// Unix-domain connection, serializing commands from possibly-concurrent
// callers (responses arrive in the order commands were sent, per
// connection).
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects to the daemon's control socket at path, retrying until
// the daemon is up or the context is done.
func Dial(ctx context.Context, path string) (*Client, error) {
	conn, err := socket.ConnectContext(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

type wireCommand struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type wireResponse struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (c *Client) call(cmdType string, payload any, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, err := json.Marshal(wireCommand{Type: cmdType, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshaling command: %w", err)
	}
	if _, err := c.conn.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("writing command: %w", err)
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var resp wireResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if resp.Type == "Error" {
		var errPayload Error
		if err := json.Unmarshal(resp.Payload, &errPayload); err != nil {
			return fmt.Errorf("decoding error response: %w", err)
		}
		return &errPayload
	}

	if out == nil || len(resp.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Payload, out)
}

// Ping checks that the daemon is alive.
func (c *Client) Ping() error { return c.call("Ping", nil, nil) }

// Status retrieves the current daemon status.
func (c *Client) Status() (Status, error) {
	var out Status
	err := c.call("GetStatus", nil, &out)
	return out, err
}

// GetBlocklist retrieves the current normalized blocklist.
func (c *Client) GetBlocklist() ([]string, error) {
	var out Blocklist
	err := c.call("GetBlocklist", nil, &out)
	return out.Domains, err
}

// AddDomain adds domain to the blocklist.
func (c *Client) AddDomain(domain string) error {
	return c.call("AddDomain", map[string]string{"domain": domain}, nil)
}

// RemoveDomain removes domain from the blocklist.
func (c *Client) RemoveDomain(domain string) error {
	return c.call("RemoveDomain", map[string]string{"domain": domain}, nil)
}

// GetSchedule retrieves the current blocking schedule.
func (c *Client) GetSchedule() (Schedule, error) {
	var out Schedule
	err := c.call("GetSchedule", nil, &out)
	return out, err
}

// UpdateSchedule replaces the blocking schedule.
func (c *Client) UpdateSchedule(sched Schedule) error {
	return c.call("UpdateSchedule", map[string]any{"schedule": sched}, nil)
}

// RequestBypass issues a fresh quiz challenge.
func (c *Client) RequestBypass(durationMinutes int) (QuizChallenge, error) {
	var out QuizChallenge
	err := c.call("RequestBypass", map[string]int{"duration_minutes": durationMinutes}, &out)
	return out, err
}

// SubmitQuizAnswers submits answers for a previously issued challenge.
func (c *Client) SubmitQuizAnswers(challengeID string, answers []int) error {
	return c.call("SubmitQuizAnswers", map[string]any{
		"challenge_id": challengeID,
		"answers":      answers,
	}, nil)
}

// CancelBypass cancels any active bypass.
func (c *Client) CancelBypass() error { return c.call("CancelBypass", nil, nil) }
