// Package ipc serves the BlockAndFocus control protocol: newline-delimited
// JSON commands over a Unix domain socket, one object per line in each
// direction.
package ipc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"

	"github.com/lc/blockandfocus/internal/config"
	"github.com/lc/blockandfocus/internal/log"
	"github.com/lc/blockandfocus/internal/quiz"
	"github.com/lc/blockandfocus/internal/schedule"
	"github.com/lc/blockandfocus/internal/socket"
	"github.com/lc/blockandfocus/internal/state"
)

// command is the wire shape of an incoming request line.
type command struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// envelope is the wire shape of every response line.
type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type domainPayload struct {
	Domain string `json:"domain"`
}

type statusPayload struct {
	BlockingActive     bool   `json:"blocking_active"`
	BlockedDomainCount int    `json:"blocked_domains_count"`
	QueriesBlocked     uint64 `json:"queries_blocked"`
	QueriesForwarded   uint64 `json:"queries_forwarded"`
	BypassUntil        *int64 `json:"bypass_until"`
	ActiveScheduleRule string `json:"active_schedule_rule"`
	ScheduleEnabled    bool   `json:"schedule_enabled"`
}

type blocklistPayload struct {
	Domains []string `json:"domains"`
}

// wireScheduleRule is the schedule rule shape on the wire -- note it
// carries no ID; internal/config.ScheduleRule's ID is server-assigned.
type wireScheduleRule struct {
	Name      string   `json:"name"`
	Days      []string `json:"days"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
}

type wireSchedule struct {
	Enabled bool               `json:"enabled"`
	Rules   []wireScheduleRule `json:"rules"`
}

type bypassRequestPayload struct {
	DurationMinutes int `json:"duration_minutes"`
}

type quizChallengePayload struct {
	ChallengeID string   `json:"challenge_id"`
	Questions   []string `json:"questions"`
	ExpiresAt   int64    `json:"expires_at"`
}

type submitAnswersPayload struct {
	ChallengeID string `json:"challenge_id"`
	Answers     []int  `json:"answers"`
}

// Error codes per the wire protocol.
const (
	codeInvalidCommand   = "invalid_command"
	codeInvalidDomain    = "invalid_domain"
	codeQuizNotFound     = "quiz_not_found"
	codeQuizExpired      = "quiz_expired"
	codeQuizFailed       = "quiz_failed"
	codeQuizTooFast      = "quiz_too_fast"
	codeBypassNotAllowed = "bypass_not_allowed"
	codeConfigError      = "config_error"
	codeInternalError    = "internal_error"
)

// Server dispatches line-JSON commands against a single AppState.
type Server struct {
	state    *state.AppState
	handlers map[string]func(json.RawMessage) envelope
	listener net.Listener
}

// New creates an IPC server bound to state.
func New(st *state.AppState) *Server {
	s := &Server{state: st}
	s.handlers = map[string]func(json.RawMessage) envelope{
		"Ping":              s.handlePing,
		"GetStatus":         s.handleGetStatus,
		"GetBlocklist":      s.handleGetBlocklist,
		"AddDomain":         s.handleAddDomain,
		"RemoveDomain":      s.handleRemoveDomain,
		"GetSchedule":       s.handleGetSchedule,
		"UpdateSchedule":    s.handleUpdateSchedule,
		"RequestBypass":     s.handleRequestBypass,
		"SubmitQuizAnswers": s.handleSubmitQuizAnswers,
		"CancelBypass":      s.handleCancelBypass,
	}
	return s
}

// ListenAndServe binds the Unix socket at path and serves connections
// until the listener is closed.
func (s *Server) ListenAndServe(path string) error {
	ln, err := socket.Listen(path)
	if err != nil {
		return err
	}
	s.listener = ln

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("ipc: accept: %w", err)
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	writer := bufio.NewWriter(conn)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		resp := s.dispatch(line)
		b, err := json.Marshal(resp)
		if err != nil {
			log.Errorf("ipc: marshaling response: %v", err)
			return
		}
		if _, err := writer.Write(b); err != nil {
			return
		}
		if err := writer.WriteByte('\n'); err != nil {
			return
		}
		if err := writer.Flush(); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(line []byte) envelope {
	var cmd command
	if err := json.Unmarshal(line, &cmd); err != nil {
		return errResponse(codeInvalidCommand, err.Error())
	}

	handler, ok := s.handlers[cmd.Type]
	if !ok {
		return errResponse(codeInvalidCommand, fmt.Sprintf("unknown command %q", cmd.Type))
	}
	return handler(cmd.Payload)
}

func (s *Server) handlePing(json.RawMessage) envelope {
	return envelope{Type: "Pong"}
}

func (s *Server) handleGetStatus(json.RawMessage) envelope {
	st := s.state.Status()

	var bypassUntil *int64
	if st.BypassUntil != nil {
		unix := st.BypassUntil.Unix()
		bypassUntil = &unix
	}

	return envelope{Type: "Status", Payload: statusPayload{
		BlockingActive:     st.BlockingActive,
		BlockedDomainCount: st.BlockedDomainCount,
		QueriesBlocked:     st.QueriesBlocked,
		QueriesForwarded:   st.QueriesForwarded,
		BypassUntil:        bypassUntil,
		ActiveScheduleRule: st.ActiveScheduleRule,
		ScheduleEnabled:    st.ScheduleEnabled,
	}}
}

func (s *Server) handleGetBlocklist(json.RawMessage) envelope {
	return envelope{Type: "Blocklist", Payload: blocklistPayload{Domains: s.state.Blocklist()}}
}

func (s *Server) handleAddDomain(payload json.RawMessage) envelope {
	var p domainPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Domain == "" {
		return errResponse(codeInvalidCommand, "domain is required")
	}

	if err := s.state.AddDomain(p.Domain); err != nil {
		return errResponse(codeConfigError, err.Error())
	}
	return envelope{Type: "Success"}
}

func (s *Server) handleRemoveDomain(payload json.RawMessage) envelope {
	var p domainPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Domain == "" {
		return errResponse(codeInvalidCommand, "domain is required")
	}

	removed, err := s.state.RemoveDomain(p.Domain)
	if err != nil {
		return errResponse(codeConfigError, err.Error())
	}
	if !removed {
		return errResponse(codeInvalidDomain, fmt.Sprintf("domain %q is not on the blocklist", p.Domain))
	}
	return envelope{Type: "Success"}
}

func (s *Server) handleGetSchedule(json.RawMessage) envelope {
	sc := s.state.Schedule()
	return envelope{Type: "Schedule", Payload: toWireSchedule(sc)}
}

func (s *Server) handleUpdateSchedule(payload json.RawMessage) envelope {
	var req struct {
		Schedule wireSchedule `json:"schedule"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return errResponse(codeInvalidCommand, err.Error())
	}

	sc, err := fromWireSchedule(req.Schedule)
	if err != nil {
		return errResponse(codeConfigError, err.Error())
	}

	if err := s.state.UpdateSchedule(sc); err != nil {
		return errResponse(codeConfigError, err.Error())
	}
	return envelope{Type: "Success"}
}

func (s *Server) handleRequestBypass(payload json.RawMessage) envelope {
	var p bypassRequestPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return errResponse(codeInvalidCommand, err.Error())
		}
	}

	challenge, err := s.state.RequestBypass(p.DurationMinutes)
	if err != nil {
		return errResponse(codeBypassNotAllowed, err.Error())
	}
	return envelope{Type: "QuizChallenge", Payload: quizChallengePayload{
		ChallengeID: challenge.ID,
		Questions:   challenge.Questions,
		ExpiresAt:   challenge.ExpiresAt,
	}}
}

func (s *Server) handleSubmitQuizAnswers(payload json.RawMessage) envelope {
	var p submitAnswersPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return errResponse(codeInvalidCommand, err.Error())
	}

	err := s.state.SubmitQuizAnswers(p.ChallengeID, p.Answers)
	switch {
	case err == nil:
		return envelope{Type: "Success"}
	case errors.Is(err, quiz.ErrNotFound):
		return errResponse(codeQuizNotFound, err.Error())
	case errors.Is(err, quiz.ErrExpired):
		return errResponse(codeQuizExpired, err.Error())
	case errors.Is(err, quiz.ErrTooFast):
		return errResponse(codeQuizTooFast, err.Error())
	case errors.Is(err, quiz.ErrWrongAnswer), errors.Is(err, quiz.ErrWrongAnswerCount):
		return errResponse(codeQuizFailed, err.Error())
	default:
		return errResponse(codeInternalError, err.Error())
	}
}

func (s *Server) handleCancelBypass(json.RawMessage) envelope {
	s.state.CancelBypass()
	return envelope{Type: "Success"}
}

func errResponse(code, message string) envelope {
	return envelope{Type: "Error", Payload: errorPayload{Code: code, Message: message}}
}

func toWireSchedule(sc config.ScheduleConfig) wireSchedule {
	rules := make([]wireScheduleRule, 0, len(sc.Rules))
	for _, r := range sc.Rules {
		rules = append(rules, wireScheduleRule{
			Name:      r.Name,
			Days:      append([]string(nil), r.Days...),
			StartTime: r.StartTime,
			EndTime:   r.EndTime,
		})
	}
	return wireSchedule{Enabled: sc.Enabled, Rules: rules}
}

func fromWireSchedule(ws wireSchedule) (config.ScheduleConfig, error) {
	rules := make([]config.ScheduleRule, 0, len(ws.Rules))
	for _, r := range ws.Rules {
		for _, d := range r.Days {
			if _, err := schedule.ParseWeekday(d); err != nil {
				return config.ScheduleConfig{}, fmt.Errorf("invalid day %q: %w", d, err)
			}
		}
		if _, err := schedule.ParseHHMM(r.StartTime); err != nil {
			return config.ScheduleConfig{}, fmt.Errorf("invalid start_time: %w", err)
		}
		if _, err := schedule.ParseHHMM(r.EndTime); err != nil {
			return config.ScheduleConfig{}, fmt.Errorf("invalid end_time: %w", err)
		}
		rules = append(rules, config.ScheduleRule{
			ID:        uuid.NewString(),
			Name:      r.Name,
			Days:      append([]string(nil), r.Days...),
			StartTime: r.StartTime,
			EndTime:   r.EndTime,
		})
	}
	return config.ScheduleConfig{Enabled: ws.Enabled, Rules: rules}, nil
}
