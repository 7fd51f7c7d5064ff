package ipc_test

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/lc/blockandfocus/internal/config"
	"github.com/lc/blockandfocus/internal/filesys"
	"github.com/lc/blockandfocus/internal/ipc"
	"github.com/lc/blockandfocus/internal/state"
)

type IPCTestSuite struct {
	suite.Suite
	tmpDir   string
	prevWd   string
	sockPath string
	server   *ipc.Server
}

func (s *IPCTestSuite) SetupTest() {
	var err error
	s.tmpDir, err = os.MkdirTemp("", "bafipc-*")
	s.Require().NoError(err)

	s.prevWd, err = os.Getwd()
	s.Require().NoError(err)
	s.Require().NoError(os.Chdir(s.tmpDir))

	store := config.NewWithFS(filesys.OS())
	cfg, err := store.Load(true)
	s.Require().NoError(err)
	cfg.Quiz.MinSolveSeconds = 0

	st := state.New(cfg, store)
	s.server = ipc.New(st)

	s.sockPath = filepath.Join(s.tmpDir, "test.sock")
	go func() { _ = s.server.ListenAndServe(s.sockPath) }()
	s.Require().Eventually(func() bool {
		conn, err := net.DialTimeout("unix", s.sockPath, 50*time.Millisecond)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

func (s *IPCTestSuite) TearDownTest() {
	_ = s.server.Close()
	_ = os.Chdir(s.prevWd)
	_ = os.RemoveAll(s.tmpDir)
}

func (s *IPCTestSuite) dial() net.Conn {
	conn, err := net.Dial("unix", s.sockPath)
	s.Require().NoError(err)
	return conn
}

func (s *IPCTestSuite) send(conn net.Conn, scanner *bufio.Scanner, typ string, payload any) map[string]any {
	req := map[string]any{"type": typ}
	if payload != nil {
		req["payload"] = payload
	}
	b, err := json.Marshal(req)
	s.Require().NoError(err)

	_, err = conn.Write(append(b, '\n'))
	s.Require().NoError(err)

	s.Require().True(scanner.Scan())
	var resp map[string]any
	s.Require().NoError(json.Unmarshal(scanner.Bytes(), &resp))
	return resp
}

func (s *IPCTestSuite) TestPing() {
	conn := s.dial()
	defer conn.Close()
	scanner := bufio.NewScanner(conn)

	resp := s.send(conn, scanner, "Ping", nil)
	s.Equal("Pong", resp["type"])
}

func (s *IPCTestSuite) TestAddGetRemoveDomain() {
	conn := s.dial()
	defer conn.Close()
	scanner := bufio.NewScanner(conn)

	resp := s.send(conn, scanner, "AddDomain", map[string]any{"domain": "Reddit.COM"})
	s.Equal("Success", resp["type"])

	resp = s.send(conn, scanner, "GetBlocklist", nil)
	s.Equal("Blocklist", resp["type"])
	payload := resp["payload"].(map[string]any)
	domains := payload["domains"].([]any)
	s.Equal([]any{"reddit.com"}, domains)

	resp = s.send(conn, scanner, "RemoveDomain", map[string]any{"domain": "reddit.com"})
	s.Equal("Success", resp["type"])

	resp = s.send(conn, scanner, "RemoveDomain", map[string]any{"domain": "reddit.com"})
	s.Equal("Error", resp["type"])
	errPayload := resp["payload"].(map[string]any)
	s.Equal("invalid_domain", errPayload["code"])
}

func (s *IPCTestSuite) TestInvalidCommand() {
	conn := s.dial()
	defer conn.Close()
	scanner := bufio.NewScanner(conn)

	_, err := conn.Write([]byte("not json\n"))
	s.Require().NoError(err)
	s.Require().True(scanner.Scan())

	var resp map[string]any
	s.Require().NoError(json.Unmarshal(scanner.Bytes(), &resp))
	s.Equal("Error", resp["type"])
	payload := resp["payload"].(map[string]any)
	s.Equal("invalid_command", payload["code"])

	// connection stays open for further commands
	resp = s.send(conn, scanner, "Ping", nil)
	s.Equal("Pong", resp["type"])
}

func (s *IPCTestSuite) TestScheduleRoundTrip() {
	conn := s.dial()
	defer conn.Close()
	scanner := bufio.NewScanner(conn)

	sched := map[string]any{
		"enabled": true,
		"rules": []map[string]any{
			{"name": "Night", "days": []string{"mon"}, "start_time": "22:00", "end_time": "06:00"},
		},
	}
	resp := s.send(conn, scanner, "UpdateSchedule", map[string]any{"schedule": sched})
	s.Equal("Success", resp["type"])

	resp = s.send(conn, scanner, "GetSchedule", nil)
	s.Equal("Schedule", resp["type"])
	payload := resp["payload"].(map[string]any)
	s.Equal(true, payload["enabled"])
	rules := payload["rules"].([]any)
	s.Require().Len(rules, 1)
	rule := rules[0].(map[string]any)
	s.Equal("Night", rule["name"])
	s.Equal("22:00", rule["start_time"])
	s.Equal("06:00", rule["end_time"])
}

func (s *IPCTestSuite) TestBypassQuizFlow() {
	conn := s.dial()
	defer conn.Close()
	scanner := bufio.NewScanner(conn)

	resp := s.send(conn, scanner, "RequestBypass", map[string]any{"duration_minutes": 10})
	s.Equal("QuizChallenge", resp["type"])
	payload := resp["payload"].(map[string]any)
	challengeID := payload["challenge_id"].(string)
	s.NotEmpty(challengeID)

	resp = s.send(conn, scanner, "SubmitQuizAnswers", map[string]any{
		"challenge_id": challengeID,
		"answers":      []int{-1},
	})
	s.Equal("Error", resp["type"])
	errPayload := resp["payload"].(map[string]any)
	s.Equal("quiz_failed", errPayload["code"])

	// the consumed challenge cannot be retried.
	resp = s.send(conn, scanner, "SubmitQuizAnswers", map[string]any{
		"challenge_id": challengeID,
		"answers":      []int{-1},
	})
	errPayload = resp["payload"].(map[string]any)
	s.Equal("quiz_not_found", errPayload["code"])

	resp = s.send(conn, scanner, "CancelBypass", nil)
	s.Equal("Success", resp["type"])
}

func TestIPCSuite(t *testing.T) {
	suite.Run(t, new(IPCTestSuite))
}
