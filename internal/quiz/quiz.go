// Package quiz issues arithmetic bypass challenges, validates answers
// exactly once, and enforces expiry plus a minimum solve time as an
// anti-automation measure.
package quiz

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors returned by ValidateAnswers. Each maps to one IPC error
// code (quiz_not_found, quiz_expired, quiz_too_fast, quiz_failed);
// ErrWrongAnswerCount and ErrWrongAnswer both map to quiz_failed.
var (
	ErrNotFound         = errors.New("quiz: challenge not found")
	ErrExpired          = errors.New("quiz: challenge expired")
	ErrTooFast          = errors.New("quiz: answered too fast")
	ErrWrongAnswerCount = errors.New("quiz: wrong number of answers")
	ErrWrongAnswer      = errors.New("quiz: wrong answer")
)

// Settings configures challenge generation and validation.
type Settings struct {
	NumQuestions    int
	MinOperand      int
	MaxOperand      int
	TimeoutSeconds  int
	MinSolveSeconds int
}

// Challenge is the wire-visible representation of an issued quiz.
type Challenge struct {
	ID        string   `json:"challenge_id"`
	Questions []string `json:"questions"`
	ExpiresAt int64    `json:"expires_at"`
}

// Engine generates and validates bypass quiz challenges.
type Engine struct {
	settings Settings
	pending  *pendingStore
}

// New creates a quiz Engine with the given settings.
func New(settings Settings) *Engine {
	return &Engine{
		settings: settings,
		pending:  newPendingStore(),
	}
}

// UpdateSettings replaces the engine's question-generation settings.
func (e *Engine) UpdateSettings(s Settings) {
	e.settings = s
}

// GenerateChallenge lazily purges expired pending entries, then issues and
// stores a fresh challenge.
func (e *Engine) GenerateChallenge() (Challenge, error) {
	now := time.Now()
	e.pending.expireNow(now)

	n := e.settings.NumQuestions
	if n <= 0 {
		n = 1
	}

	questions := make([]string, 0, n)
	answers := make([]int, 0, n)
	for i := 0; i < n; i++ {
		display, answer, err := e.generateQuestion()
		if err != nil {
			return Challenge{}, err
		}
		questions = append(questions, display)
		answers = append(answers, answer)
	}

	id := uuid.NewString()
	expiresAt := now.Add(time.Duration(e.settings.TimeoutSeconds) * time.Second)

	e.pending.add(&pendingEntry{
		id:        id,
		answers:   answers,
		issuedAt:  now,
		expiresAt: expiresAt,
	})

	return Challenge{
		ID:        id,
		Questions: questions,
		ExpiresAt: expiresAt.Unix(),
	}, nil
}

// ValidateAnswers destructively validates the answers submitted for a
// challenge: the pending entry is consumed on every outcome, success or
// failure alike, so a used-up or failed challenge can never be retried.
func (e *Engine) ValidateAnswers(id string, answers []int) error {
	entry, ok := e.pending.remove(id)
	if !ok {
		return ErrNotFound
	}

	if time.Now().After(entry.expiresAt) {
		return ErrExpired
	}

	if time.Since(entry.issuedAt) < time.Duration(e.settings.MinSolveSeconds)*time.Second {
		return ErrTooFast
	}

	if len(answers) != len(entry.answers) {
		return ErrWrongAnswerCount
	}

	for i, want := range entry.answers {
		if answers[i] != want {
			return ErrWrongAnswer
		}
	}

	return nil
}

type operation int

const (
	opAdd operation = iota
	opSubtract
	opMultiply
	numOperations
)

func (e *Engine) generateQuestion() (display string, answer int, err error) {
	op, err := randomOperation()
	if err != nil {
		return "", 0, err
	}

	switch op {
	case opAdd:
		a, err := randomInt(e.settings.MinOperand, e.settings.MaxOperand)
		if err != nil {
			return "", 0, err
		}
		b, err := randomInt(e.settings.MinOperand, e.settings.MaxOperand)
		if err != nil {
			return "", 0, err
		}
		return fmt.Sprintf("%d + %d = ?", a, b), a + b, nil

	case opSubtract:
		a, err := randomInt(e.settings.MinOperand, e.settings.MaxOperand)
		if err != nil {
			return "", 0, err
		}
		b, err := randomInt(e.settings.MinOperand, a)
		if err != nil {
			return "", 0, err
		}
		return fmt.Sprintf("%d - %d = ?", a, b), a - b, nil

	default: // opMultiply
		bound := isqrt(e.settings.MaxOperand)
		if bound < 12 {
			bound = 12
		}
		a, err := randomInt(2, bound)
		if err != nil {
			return "", 0, err
		}
		b, err := randomInt(2, bound)
		if err != nil {
			return "", 0, err
		}
		return fmt.Sprintf("%d × %d = ?", a, b), a * b, nil
	}
}

// randomOperation picks uniformly among add/subtract/multiply using a
// crypto-random source, since guessing resistance is a security property
// of this component, not just a convenience.
func randomOperation() (operation, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(numOperations)))
	if err != nil {
		return 0, fmt.Errorf("quiz: selecting operation: %w", err)
	}
	return operation(n.Int64()), nil
}

// randomInt returns a crypto-random integer in [lo, hi] inclusive. If
// hi < lo, lo is returned.
func randomInt(lo, hi int) (int, error) {
	if hi < lo {
		return lo, nil
	}
	span := int64(hi-lo) + 1
	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return 0, fmt.Errorf("quiz: selecting operand: %w", err)
	}
	return lo + int(n.Int64()), nil
}

// isqrt returns floor(sqrt(n)) for n >= 0.
func isqrt(n int) int {
	if n <= 0 {
		return 0
	}
	x := n
	for x*x > n {
		x = (x + n/x) / 2
	}
	for (x+1)*(x+1) <= n {
		x++
	}
	return x
}
