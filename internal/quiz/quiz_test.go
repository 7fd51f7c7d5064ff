package quiz_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/lc/blockandfocus/internal/quiz"
)

type QuizTestSuite struct {
	suite.Suite
}

func (s *QuizTestSuite) settings() quiz.Settings {
	return quiz.Settings{
		NumQuestions:    3,
		MinOperand:      1,
		MaxOperand:      50,
		TimeoutSeconds:  60,
		MinSolveSeconds: 0,
	}
}

func (s *QuizTestSuite) TestGenerateChallengeShape() {
	e := quiz.New(s.settings())
	c, err := e.GenerateChallenge()
	s.Require().NoError(err)
	s.Len(c.Questions, 3)
	s.NotEmpty(c.ID)
	s.Greater(c.ExpiresAt, time.Now().Unix()-1)
}

func (s *QuizTestSuite) TestValidateUnknownIDNotFound() {
	e := quiz.New(s.settings())
	err := e.ValidateAnswers("nonexistent", []int{1})
	s.ErrorIs(err, quiz.ErrNotFound)
}

func (s *QuizTestSuite) TestValidateConsumesOnAnyOutcome() {
	// Operands are random, so the answers can't be predicted from outside
	// the package; instead assert double-validation always yields NotFound
	// regardless of the first outcome.
	e := quiz.New(s.settings())
	c, err := e.GenerateChallenge()
	s.Require().NoError(err)

	// First call consumes the entry (answer is almost certainly wrong,
	// which is fine -- we only care that the id cannot be reused).
	_ = e.ValidateAnswers(c.ID, make([]int, len(c.Questions)))

	err = e.ValidateAnswers(c.ID, make([]int, len(c.Questions)))
	s.ErrorIs(err, quiz.ErrNotFound)
}

func (s *QuizTestSuite) TestValidateWrongAnswerCount() {
	e := quiz.New(s.settings())
	c, err := e.GenerateChallenge()
	s.Require().NoError(err)

	err = e.ValidateAnswers(c.ID, []int{1})
	s.ErrorIs(err, quiz.ErrWrongAnswerCount)
}

func (s *QuizTestSuite) TestValidateTooFast() {
	settings := s.settings()
	settings.MinSolveSeconds = 3600 // impossible to beat in a unit test
	e := quiz.New(settings)

	c, err := e.GenerateChallenge()
	s.Require().NoError(err)

	err = e.ValidateAnswers(c.ID, make([]int, len(c.Questions)))
	s.ErrorIs(err, quiz.ErrTooFast)
}

func (s *QuizTestSuite) TestValidateExpired() {
	settings := s.settings()
	settings.TimeoutSeconds = 0
	e := quiz.New(settings)

	c, err := e.GenerateChallenge()
	s.Require().NoError(err)

	time.Sleep(5 * time.Millisecond)

	err = e.ValidateAnswers(c.ID, make([]int, len(c.Questions)))
	s.ErrorIs(err, quiz.ErrExpired)
}

func (s *QuizTestSuite) TestMultiplyOperandBound() {
	// max_operand small enough that the multiply floor (max(sqrt, 12))
	// dominates; just confirm generation doesn't error across many draws
	// (exercises the isqrt/min-bound arithmetic paths).
	settings := quiz.Settings{
		NumQuestions:    20,
		MinOperand:      1,
		MaxOperand:      5,
		TimeoutSeconds:  60,
		MinSolveSeconds: 0,
	}
	e := quiz.New(settings)
	c, err := e.GenerateChallenge()
	s.Require().NoError(err)
	s.Len(c.Questions, 20)
}

func TestQuizSuite(t *testing.T) {
	suite.Run(t, new(QuizTestSuite))
}
