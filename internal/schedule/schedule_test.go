package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/lc/blockandfocus/internal/schedule"
)

type ScheduleTestSuite struct {
	suite.Suite
}

func days(ws ...time.Weekday) map[time.Weekday]struct{} {
	out := make(map[time.Weekday]struct{}, len(ws))
	for _, w := range ws {
		out[w] = struct{}{}
	}
	return out
}

func mustParse(s string) schedule.MinuteOfDay {
	m, err := schedule.ParseHHMM(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (s *ScheduleTestSuite) TestMinuteOfDayRoundTrip() {
	for _, hhmm := range []string{"00:00", "09:05", "23:59", "12:00"} {
		m, err := schedule.ParseHHMM(hhmm)
		s.Require().NoError(err)
		s.Equal(hhmm, m.String())
	}
}

func (s *ScheduleTestSuite) TestDisabledScheduleAlwaysBlocks() {
	e := schedule.New(false, nil)
	s.True(e.IsBlockingTime(time.Now()))
	_, ok := e.ActiveRuleName(time.Now())
	s.False(ok)
}

func (s *ScheduleTestSuite) TestEnabledNoRulesNeverBlocks() {
	e := schedule.New(true, nil)
	s.False(e.IsBlockingTime(time.Now()))
	_, ok := e.ActiveRuleName(time.Now())
	s.False(ok)
}

func (s *ScheduleTestSuite) TestNormalWindow() {
	rule := schedule.Rule{
		Name:  "Work",
		Days:  days(time.Monday),
		Start: mustParse("09:00"),
		End:   mustParse("17:00"),
	}
	e := schedule.New(true, []schedule.Rule{rule})

	inside := time.Date(2026, 8, 3, 10, 0, 0, 0, time.Local) // Monday
	s.Require().Equal(time.Monday, inside.Weekday())
	s.True(e.IsBlockingTime(inside))
	name, ok := e.ActiveRuleName(inside)
	s.True(ok)
	s.Equal("Work", name)

	outside := time.Date(2026, 8, 3, 18, 0, 0, 0, time.Local)
	s.False(e.IsBlockingTime(outside))
}

func (s *ScheduleTestSuite) TestOvernightWindow() {
	rule := schedule.Rule{
		Name:  "Night",
		Days:  days(time.Monday),
		Start: mustParse("22:00"),
		End:   mustParse("06:00"),
	}
	e := schedule.New(true, []schedule.Rule{rule})

	late := time.Date(2026, 8, 3, 23, 0, 0, 0, time.Local) // Monday 23:00
	s.True(e.IsBlockingTime(late))
	name, ok := e.ActiveRuleName(late)
	s.True(ok)
	s.Equal("Night", name)

	midday := time.Date(2026, 8, 3, 12, 0, 0, 0, time.Local) // Monday 12:00
	s.False(e.IsBlockingTime(midday))
}

func (s *ScheduleTestSuite) TestWrongDayDoesNotMatch() {
	rule := schedule.Rule{
		Name:  "Work",
		Days:  days(time.Tuesday),
		Start: mustParse("09:00"),
		End:   mustParse("17:00"),
	}
	e := schedule.New(true, []schedule.Rule{rule})
	monday := time.Date(2026, 8, 3, 10, 0, 0, 0, time.Local)
	s.False(e.IsBlockingTime(monday))
}

func (s *ScheduleTestSuite) TestActiveRuleNameIffBlockingTime() {
	rule := schedule.Rule{
		Name:  "Work",
		Days:  days(time.Monday),
		Start: mustParse("09:00"),
		End:   mustParse("17:00"),
	}
	e := schedule.New(true, []schedule.Rule{rule})

	for _, t := range []time.Time{
		time.Date(2026, 8, 3, 10, 0, 0, 0, time.Local),
		time.Date(2026, 8, 3, 20, 0, 0, 0, time.Local),
	} {
		_, ok := e.ActiveRuleName(t)
		s.Equal(e.IsBlockingTime(t), ok)
	}
}

func TestScheduleSuite(t *testing.T) {
	suite.Run(t, new(ScheduleTestSuite))
}
