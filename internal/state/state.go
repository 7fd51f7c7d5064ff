// Package state owns AppState, the single container for every piece of
// daemon state: config, blocklist matcher, schedule, quiz engine, policy
// evaluator, bypass deadline, and query counters. All cross-component
// mutations (e.g. "add a domain to both the config and the matcher") go
// through AppState's single readers-writer lock so that the rest of the
// daemon never observes a half-applied change.
package state

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/lc/blockandfocus/internal/config"
	"github.com/lc/blockandfocus/internal/matcher"
	"github.com/lc/blockandfocus/internal/policy"
	"github.com/lc/blockandfocus/internal/quiz"
	"github.com/lc/blockandfocus/internal/schedule"
)

const defaultBypassDuration = 15 * time.Minute

// Stats holds the process-lifetime query counters.
type Stats struct {
	QueriesBlocked   *atomic.Uint64
	QueriesForwarded *atomic.Uint64
}

func newStats() Stats {
	return Stats{
		QueriesBlocked:   atomic.NewUint64(0),
		QueriesForwarded: atomic.NewUint64(0),
	}
}

// Status is the read-only snapshot GetStatus (IPC) hands back.
type Status struct {
	BlockingActive     bool
	BlockedDomainCount int
	QueriesBlocked     uint64
	QueriesForwarded   uint64
	BypassUntil        *time.Time
	ActiveScheduleRule string
	ScheduleEnabled    bool
}

// AppState is the single owning container for the config store, matcher,
// schedule engine, quiz engine, and policy evaluator, plus the query
// counters and bypass deadline.
type AppState struct {
	mu sync.RWMutex

	cfgStore config.Store
	matcher  *matcher.Matcher
	schedule *schedule.Engine
	quiz     *quiz.Engine
	policy   *policy.Evaluator

	bypassDeadline *time.Time
	stats          Stats
}

// New builds an AppState from an already-loaded config and a config
// Store used for persistence.
func New(cfg *config.Config, cfgStore config.Store) *AppState {
	sched := schedule.New(cfg.Schedule.Enabled, toScheduleRules(cfg.Schedule.Rules))
	return &AppState{
		cfgStore: cfgStore,
		matcher:  matcher.New(cfg.Blocking.Domains),
		schedule: sched,
		quiz: quiz.New(quiz.Settings{
			NumQuestions:    cfg.Quiz.NumQuestions,
			MinOperand:      cfg.Quiz.MinOperand,
			MaxOperand:      cfg.Quiz.MaxOperand,
			TimeoutSeconds:  cfg.Quiz.TimeoutSeconds,
			MinSolveSeconds: cfg.Quiz.MinSolveSeconds,
		}),
		policy: policy.New(sched),
		stats:  newStats(),
	}
}

// IsBlockingActive reports whether queries should currently be blocked.
func (a *AppState) IsBlockingActive() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	cfg := a.cfgStore.Snapshot()
	return a.policy.IsBlockingActive(cfg.Blocking.Enabled, a.bypassDeadline)
}

// MatchesBlocklist reports whether name is on the blocklist.
func (a *AppState) MatchesBlocklist(name string) bool {
	return a.matcher.Match(name)
}

// RecordBlocked increments the blocked-query counter.
func (a *AppState) RecordBlocked() { a.stats.QueriesBlocked.Inc() }

// RecordForwarded increments the forwarded-query counter.
func (a *AppState) RecordForwarded() { a.stats.QueriesForwarded.Inc() }

// Status returns a point-in-time snapshot for GetStatus.
func (a *AppState) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()

	cfg := a.cfgStore.Snapshot()
	now := time.Now()
	ruleName, _ := a.schedule.ActiveRuleName(now)

	var bypassUntil *time.Time
	if a.bypassDeadline != nil && now.Before(*a.bypassDeadline) {
		t := *a.bypassDeadline
		bypassUntil = &t
	}

	return Status{
		BlockingActive:     a.policy.IsBlockingActive(cfg.Blocking.Enabled, a.bypassDeadline),
		BlockedDomainCount: len(cfg.Blocking.Domains),
		QueriesBlocked:     a.stats.QueriesBlocked.Load(),
		QueriesForwarded:   a.stats.QueriesForwarded.Load(),
		BypassUntil:        bypassUntil,
		ActiveScheduleRule: ruleName,
		ScheduleEnabled:    cfg.Schedule.Enabled,
	}
}

// Blocklist returns the current normalized blocklist.
func (a *AppState) Blocklist() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfgStore.Snapshot().Blocking.Domains
}

// AddDomain adds domain to both the config and the matcher atomically.
func (a *AppState) AddDomain(domain string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.cfgStore.AddDomain(domain); err != nil {
		return err
	}
	a.matcher.UpdateDomains(a.cfgStore.Snapshot().Blocking.Domains)
	return nil
}

// RemoveDomain removes domain from both the config and the matcher
// atomically, reporting whether anything was actually removed.
func (a *AppState) RemoveDomain(domain string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	removed, err := a.cfgStore.RemoveDomain(domain)
	if err != nil {
		return false, err
	}
	a.matcher.UpdateDomains(a.cfgStore.Snapshot().Blocking.Domains)
	return removed, nil
}

// Schedule returns the current schedule configuration.
func (a *AppState) Schedule() config.ScheduleConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfgStore.Snapshot().Schedule
}

// UpdateSchedule persists a new schedule and applies it to the schedule
// engine atomically.
func (a *AppState) UpdateSchedule(sc config.ScheduleConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.cfgStore.Update(func(c *config.Config) error {
		c.Schedule = sc
		return nil
	}); err != nil {
		return err
	}
	committed := a.cfgStore.Snapshot().Schedule
	a.schedule.Update(committed.Enabled, toScheduleRules(committed.Rules))
	return nil
}

// RequestBypass issues a fresh quiz challenge. durationMinutes is accepted
// per the wire protocol but is not used to compute the eventual bypass
// deadline -- see DESIGN.md's open-question decision; a fixed 15-minute
// bypass is granted on success regardless of what was requested here.
func (a *AppState) RequestBypass(_ int) (quiz.Challenge, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.quiz.GenerateChallenge()
}

// SubmitQuizAnswers validates the answers for id. On success, it sets the
// bypass deadline to now+15m.
func (a *AppState) SubmitQuizAnswers(id string, answers []int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.quiz.ValidateAnswers(id, answers); err != nil {
		return err
	}
	deadline := a.policy.BypassDeadline(defaultBypassDuration)
	a.bypassDeadline = &deadline
	return nil
}

// CancelBypass clears any active bypass deadline.
func (a *AppState) CancelBypass() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bypassDeadline = nil
}

func toScheduleRules(rules []config.ScheduleRule) []schedule.Rule {
	out := make([]schedule.Rule, 0, len(rules))
	for _, r := range rules {
		days := make(map[time.Weekday]struct{}, len(r.Days))
		for _, d := range r.Days {
			w, err := schedule.ParseWeekday(d)
			if err != nil {
				continue
			}
			days[w] = struct{}{}
		}
		start, err := schedule.ParseHHMM(r.StartTime)
		if err != nil {
			continue
		}
		end, err := schedule.ParseHHMM(r.EndTime)
		if err != nil {
			continue
		}
		out = append(out, schedule.Rule{
			ID:    r.ID,
			Name:  r.Name,
			Days:  days,
			Start: start,
			End:   end,
		})
	}
	return out
}
