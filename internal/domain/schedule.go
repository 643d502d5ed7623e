package domain

import (
	"time"

	"github.com/google/uuid"
)

// ScheduledPlan - план, который запускается по cron-выражению.
//
// Расписания задаются в конфигурации, например ночной reset_portfolio:
//
//	name: nightly-reset
//	cron: "0 3 * * *"
//	plan: {stages: [{tasks: [{tool_name: reset_portfolio, parameters: {portfolio_id: P1}}]}]}
type ScheduledPlan struct {
	// Name - уникальное имя расписания.
	Name string `json:"name" yaml:"name"`

	// CronExpr - стандартное cron-выражение из пяти полей.
	CronExpr string `json:"cron" yaml:"cron"`

	// Timezone - часовой пояс; по умолчанию UTC.
	Timezone string `json:"timezone,omitempty" yaml:"timezone,omitempty"`

	// Enabled - выключенные расписания scheduler пропускает.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Plan - план для запуска.
	Plan Plan `json:"plan" yaml:"plan"`

	// NextDueAt - время следующего запуска.
	NextDueAt *time.Time `json:"next_due_at,omitempty" yaml:"-"`

	// LastRunAt - время последнего запуска.
	LastRunAt *time.Time `json:"last_run_at,omitempty" yaml:"-"`

	// LastRunID - ID последнего созданного run.
	LastRunID *uuid.UUID `json:"last_run_id,omitempty" yaml:"-"`
}

// IsDue проверяет, пора ли запускать.
func (s *ScheduledPlan) IsDue(now time.Time) bool {
	if !s.Enabled || s.NextDueAt == nil {
		return false
	}
	return !now.Before(*s.NextDueAt)
}

// RecordRun записывает информацию о запуске.
func (s *ScheduledPlan) RecordRun(runID uuid.UUID, at, nextDue time.Time) {
	s.LastRunAt = &at
	s.LastRunID = &runID
	s.NextDueAt = &nextDue
}
