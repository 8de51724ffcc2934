// Package scheduler seeds and drives the re-scan cadence: one discovery run
// per broker per profile, advanced from the moment a scan starts so backlogs
// never burst.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"erasure/internal/domain"
	"erasure/internal/engine"
)

type Scheduler struct {
	Engine     engine.Engine
	DeadLetter *DeadLetter
	Log        *slog.Logger
}

func New(e engine.Engine, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		Engine:     e,
		DeadLetter: NewDeadLetter(e.Config.Scheduler.MaxFailures),
		Log:        log,
	}
}

// InitializeForProfile seeds a schedule per plan-bearing catalog broker.
// Brokers without a plan cannot be scanned automatically and are skipped.
// Existing schedules keep their cadence.
func (s *Scheduler) InitializeForProfile(ctx context.Context, profileID string) (int, error) {
	if s.Engine.Catalog == nil {
		return 0, fmt.Errorf("catalog not loaded")
	}
	now := s.Engine.Now().UTC().Format(time.RFC3339)
	seeded := 0
	for _, b := range s.Engine.Catalog.All() {
		if b.PlanFile == "" {
			continue
		}
		err := s.Engine.Repo.InsertScheduleIfAbsent(ctx, domain.ScanSchedule{
			ScheduleID:   uuid.NewString(),
			BrokerID:     b.ID,
			ProfileID:    profileID,
			ScanType:     "discovery",
			NextRunAt:    now,
			IntervalDays: b.RecheckDays,
			Enabled:      true,
			CreatedAt:    now,
		})
		if err != nil {
			return seeded, err
		}
		seeded++
	}
	return seeded, nil
}

// Run polls for due schedules until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := time.Duration(s.Engine.Config.Scheduler.PollIntervalSeconds) * time.Second
	for {
		if _, err := s.Poll(ctx); err != nil && ctx.Err() == nil {
			s.Log.Error("scheduler poll failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// Poll starts runs for due schedules. At most one run per broker per cycle,
// and the cadence advances from now regardless of whether a new run was
// actually created, so duplicate triggers cannot pile up.
func (s *Scheduler) Poll(ctx context.Context) (int, error) {
	e := s.Engine
	now := e.Now().UTC()
	due, err := e.Repo.DueSchedules(ctx, now.Format(time.RFC3339), 0)
	if err != nil {
		return 0, err
	}

	started := 0
	seenBroker := map[string]bool{}
	for _, sched := range due {
		if seenBroker[sched.BrokerID] {
			continue
		}
		seenBroker[sched.BrokerID] = true

		if err := s.observeLastRun(ctx, sched); err != nil {
			return started, err
		}
		if s.DeadLetter.Failures(sched.BrokerID) >= e.Config.Scheduler.MaxFailures {
			s.Log.Warn("broker dead-lettered, disabling schedules", "broker_id", sched.BrokerID)
			if err := e.Repo.SetSchedulesEnabledForBroker(ctx, sched.BrokerID, false); err != nil {
				return started, err
			}
			continue
		}

		planID := "broker_" + sched.BrokerID
		run, created, err := e.StartRun(ctx, engine.StartRunOptions{
			PlanID: planID,
			Params: map[string]any{
				"profile_id": sched.ProfileID,
				"broker_id":  sched.BrokerID,
			},
			RequestedBy:    "scheduler",
			IdempotencyKey: fmt.Sprintf("sched:%s:%s", sched.ScheduleID, sched.NextRunAt),
			ActorID:        "scheduler",
		})

		var lastRunID *string
		if err != nil {
			s.Log.Error("scan run start failed", "broker_id", sched.BrokerID, "err", err)
			if s.DeadLetter.RecordFailure(sched.BrokerID) {
				if err := e.Repo.SetSchedulesEnabledForBroker(ctx, sched.BrokerID, false); err != nil {
					return started, err
				}
			}
		} else {
			lastRunID = &run.RunID
			if created {
				started++
			}
		}

		next := now.Add(time.Duration(sched.IntervalDays) * 24 * time.Hour).Format(time.RFC3339)
		if err := e.Repo.MarkScheduleStarted(ctx, sched.ScheduleID, lastRunID, now.Format(time.RFC3339), next); err != nil {
			return started, err
		}
	}
	return started, nil
}

// observeLastRun feeds the previous scan's terminal status into dead-letter
// accounting before the next scan starts.
func (s *Scheduler) observeLastRun(ctx context.Context, sched domain.ScanSchedule) error {
	if sched.LastRunID == nil {
		return nil
	}
	run, err := s.Engine.Repo.GetRun(ctx, *sched.LastRunID)
	if err != nil {
		return nil
	}
	switch run.Status {
	case domain.RunSucceeded:
		s.DeadLetter.RecordSuccess(sched.BrokerID)
	case domain.RunFailed:
		s.DeadLetter.RecordFailure(sched.BrokerID)
	}
	return nil
}
