package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Recounter 计数校正
type Recounter interface {
	RecountRecent(ctx context.Context) int
}

// SessionPurger 清理过期会话
type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type Scheduler struct {
	cron     *cron.Cron
	counters Recounter
	sessions SessionPurger
	log      zerolog.Logger
}

func NewScheduler(counters Recounter, sessions SessionPurger, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:     c,
		counters: counters,
		sessions: sessions,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	if s.counters != nil {
		if _, err := s.cron.AddFunc("0 0 3 * * *", s.recountCounters); err != nil { // 每天凌晨 3 点
			return err
		}
	}
	if s.sessions != nil {
		if _, err := s.cron.AddFunc("0 0 */1 * * *", s.purgeSessions); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() context.CancelFunc {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	go func() {
		<-s.cron.Stop().Done()
		cancel()
	}()
	return func() {
		<-ctx.Done()
	}
}

func (s *Scheduler) recountCounters() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	s.counters.RecountRecent(ctx)
}

func (s *Scheduler) purgeSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := s.sessions.PurgeExpired(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("purge expired sessions failed")
		return
	}
	if n > 0 {
		s.log.Info().Int64("count", n).Msg("purged expired sessions")
	}
}
