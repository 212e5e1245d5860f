package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRecounter struct{ calls int }

func (s *stubRecounter) RecountRecent(context.Context) int {
	s.calls++
	return 3
}

type stubPurger struct {
	calls int
	err   error
}

func (s *stubPurger) PurgeExpired(context.Context) (int64, error) {
	s.calls++
	return 2, s.err
}

func TestSchedulerRegistersJobs(t *testing.T) {
	s := NewScheduler(&stubRecounter{}, &stubPurger{}, zerolog.Nop())
	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 2)
	s.Stop()()

	// 没有依赖时不注册任务
	empty := NewScheduler(nil, nil, zerolog.Nop())
	require.NoError(t, empty.Start())
	assert.Empty(t, empty.cron.Entries())
	empty.Stop()()
}

func TestJobsCallDependencies(t *testing.T) {
	rc := &stubRecounter{}
	pg := &stubPurger{err: errors.New("db down")}
	s := NewScheduler(rc, pg, zerolog.Nop())

	s.recountCounters()
	s.purgeSessions()
	assert.Equal(t, 1, rc.calls)
	assert.Equal(t, 1, pg.calls)
}
