// FilePath: internal/server/workers.go
package server

import (
	"context"
	"encoding/json"
	"runtime"
	"time"

	"github.com/itsatony/relayhub/internal/session"
	"github.com/robfig/cron/v3"
	nuts "github.com/vaudience/go-nuts"
)

// startWorkers schedules the periodic jobs: a stats line, reporting
// retention trimming and profile persistence.
func (s *Server) startWorkers() {
	s.cron = cron.New()

	if _, err := s.cron.AddFunc(s.cfg.Workers.StatsSpec, s.logStats); err != nil {
		nuts.L.Errorf("[Workers] Invalid stats spec %q: %v", s.cfg.Workers.StatsSpec, err)
	}
	if s.trimmer != nil {
		if _, err := s.cron.AddFunc(s.cfg.Workers.TrimSpec, s.trimReporting); err != nil {
			nuts.L.Errorf("[Workers] Invalid trim spec %q: %v", s.cfg.Workers.TrimSpec, err)
		}
	}
	if s.profiles != nil {
		if _, err := s.cron.AddFunc(s.cfg.Workers.SaveSpec, s.saveProfiles); err != nil {
			nuts.L.Errorf("[Workers] Invalid save spec %q: %v", s.cfg.Workers.SaveSpec, err)
		}
	}

	s.cron.Start()
}

func (s *Server) logStats() {
	sessions := s.registry.Count()
	hardware, apps := 0, 0
	s.registry.ForEach(func(sess *session.Session) {
		hardware += sess.HardwareCount()
		apps += sess.AppCount()
	})
	nuts.L.Infof("[Stats] sessions=%d hardware=%d apps=%d tokens=%d pending_offline=%d goroutines=%d",
		sessions, hardware, apps, s.tokens.Count(), s.presence.PendingTimers(), runtime.NumGoroutine())
}

func (s *Server) trimReporting() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := s.trimmer.TrimAll(ctx); err != nil {
		nuts.L.Warnf("[Workers] Reporting trim failed: %v", err)
	}
}

// flushProfiles persists every live profile and does not return until each
// snapshot is written (or ctx expires). Marshaling still runs on the owning
// session loop; the database write happens inline. Used on shutdown, where
// the registry closes right after and posted work would otherwise be lost.
func (s *Server) flushProfiles(ctx context.Context) {
	if s.profiles == nil {
		return
	}
	s.registry.ForEach(func(sess *session.Session) {
		snapshot := make(chan []byte, 1)
		sess.Post(func() {
			raw, err := json.Marshal(sess.Profile)
			if err != nil {
				nuts.L.Errorf("[Workers] Profile snapshot for %s failed: %v", sess.Email, err)
				close(snapshot)
				return
			}
			snapshot <- raw
		})

		select {
		case raw, ok := <-snapshot:
			if !ok {
				return
			}
			if err := s.profiles.SaveRaw(ctx, sess.Email, raw); err != nil {
				nuts.L.Errorf("[Workers] Profile flush for %s failed: %v", sess.Email, err)
			}
		case <-ctx.Done():
			nuts.L.Warnf("[Workers] Profile flush for %s abandoned: %v", sess.Email, ctx.Err())
		}
	})
}

// saveProfiles snapshots every live profile. Marshaling runs on the
// owning session loop so it never races a handler; the database write
// happens off-loop.
func (s *Server) saveProfiles() {
	if s.profiles == nil {
		return
	}
	s.registry.ForEach(func(sess *session.Session) {
		sess.Post(func() {
			raw, err := json.Marshal(sess.Profile)
			if err != nil {
				nuts.L.Errorf("[Workers] Profile snapshot for %s failed: %v", sess.Email, err)
				return
			}
			email := sess.Email
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := s.profiles.SaveRaw(ctx, email, raw); err != nil {
					nuts.L.Errorf("[Workers] Profile save for %s failed: %v", email, err)
				}
			}()
		})
	})
}
