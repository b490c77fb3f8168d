// FilePath: internal/server/server.go
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/itsatony/relayhub/internal/config"
	"github.com/itsatony/relayhub/internal/errors"
	"github.com/itsatony/relayhub/internal/eventor"
	"github.com/itsatony/relayhub/internal/models"
	"github.com/itsatony/relayhub/internal/notify"
	"github.com/itsatony/relayhub/internal/presence"
	"github.com/itsatony/relayhub/internal/profiles"
	"github.com/itsatony/relayhub/internal/reporting"
	"github.com/itsatony/relayhub/internal/session"
	"github.com/itsatony/relayhub/internal/tokens"
	"github.com/robfig/cron/v3"
	nuts "github.com/vaudience/go-nuts"
)

// Trimmer re-caps the reporting retention, run by the periodic worker.
type Trimmer interface {
	TrimAll(ctx context.Context) error
}

// Deps bundles the collaborators the relay core is wired with. Profiles,
// TokenRepo and Trimmer are optional; without them the server runs purely
// in memory.
type Deps struct {
	Registry   *session.Registry
	Tokens     *tokens.Manager
	TokenRepo  tokens.Repository
	Profiles   profiles.Repository
	Presence   *presence.Tracker
	Dispatcher notify.Dispatcher
	Collector  reporting.Collector
	Trimmer    Trimmer
}

// Server owns the two framed TCP listeners (hardware and app side) and
// the periodic workers. Everything per-account runs on that account's
// session loop; the server itself only accepts, authenticates and posts.
type Server struct {
	cfg        *config.Config
	registry   *session.Registry
	tokens     *tokens.Manager
	tokenRepo  tokens.Repository
	profiles   profiles.Repository
	presence   *presence.Tracker
	engine     *eventor.Engine
	dispatcher notify.Dispatcher
	collector  reporting.Collector
	trimmer    Trimmer

	hwListener  net.Listener
	appListener net.Listener
	cron        *cron.Cron

	wg   sync.WaitGroup
	done chan struct{}
}

// New creates a server instance. The rule engine's actions feed back into
// the server itself, so one triggering write can cascade.
func New(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:        cfg,
		registry:   deps.Registry,
		tokens:     deps.Tokens,
		tokenRepo:  deps.TokenRepo,
		profiles:   deps.Profiles,
		presence:   deps.Presence,
		dispatcher: deps.Dispatcher,
		collector:  deps.Collector,
		trimmer:    deps.Trimmer,
		done:       make(chan struct{}),
	}
	s.engine = eventor.New(s)
	return s
}

// Start seeds the token table, binds both listeners and launches the
// accept loops and workers. It returns once listening, not on shutdown.
func (s *Server) Start() error {
	if s.tokenRepo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		seeded, err := s.tokenRepo.LoadAll(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("error seeding token table: %w", err)
		}
		for token, a := range seeded {
			s.tokens.Seed(token, a)
		}
		nuts.L.Infof("[Server] Seeded %d device token(s)", len(seeded))
	}

	hwAddr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.HardwarePort)
	appAddr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.AppPort)

	var err error
	if s.hwListener, err = net.Listen("tcp", hwAddr); err != nil {
		return fmt.Errorf("error binding hardware listener: %w", err)
	}
	if s.appListener, err = net.Listen("tcp", appAddr); err != nil {
		s.hwListener.Close()
		return fmt.Errorf("error binding app listener: %w", err)
	}

	nuts.L.Infof("[Server] Hardware listener on %s", hwAddr)
	nuts.L.Infof("[Server] App listener on %s", appAddr)

	s.wg.Add(2)
	go s.acceptLoop(s.hwListener, s.serveHardware)
	go s.acceptLoop(s.appListener, s.serveApp)

	s.startWorkers()
	return nil
}

func (s *Server) acceptLoop(l net.Listener, serve func(net.Conn)) {
	defer s.wg.Done()
	for {
		nc, err := l.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			nuts.L.Errorf("[Server] Accept failed: %v", err)
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			serve(nc)
		}()
	}
}

// Shutdown stops accepting, flushes profiles and closes every session.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.done)
	if s.hwListener != nil {
		s.hwListener.Close()
	}
	if s.appListener != nil {
		s.appListener.Close()
	}
	if s.cron != nil {
		s.cron.Stop()
	}

	s.flushProfiles(ctx)
	s.presence.Shutdown()
	s.registry.Close()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		nuts.L.Infof("[Server] Shut down cleanly")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// loadProfile fetches the persisted profile of an account, falling back
// to an empty one. Runs once per session creation.
func (s *Server) loadProfile(email string) *models.Profile {
	if s.profiles == nil {
		return &models.Profile{}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	profile, err := s.profiles.Load(ctx, email)
	if err != nil {
		if !errors.IsNotFound(err) {
			nuts.L.Errorf("[Server] Profile load for %s failed: %v", email, err)
		}
		return &models.Profile{}
	}
	return profile
}
