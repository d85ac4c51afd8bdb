package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/award"
	"github.com/sautiplus/backoffice/core/claim"
	"github.com/sautiplus/backoffice/core/credit"
	"github.com/sautiplus/backoffice/core/sacco"
	"github.com/sautiplus/backoffice/core/staff"
	"github.com/sautiplus/backoffice/core/ticket"
)

type (
	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		Translator     ut.Translator
		DB             core.Pinger
		DisableReqLogs bool

		StaffSvc  *staff.Service
		CreditSvc *credit.Service
		SaccoSvc  *sacco.Service
		TicketSvc *ticket.Service
		ClaimSvc  *claim.Service
		AwardSvc  *award.Service
	}

	Server struct {
		opts     *Options
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ http.Handler = (*Server)(nil) // interface compliance check

func NewServer(opts *Options) *Server {
	s := &Server{
		opts:     opts,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)
	s.app.GET("/health", s.health)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(newJWTConfig(conf))

	registerStaffAPI(v1, jwt, s.opts.StaffSvc, conf)
	registerCreditAPI(v1, jwt, s.opts.CreditSvc, s.opts.StaffSvc)
	registerSaccoAPI(v1, jwt, s.opts.SaccoSvc, s.opts.StaffSvc)
	registerTicketAPI(v1, jwt, s.opts.TicketSvc, s.opts.StaffSvc)
	registerClaimAPI(v1, jwt, s.opts.ClaimSvc, s.opts.StaffSvc)
	registerAwardAPI(v1, jwt, s.opts.AwardSvc, s.opts.StaffSvc)
}

// Start blocks until the server stops. Unexpected errors are sent to Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.opts.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- errors.Wrap(err, "starting server")
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

// SignalShutdown asks the owner of the server to shut it down.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already signalled
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.opts.Conf.AppName+" API!")
}

func (s *Server) health(ctx echo.Context) error {
	status := echo.Map{"status": "ok", "build": s.opts.Conf.Build}
	if s.opts.DB != nil {
		if err := s.opts.DB.PingContext(ctx.Request().Context()); err != nil {
			s.opts.Logger.Warn("health check failed", err)
			status["status"] = "db not ready"
			return ctx.JSON(http.StatusServiceUnavailable, status)
		}
	}
	return ctx.JSON(http.StatusOK, status)
}
