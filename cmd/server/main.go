package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jonkersai/website/blog"
	"github.com/jonkersai/website/contact"
	"github.com/jonkersai/website/internal/bootstrap"
	"github.com/jonkersai/website/internal/config"
	"github.com/jonkersai/website/internal/logging"
	"github.com/jonkersai/website/server"
	"github.com/jonkersai/website/sitemap"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "optional config file (yaml, json or toml)")
	flag.Parse()

	for attempt := 1; ; attempt++ {
		err := run(*configPath)
		if err == nil {
			break
		}
		if !errors.Is(err, errPanic) || attempt >= 3 {
			log.Fatal().Err(err).Msg("Error running server")
		}
		log.Err(err).Int("attempt", attempt).Msg("Restarting server")
		time.Sleep(1 * time.Second)
	}
	log.Info().Msg("Server stopped")
}

var errPanic = errors.New("panic recovered")

func run(configPath string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errPanic
		}
	}()

	c, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config.Load: %w", err)
	}
	logging.Setup(c.GetEnv(), c.GetLogLevel())
	displayAppname(c.GetAppName())

	ctx := context.Background()
	backend, err := bootstrap.New(ctx, c)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Err(err).Msg("Closing backend failed")
		}
	}()

	handler, err := newHandler(ctx, c, backend)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- listenAndServe(srv) }()

	select {
	case err := <-errCh:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(srv)
}

func newHandler(ctx context.Context, c config.Config, backend *bootstrap.Backend) (*server.Server, error) {
	blogService, err := blog.NewService(backend.Store)
	if err != nil {
		return nil, err
	}
	submitter, err := contact.NewSubmitter(backend.Store, c.GetWebhookURL(),
		contact.WithRetries(c.GetWebhookRetries()),
		contact.WithRetryDelay(c.GetWebhookDelay()),
		contact.WithHTTPClient(backend.HTTPClient),
	)
	if err != nil {
		return nil, err
	}
	generator, err := sitemap.NewGenerator(c.GetBaseURL(), blogService)
	if err != nil {
		return nil, err
	}
	loginSessions, err := backend.LoginSessions(ctx, c)
	if err != nil {
		return nil, err
	}

	return server.New(c, server.Services{
		Auth:          backend.Authenticator,
		Blog:          blogService,
		Contact:       submitter,
		Sitemap:       generator,
		LoginSessions: loginSessions,
	})
}

func listenAndServe(srv *http.Server) error {
	log.Info().Str("addr", srv.Addr).Msg("Server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
