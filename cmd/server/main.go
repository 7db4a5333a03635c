package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-forward-auth/cookiesync"
	"github.com/jrsteele09/go-forward-auth/internal/config"
	"github.com/jrsteele09/go-forward-auth/providers"
	"github.com/jrsteele09/go-forward-auth/server"
	"github.com/jrsteele09/go-forward-auth/server/loginsession"
	"github.com/jrsteele09/go-forward-auth/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg)
	displayAppname(cfg.AppName)

	codec, err := buildCodec(cfg)
	if err != nil {
		return err
	}

	baseURL := "http://" + cfg.AuthHost
	if cfg.CookieSecure {
		baseURL = "https://" + cfg.AuthHost
	}
	registry, err := providers.Load(baseURL, cfg.AuthPrefix, os.Environ())
	if err != nil {
		return fmt.Errorf("load providers: %w", err)
	}
	for _, p := range registry.All() {
		log.Info().Str("provider", p.Name()).Str("login", p.LoginPath()).Msg("provider configured")
	}

	cookies := cookiesync.New(cfg.CookieHosts, cfg.AuthPrefix, cfg.CookieModifySecret,
		cookiesync.WithRootDomainCookies(cfg.CookieHostsUseRoot))

	if cfg.LongLivedTokensEnabled {
		for name := range cfg.LongLivedTokens {
			log.Info().Str("token", name).Msg("long-lived token enabled")
		}
	}

	srv := server.New(cfg, codec, registry, cookies, loginsession.NewInMemoryRepo())
	httpServer := &http.Server{Addr: ":" + cfg.Port, Handler: srv}

	go listenAndServe(httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

func buildCodec(cfg *config.Config) (*token.Codec, error) {
	options := []token.CodecOption{
		token.WithTTLs(cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
	}
	if cfg.RBACEnabled {
		roles, err := loadRoles(cfg)
		if err != nil {
			return nil, err
		}
		options = append(options, token.WithRoles(roles))
	}
	return token.NewCodec(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, options...), nil
}

func loadRoles(cfg *config.Config) (*token.Roles, error) {
	if cfg.RolesFile != "" {
		return token.RolesFromFile(cfg.DefaultRole, cfg.RolesFile)
	}
	if cfg.RolesConfig != "" {
		return token.ParseRoles(cfg.DefaultRole, []byte(cfg.RolesConfig))
	}
	return nil, errors.New("RBAC enabled but no ROLES_CONFIG or ROLES_CONFIG_FILE given")
}

func setupLogging(cfg *config.Config) {
	if cfg.Env == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func listenAndServe(server *http.Server) {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
