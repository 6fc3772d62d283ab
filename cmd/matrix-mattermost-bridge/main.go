// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command matrix-mattermost-bridge relays messages, reactions, pins and room
// metadata between bridged Matrix rooms and Mattermost channels.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	up "go.mau.fi/util/configupgrade"
	"go.mau.fi/util/dbutil"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
	flag "maunium.net/go/mauflag"
	"maunium.net/go/mautrix/appservice"

	"github.com/aiku/matrix-mattermost-bridge/pkg/connector"
	"github.com/aiku/matrix-mattermost-bridge/pkg/database"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const (
	registrationID  = "mattermost"
	senderLocalpart = "mattermostbot"
)

var configPath = flag.MakeFull("c", "config", "The path to your config file.", "config.yaml").String()
var dontSaveConfig = flag.MakeFull("n", "no-update", "Don't save updated config to disk.", "false").Bool()
var registrationPath = flag.MakeFull("r", "registration", "The path where to save the appservice registration.", "registration.yaml").String()
var generateRegistration = flag.MakeFull("g", "generate-registration", "Generate registration and quit.", "false").Bool()
var version = flag.MakeFull("v", "version", "View bridge version and quit.", "false").Bool()
var wantHelp, _ = flag.MakeHelpFlag()

func main() {
	flag.SetHelpTitles(
		"matrix-mattermost-bridge - A Matrix-Mattermost bridge.",
		"matrix-mattermost-bridge [-hgvn] [-c <path>] [-r <path>]",
	)
	if err := flag.Parse(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		flag.PrintHelp()
		os.Exit(1)
	} else if *wantHelp {
		flag.PrintHelp()
		os.Exit(0)
	} else if *version {
		fmt.Printf("matrix-mattermost-bridge %s (commit %s, built %s)\n", Tag, Commit, BuildTime)
		os.Exit(0)
	}

	cfg, err := loadConfig(*configPath, !*dontSaveConfig)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Failed to load config:", err)
		os.Exit(10)
	}
	if *generateRegistration {
		if err = writeRegistration(cfg, *registrationPath); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, "Failed to generate registration:", err)
			os.Exit(11)
		}
		fmt.Println("Registration generated. See https://docs.mau.fi/bridges/general/registering-appservices.html for instructions on installing the registration.")
		os.Exit(0)
	}

	log, err := cfg.Logging.Compile()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Failed to initialize logger:", err)
		os.Exit(12)
	}
	zerolog.DefaultContextLogger = log

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err = run(ctx, cfg, *log); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Bridge stopped with error")
	}
	log.Info().Msg("Bridge stopped")
}

func loadConfig(path string, save bool) (*connector.Config, error) {
	data, _, err := up.Do(path, save, connector.ConfigUpgrader)
	if err != nil {
		return nil, err
	}
	var cfg connector.Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err = cfg.PostProcess(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func writeRegistration(cfg *connector.Config, path string) error {
	reg := appservice.CreateRegistration()
	reg.ID = registrationID
	reg.SenderLocalpart = senderLocalpart
	reg.URL = fmt.Sprintf("http://%s:%d", cfg.AppService.Hostname, cfg.AppService.Port)
	ghostRegex := fmt.Sprintf("^@%s.+:%s$", regexp.QuoteMeta(cfg.Bridge.GhostPrefix), regexp.QuoteMeta(cfg.Homeserver.Domain))
	reg.Namespaces.UserIDs.Register(regexp.MustCompile(ghostRegex), true)
	return reg.Save(path)
}

func run(ctx context.Context, cfg *connector.Config, log zerolog.Logger) error {
	rawDB, err := dbutil.NewFromConfig("matrix-mattermost-bridge", cfg.Database, dbutil.ZeroLogger(log.With().Str("db_section", "main").Logger()))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer rawDB.Close()
	db := database.New(rawDB, log)
	if err = db.Upgrade(ctx); err != nil {
		return fmt.Errorf("failed to upgrade database: %w", err)
	}

	reg, err := appservice.LoadRegistration(cfg.AppService.Registration)
	if err != nil {
		return fmt.Errorf("failed to load registration: %w", err)
	}
	as, err := appservice.CreateFull(appservice.CreateOpts{
		Registration:     reg,
		HomeserverDomain: cfg.Homeserver.Domain,
		HomeserverURL:    cfg.Homeserver.Address,
		HostConfig: appservice.HostConfig{
			Hostname: cfg.AppService.Hostname,
			Port:     cfg.AppService.Port,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create appservice: %w", err)
	}
	as.Log = log.With().Str("component", "appservice").Logger()

	mm := connector.NewMattermostClient(cfg.Mattermost.ServerURL, cfg.Mattermost.Token, log)
	if err = mm.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to Mattermost: %w", err)
	}
	defer mm.Disconnect()

	mc := connector.NewConnector(cfg, db, &connector.ASMatrixAPI{AS: as}, mm, log)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		as.Start()
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		as.Stop()
		return nil
	})
	eg.Go(func() error {
		return mc.Run(ctx, as.Events, mm)
	})
	log.Info().
		Str("homeserver", cfg.Homeserver.Address).
		Str("mattermost", cfg.Mattermost.ServerURL).
		Msg("Bridge started")
	return eg.Wait()
}
