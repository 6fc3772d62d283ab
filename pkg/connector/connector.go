// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"
	"go.mau.fi/util/exsync"
	"golang.org/x/sync/errgroup"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/matrix-mattermost-bridge/pkg/confirm"
	"github.com/aiku/matrix-mattermost-bridge/pkg/database"
	"github.com/aiku/matrix-mattermost-bridge/pkg/emoji"
)

// MattermostConnector ties the Matrix and Mattermost sides together. It owns
// the correlation database and the dispatcher that routes inbound events of
// both networks.
type MattermostConnector struct {
	Config *Config
	DB     *database.Database
	Matrix MatrixAPI
	MM     MattermostAPI
	Log    zerolog.Logger

	Resolver      *emoji.Resolver
	Confirmations *confirm.Registry
	Dispatcher    *Dispatcher

	roomLocks    keyedMutex
	syncedGhosts *exsync.Set[id.UserID]
	now          func() time.Time
}

// NewConnector wires up a connector. cfg must have been post-processed.
func NewConnector(cfg *Config, db *database.Database, matrix MatrixAPI, mm MattermostAPI, log zerolog.Logger) *MattermostConnector {
	mc := &MattermostConnector{
		Config:        cfg,
		DB:            db,
		Matrix:        matrix,
		MM:            mm,
		Log:           log,
		Resolver:      emoji.NewResolver(&customEmojiSource{db: db}),
		Confirmations: confirm.New(log),
		syncedGhosts:  exsync.NewSet[id.UserID](),
		now:           time.Now,
	}
	if cfg.Bridge.ConfirmationRetention > 0 {
		mc.Confirmations.Retention = cfg.Bridge.ConfirmationRetention
	}
	mc.Dispatcher = NewDispatcher(mc)
	return mc
}

// Run consumes both inbound streams until ctx is cancelled. Each event is
// dispatched on its own goroutine so that handlers waiting on a confirmation
// do not block the stream they are waiting on.
func (mc *MattermostConnector) Run(ctx context.Context, matrixEvents <-chan *event.Event, ws *MattermostClient) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case evt, ok := <-matrixEvents:
				if !ok {
					return nil
				}
				go mc.Dispatcher.DispatchMatrix(ctx, evt)
			}
		}
	})
	if ws != nil {
		eg.Go(func() error {
			return ws.Listen(ctx, func(evt *model.WebSocketEvent) {
				go mc.Dispatcher.DispatchMattermost(ctx, evt)
			})
		})
	}
	eg.Go(func() error {
		mc.Confirmations.Run(ctx, mc.Config.Bridge.ConfirmationSweepInterval)
		return nil
	})
	if addr := mc.Config.Bridge.AdminAPIAddr; addr != "" {
		eg.Go(func() error {
			return mc.serveAdminAPI(ctx, addr)
		})
	}
	return eg.Wait()
}

func (mc *MattermostConnector) serveAdminAPI(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      mc.AdminHandler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	mc.Log.Info().Str("addr", addr).Msg("Starting bridge admin API")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin API failed: %w", err)
	}
	return nil
}

// ensureGhost registers the ghost of a Mattermost user and syncs its
// displayname once per process.
func (mc *MattermostConnector) ensureGhost(ctx context.Context, mmUserID string) (id.UserID, error) {
	ghost := mc.GhostUserID(mmUserID)
	if mc.syncedGhosts.Has(ghost) {
		return ghost, nil
	}
	var displayname string
	user, err := mc.MM.GetUser(ctx, mmUserID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("user_id", mmUserID).Msg("Failed to get Mattermost user for ghost profile")
	} else {
		displayname = mc.Config.Mattermost.FormatDisplayname(DisplaynameParams{
			Username:  user.Username,
			Nickname:  user.Nickname,
			FirstName: user.FirstName,
			LastName:  user.LastName,
		})
	}
	if err = mc.Matrix.EnsureGhost(ctx, ghost, displayname); err != nil {
		return "", err
	}
	if displayname != "" {
		mc.syncedGhosts.Add(ghost)
	}
	return ghost, nil
}
