// Command wxbot is a small bot built on the webwx client. It logs in with a QR code printed to the
// terminal, keeps the session in an SQLite database and echoes back the messages it receives.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"go.mau.fi/webwx"
	"go.mau.fi/webwx/puid"
	"go.mau.fi/webwx/registry"
	"go.mau.fi/webwx/store/sqlstore"
	"go.mau.fi/webwx/types"
	"go.mau.fi/webwx/types/events"
	waLog "go.mau.fi/webwx/util/log"
)

var (
	configPath string
	envFile    string
)

func main() {
	root := &cobra.Command{
		Use:          "wxbot",
		Short:        "Run a web chat bot",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to the .env file")
	root.AddCommand(runCommand(), logoutCommand())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *Config) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Logging.Level))
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	var log zerolog.Logger
	if cfg.Logging.JSON {
		log = zerolog.New(os.Stdout)
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime})
	}
	return log.Level(level).With().Timestamp().Logger(), nil
}

type bot struct {
	cfg       *Config
	log       zerolog.Logger
	container *sqlstore.Container
	client    *webwx.Client
}

func setup(ctx context.Context) (*bot, error) {
	cfg, err := LoadConfig(configPath, envFile)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	if created, err := cfg.EnsureAccount(envFile); err != nil {
		return nil, err
	} else if created {
		log.Info().Str("account", cfg.Account).Str("env_file", envFile).Msg("Generated new account name")
	}
	container, err := sqlstore.New(ctx, "sqlite3", cfg.Database, cfg.Account, waLog.Zerolog(log.With().Str("component", "database").Logger()))
	if err != nil {
		return nil, err
	}
	container.Region = sqlstore.ParseRegion(cfg.Region)

	client := webwx.NewClient(container, waLog.Zerolog(log.With().Str("component", "client").Logger()))
	client.AutoMarkAsRead = cfg.AutoMarkAsRead
	if cfg.BrowserTLS {
		client.EnableBrowserTLS()
	}
	if cfg.Proxy != "" {
		if err = client.SetProxyAddress(cfg.Proxy); err != nil {
			_ = container.Close()
			return nil, fmt.Errorf("invalid proxy: %w", err)
		}
	}
	if cfg.PUIDPath != "" {
		client.PUIDMap = puid.New(cfg.PUIDPath)
		if err = client.PUIDMap.Load(); err != nil {
			log.Warn().Err(err).Msg("Failed to load PUID map")
		}
	}
	return &bot{cfg: cfg, log: log, container: container, client: client}, nil
}

func (b *bot) handleEvent(evt any) {
	switch evt := evt.(type) {
	case *events.QR:
		fmt.Println("Scan the QR code below to log in:")
		qrterminal.GenerateHalfBlock(evt.Codes[0], qrterminal.L, os.Stdout)
	case *events.ConfirmLogin:
		b.log.Info().Msg("QR code scanned, confirm the login on the phone")
	case *events.UUIDExpired:
		b.log.Info().Msg("QR code expired, requesting a new one")
	case *events.LoggedIn:
		b.log.Info().Bool("resumed", evt.Resumed).Str("name", evt.Self.Name()).Msg("Logged in")
	case *events.LoggedOut:
		b.log.Warn().Stringer("reason", evt.Reason).AnErr("error", evt.Error).Msg("Logged out")
	case *events.NewFriend:
		b.log.Info().Str("name", evt.Friend.Name()).Msg("New friend")
	case *events.NewMember:
		b.log.Info().Str("group", evt.Group.Name()).Str("member", evt.Member.Name()).Msg("New group member")
	case *events.HandlerError:
		b.log.Err(evt.Error).Uint32("handler", evt.RegistrationID).Bool("panicked", evt.Panicked).Msg("Handler failed")
	}
}

func (b *bot) echo(msg *types.Message) (*registry.Reply, error) {
	if _, isGroup := msg.Chat.(*types.Group); isGroup && !msg.IsAt {
		return nil, nil
	}
	evt := b.log.Info().Str("chat", msg.Chat.Name()).Str("type", string(msg.Type))
	if puidValue := b.client.PUID(msg.Chat); puidValue != "" {
		evt = evt.Str("puid", puidValue)
	}
	evt.Msg("Echoing message")
	return registry.TextReply(msg.Text), nil
}

func runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Log in and run the bot until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			b, err := setup(ctx)
			if err != nil {
				return err
			}
			defer b.container.Close()

			if b.cfg.MetricsAddr != "" {
				b.client.Metrics, err = webwx.NewMetrics(prometheus.DefaultRegisterer)
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: b.cfg.MetricsAddr, Handler: promhttp.Handler()}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						b.log.Err(err).Msg("Metrics server failed")
					}
				}()
				defer srv.Close()
			}

			b.client.AddEventHandler(b.handleEvent)
			if b.cfg.Echo {
				b.client.Registry.Register(b.echo, registry.Options{
					Kinds: []types.ChatKind{types.KindFriend, types.KindGroup},
					Types: []types.MessageType{types.MsgText},
				})
			}
			if err = b.client.Login(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			b.log.Info().Msg("Shutting down")
			b.client.Disconnect()
			b.client.WaitForLoops(10 * time.Second)
			if b.client.PUIDMap != nil {
				if err = b.client.PUIDMap.Save(); err != nil {
					b.log.Warn().Err(err).Msg("Failed to save PUID map")
				}
			}
			return nil
		},
	}
}

func logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out the stored session and delete it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			b, err := setup(ctx)
			if err != nil {
				return err
			}
			defer b.container.Close()
			if ok, err := b.client.Load(ctx); err != nil {
				return err
			} else if !ok {
				b.log.Info().Msg("No stored session")
				return nil
			}
			// A QR code means the stored session was rejected and has already been removed
			b.client.AddEventHandler(func(evt any) {
				if _, ok := evt.(*events.QR); ok {
					cancel()
				}
			})
			if err = b.client.Login(ctx); errors.Is(err, context.Canceled) {
				b.log.Info().Msg("Stored session was no longer valid and has been removed")
				return nil
			} else if err != nil {
				return fmt.Errorf("failed to resume session: %w", err)
			}
			return b.client.Logout(context.WithoutCancel(ctx))
		},
	}
}
