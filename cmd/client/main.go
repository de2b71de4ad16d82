package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/mattn/go-isatty"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
	"github.com/wrongjunior/updaterelay/internal/client"
	"github.com/wrongjunior/updaterelay/internal/config"
	"github.com/wrongjunior/updaterelay/internal/domain"
	"github.com/wrongjunior/updaterelay/internal/logging"
	"github.com/wrongjunior/updaterelay/internal/render"
	"github.com/wrongjunior/updaterelay/internal/repository"
	"github.com/wrongjunior/updaterelay/internal/service"
	transportClient "github.com/wrongjunior/updaterelay/internal/transport/client"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	serverURL  string
	apiURL     string
}

func (g *globalFlags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(g.configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("server") {
		cfg.ClientServerURL = g.serverURL
	}
	if cmd.Flags().Changed("api") {
		cfg.APIURL = g.apiURL
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:          "relay-client",
		Short:        "Subscribe to, publish and inspect relay updates",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to configuration file (JSON or YAML)")
	root.PersistentFlags().StringVar(&g.serverURL, "server", "", "WebSocket URL of the relay")
	root.PersistentFlags().StringVar(&g.apiURL, "api", "", "HTTP base URL of the relay")

	root.AddCommand(newWatchCmd(g), newPostCmd(g), newListCmd(g))
	return root
}

func newWatchCmd(g *globalFlags) *cobra.Command {
	var (
		dbPath     string
		fetchFirst bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep a live subscription and print incoming updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("db") {
				cfg.DBPath = dbPath
			}
			return watch(cmd.Context(), cfg, fetchFirst, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "Journal received updates into this SQLite file")
	cmd.Flags().BoolVar(&fetchFirst, "fetch", true, "Fetch /api/updates before the socket opens")
	return cmd
}

func watch(ctx context.Context, cfg *config.Config, fetchFirst bool, out io.Writer) error {
	logger, closer, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer closer.Close()

	// Открытие подключения к БД для журнала клиента.
	var repo repository.UpdateRepository
	if cfg.DBPath != "" {
		db, err := sql.Open("sqlite3", cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer db.Close()
		sqliteRepo := repository.NewSQLiteRepository(db)
		if err := sqliteRepo.Init(); err != nil {
			return fmt.Errorf("init journal: %w", err)
		}
		repo = sqliteRepo
	}

	p := &printer{out: out, r: render.New(colorEnabled(out))}
	clientService := service.NewClientService(repo, p, logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if fetchFirst {
		updates, err := client.NewAPIClient(cfg.APIURL, logger).Updates(ctx)
		if err != nil {
			logger.Warn("Failed to fetch updates", "error", err)
		} else {
			clientService.ReplaceAll(updates)
		}
	}

	// Транспортный слой клиента (WebSocket-соединение).
	sub := transportClient.NewSubscriber(cfg.ClientServerURL, clientService, transportClient.Options{
		ReconnectDelay:    cfg.ReconnectDelay.Std(),
		KeepaliveInterval: cfg.KeepaliveInterval.Std(),
		OnState:           p.State,
	}, logger)
	sub.Start(ctx)

	<-ctx.Done()
	logger.Info("Shutting down client...")
	sub.Close()
	logger.Info("Client stopped")
	return nil
}

func newPostCmd(g *globalFlags) *cobra.Command {
	var req domain.SubmitRequest
	var typ string
	cmd := &cobra.Command{
		Use:   "post MESSAGE...",
		Short: "Publish an update",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			req.Message = strings.Join(args, " ")
			req.Type = domain.UpdateType(typ)
			update, err := client.NewAPIClient(cfg.APIURL, quietLogger()).Post(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), render.New(false).Update(update))
			return nil
		},
	}
	cmd.Flags().StringVarP(&typ, "type", "t", "", "Update type: info, success, warning or error")
	cmd.Flags().StringVar(&req.Title, "title", "", "Update title")
	return cmd
}

func newListCmd(g *globalFlags) *cobra.Command {
	var (
		limit   int
		journal string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the server history (or a local journal) with summary statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd)
			if err != nil {
				return err
			}
			var updates []domain.Update
			if journal != "" {
				db, err := sql.Open("sqlite3", journal)
				if err != nil {
					return err
				}
				defer db.Close()
				updates, err = repository.NewSQLiteRepository(db).Recent(limit)
				if err != nil {
					return err
				}
			} else {
				updates, err = client.NewAPIClient(cfg.APIURL, quietLogger()).Updates(cmd.Context())
				if err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			r := render.New(colorEnabled(out))
			fmt.Fprint(out, r.Dashboard(service.ComputeStats(updates)))
			fmt.Fprint(out, r.Feed(updates, limit))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "Maximum number of updates to print")
	cmd.Flags().StringVar(&journal, "journal", "", "Read from a local SQLite journal instead of the server")
	return cmd
}

// printer выводит изменения ленты в терминал.
type printer struct {
	mu  sync.Mutex
	out io.Writer
	r   *render.Renderer
}

func (p *printer) Replaced(updates []domain.Update, stats service.FeedStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.out, p.r.Dashboard(stats))
	fmt.Fprint(p.out, p.r.Feed(updates, 20))
}

func (p *printer) Added(update domain.Update, stats service.FeedStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, p.r.Update(update))
}

func (p *printer) State(s transportClient.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "-- %s\n", s)
}

func colorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func quietLogger() *slog.Logger {
	logger, _, err := logging.New(logging.Options{Level: "warn", Format: "text"})
	if err != nil {
		return logging.Discard()
	}
	return logger
}
