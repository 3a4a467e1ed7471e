package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/victorarias/gerrit-view/internal/board"
	"github.com/victorarias/gerrit-view/internal/client"
	"github.com/victorarias/gerrit-view/internal/config"
	"github.com/victorarias/gerrit-view/internal/dashboard"
	"github.com/victorarias/gerrit-view/internal/eventqueue"
	"github.com/victorarias/gerrit-view/internal/logging"
	"github.com/victorarias/gerrit-view/internal/watcher"
)

type options struct {
	configPath string
	server     string
	port       int
	user       string
	keyFile    string
	knownHosts string
	insecure   bool
	transport  string
	wsURL      string
	restURL    string
	prefetch   int
	items      int
	projects   []string
	attempts   int
	refresh    time.Duration
	logFile    string
}

type runFunc func(ctx context.Context, cfg *config.Config) error

func newRootCmd(runFn runFunc) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "gerrit-view",
		Short: "Live terminal dashboard of Gerrit review activity",
		Long: `Follow a Gerrit server's event stream and show the most recent open
changes in a table that updates as patch sets, comments, merges and
abandons arrive.

Settings come from ~/.gerrit-view/config.toml, then GERRIT_VIEW_* environment
variables, then flags.

Examples:
  gerrit-view -u jdoe
  gerrit-view -s review.example.org --project infra/config --project infra/zuul
  gerrit-view --transport websocket --websocket-url wss://relay.example.org/events`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runFn(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "config file (default ~/.gerrit-view/config.toml)")
	f.StringVarP(&opts.server, "server", "s", config.DefaultServer, "gerrit server")
	f.IntVarP(&opts.port, "port", "p", config.DefaultPort, "gerrit ssh port")
	f.StringVarP(&opts.user, "user", "u", "", "gerrit user (default current user)")
	f.StringVarP(&opts.keyFile, "keyfile", "k", "", "ssh private key (default first of ~/.ssh/id_{rsa,dsa,ecdsa,ed25519})")
	f.StringVar(&opts.knownHosts, "known-hosts", "", "known_hosts file (default ~/.ssh/known_hosts)")
	f.BoolVar(&opts.insecure, "insecure", false, "skip ssh host key verification")
	f.StringVar(&opts.transport, "transport", config.TransportSSH, "event transport: ssh or websocket")
	f.StringVar(&opts.wsURL, "websocket-url", "", "stream-events relay url for the websocket transport")
	f.StringVar(&opts.restURL, "rest-url", "", "gerrit REST base url for websocket reconciliation")
	f.IntVar(&opts.prefetch, "prefetch", config.DefaultPrefetch, "open changes to load on startup (0 disables)")
	f.IntVarP(&opts.items, "items", "i", config.DefaultItems, "rows to keep on the board")
	f.StringArrayVar(&opts.projects, "project", nil, "only show this project (repeatable)")
	f.IntVar(&opts.attempts, "connect-attempts", config.DefaultConnectAttempts, "connect attempts per backoff cycle")
	f.DurationVar(&opts.refresh, "refresh", config.DefaultRefresh, "screen refresh interval")
	f.StringVar(&opts.logFile, "log-file", "", "log file (default ~/.gerrit-view/gerrit-view.log)")
	return cmd
}

// loadConfig layers flags the user actually set over the file and env
// settings, then validates before anything connects.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	path := opts.configPath
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("server") {
		cfg.Server = opts.server
	}
	if f.Changed("port") {
		cfg.Port = opts.port
	}
	if f.Changed("user") {
		cfg.Username = opts.user
	}
	if f.Changed("keyfile") {
		cfg.KeyFile = opts.keyFile
	}
	if f.Changed("known-hosts") {
		cfg.KnownHosts = opts.knownHosts
	}
	if f.Changed("insecure") {
		cfg.InsecureHostKey = opts.insecure
	}
	if f.Changed("transport") {
		cfg.Transport = opts.transport
	}
	if f.Changed("websocket-url") {
		cfg.WebSocketURL = opts.wsURL
	}
	if f.Changed("rest-url") {
		cfg.RESTURL = opts.restURL
	}
	if f.Changed("prefetch") {
		cfg.Prefetch = opts.prefetch
	}
	if f.Changed("items") {
		cfg.Items = opts.items
	}
	if f.Changed("project") {
		cfg.Projects = opts.projects
	}
	if f.Changed("connect-attempts") {
		cfg.ConnectAttempts = opts.attempts
	}
	if f.Changed("refresh") {
		cfg.Refresh = config.Duration{Duration: opts.refresh}
	}
	if f.Changed("log-file") {
		cfg.LogFile = opts.logFile
	}
	cfg.ExpandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newDialer(cfg *config.Config) client.Dialer {
	if cfg.Transport == config.TransportWebSocket {
		return &client.WebSocketDialer{
			URL:      cfg.WebSocketURL,
			RESTURL:  cfg.RESTURL,
			Projects: cfg.Projects,
		}
	}
	return &client.SSHDialer{
		Addr:            cfg.Address(),
		User:            cfg.Username,
		KeyFile:         cfg.KeyFile,
		KnownHosts:      cfg.KnownHosts,
		InsecureHostKey: cfg.InsecureHostKey,
		Projects:        cfg.Projects,
	}
}

// run wires the watcher goroutine to the dashboard and blocks until the
// user quits or ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	log, err := logging.New(cfg.LogFile)
	if err != nil {
		return err
	}
	defer log.Close()

	b, err := board.New(cfg.Items)
	if err != nil {
		return err
	}
	queue := eventqueue.New()
	dialer := newDialer(cfg)
	w := watcher.New(dialer, queue, log, watcher.Options{
		Prefetch: cfg.Prefetch,
		Attempts: cfg.ConnectAttempts,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Infof("Starting gerrit-view: %s, %d items, prefetch %d", dialer, cfg.Items, cfg.Prefetch)
	if cfg.Transport == config.TransportSSH && cfg.KeyFile == "" {
		log.Warn("No ssh key file found; connections will fail until --keyfile is set")
	}
	w.Start(ctx)

	model := dashboard.NewModel(queue, w, b, dashboard.NewDispatcher(b, log, cfg.Projects), log, dashboard.Options{
		Interval: cfg.Refresh.Duration,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("dashboard: %w", err)
	}
	log.Info("Exiting")
	return nil
}
