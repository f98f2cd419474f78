package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
)

const usage = `usage: taskclient [flags] <command> [args]

commands:
  login     -email E [-password P]     exchange credentials for a session
  register  -name N -email E [-password P]
  logout                               forget the stored credential
  whoami                               print the current identity
  get       <path>                     GET an upstream path with the session
  ui        [-listen ADDR]             serve a local web UI

The password defaults to $TASKCLIENT_PASSWORD.
`

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file")
		baseURL    = flag.String("base-url", "", "upstream base URL (overrides config)")
		storePath  = flag.String("store", "", "credential file (overrides config)")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fmt.Fprintln(os.Stderr, "\nflags:")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := loadConfig(*configPath, *baseURL, *storePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	client, err := goSession.New().
		WithConfig(cfg).
		WithLogger(logger).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "client: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	cmd, args := flag.Arg(0), flag.Args()[1:]

	switch cmd {
	case "login":
		err = runLogin(ctx, client, args)
	case "register":
		err = runRegister(ctx, client, args)
	case "logout":
		client.Logout(ctx)
		fmt.Println("logged out")
	case "whoami":
		err = runWhoami(ctx, client)
	case "get":
		err = runGet(ctx, client, args)
	case "ui":
		err = runUI(ctx, client, logger, args)
	default:
		client.Close()
		flag.Usage()
		os.Exit(2)
	}

	// Close flushes audit events and releases the store before exiting.
	client.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func loadConfig(path, baseURL, storePath string) (goSession.Config, error) {
	cfg := goSession.DefaultConfig()
	if path != "" {
		loaded, err := goSession.LoadConfig(path)
		if err != nil && baseURL == "" {
			return goSession.Config{}, err
		}
		if err == nil {
			cfg = loaded
		}
	}

	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("TASKCLIENT_BASE_URL")
	}

	if storePath != "" {
		cfg.Store.Backend = goSession.StoreFile
		cfg.Store.FilePath = storePath
	}
	if cfg.Store.Backend == goSession.StoreMemory {
		// A CLI needs the credential to outlive the process.
		dir, err := os.UserConfigDir()
		if err != nil {
			return goSession.Config{}, err
		}
		cfg.Store.Backend = goSession.StoreFile
		cfg.Store.FilePath = filepath.Join(dir, "taskclient", "credential")
	}

	if err := cfg.Validate(); err != nil {
		return goSession.Config{}, err
	}
	return cfg, nil
}

func password(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("TASKCLIENT_PASSWORD")
}

func runLogin(ctx context.Context, c *goSession.Client, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	pass := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_ = c.Initialize(ctx)
	if err := c.Login(ctx, *email, password(*pass)); err != nil {
		return describe(err)
	}
	printIdentity(c.Session())
	return nil
}

func runRegister(ctx context.Context, c *goSession.Client, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "account email")
	pass := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_ = c.Initialize(ctx)
	if err := c.Register(ctx, *name, *email, password(*pass)); err != nil {
		return describe(err)
	}
	printIdentity(c.Session())
	return nil
}

func runWhoami(ctx context.Context, c *goSession.Client) error {
	if err := c.Initialize(ctx); err != nil {
		return err
	}
	printIdentity(c.Session())
	return nil
}

func runGet(ctx context.Context, c *goSession.Client, args []string) error {
	if len(args) != 1 {
		return errors.New("exactly one path is required")
	}
	if err := c.Initialize(ctx); err != nil {
		return err
	}
	if !c.Session().Authenticated() {
		return errors.New("not logged in")
	}

	var out json.RawMessage
	if err := c.Do(ctx, http.MethodGet, args[0], nil, &out); err != nil {
		if errors.Is(err, goSession.ErrCredentialRejected) {
			return errors.New("session expired; log in again")
		}
		return describe(err)
	}

	pretty, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}

func printIdentity(snap goSession.Snapshot) {
	if !snap.Authenticated() {
		fmt.Println(snap.Status)
		return
	}
	id := snap.Identity
	fmt.Printf("%s <%s> id=%s since=%s\n", id.Name, id.Email, id.ID, id.CreatedAt.Format(time.DateOnly))
}

// describe turns upstream failures into one-line messages.
func describe(err error) error {
	switch {
	case errors.Is(err, goSession.ErrMissingCredentials):
		return err
	case errors.Is(err, goSession.ErrTransport):
		return fmt.Errorf("upstream unreachable: %w", err)
	case errors.Is(err, goSession.ErrOperationFailed):
		msg := err.Error()
		if i := strings.Index(msg, ": "); i >= 0 {
			msg = msg[i+2:]
		}
		return errors.New(msg)
	default:
		return err
	}
}
