package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/devpocket/termcore/internal/classify"
	"github.com/devpocket/termcore/internal/config"
	"github.com/devpocket/termcore/internal/conn"
	"github.com/devpocket/termcore/internal/core"
	"github.com/devpocket/termcore/internal/history"
	"github.com/devpocket/termcore/internal/logging"
	"github.com/devpocket/termcore/internal/transport"
)

const Version = "0.1.0"

func main() {
	args := os.Args[1:]

	if len(args) == 0 {
		printHelp()
		return
	}

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Printf("termcore v%s\n", Version)
	case "help", "--help", "-h":
		printHelp()
	case "local":
		handleLocal(args[1:])
	case "ssh":
		handleSSH(args[1:])
	case "history":
		handleHistory(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("termcore - block-based terminal session core")
	fmt.Println()
	fmt.Println("Usage: termcore <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  local                 Open a local shell session")
	fmt.Println("  ssh <user@host>       Open an SSH session")
	fmt.Println("  history               Show or search command history")
	fmt.Println("  version               Print version")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  termcore local")
	fmt.Println("  termcore ssh dev@build1.example.com -i ~/.ssh/id_ed25519")
	fmt.Println("  termcore history -q \"git push\"")
}

// setupLogging wires structured logging from config. Logs go to the config
// directory only when TERMCORE_DEBUG is set, so the raw-mode terminal stays
// clean in normal use.
func setupLogging(cfg config.Config, dir string) {
	debugMode := os.Getenv("TERMCORE_DEBUG") != ""
	logCfg := logging.Config{
		Debug:  debugMode,
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if debugMode {
		logCfg.LogDir = dir
		logCfg.Level = "debug"
		logCfg.Compress = true
	}
	logging.Init(logCfg)

	// SIGUSR1 dumps the recent-line ring for post-mortem debugging.
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	go func() {
		for range usr1 {
			dumpPath := filepath.Join(dir, fmt.Sprintf("crash-dump-%d.jsonl", time.Now().Unix()))
			_ = logging.DumpCrashRing(dumpPath)
		}
	}()
}

// buildOrchestrator assembles the session core from config: classifier with
// user rule overrides, optional history store, tuned connection manager.
func buildOrchestrator(cfg config.Config, dir string) (*core.Orchestrator, *history.Store) {
	table := classify.DefaultRuleTable()
	table.Extend(cfg.Classifier.ExtraInteractive, cfg.Classifier.ExtraContinuous)
	classifier := classify.NewWithTable(table)

	var store *history.Store
	if cfg.History.Enabled {
		var err error
		store, err = history.Open(cfg.History.HistoryPath(dir))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: history disabled: %v\n", err)
			store = nil
		}
	}

	o := core.New(transport.DefaultOpener{}, classifier, core.Options{
		Conn: conn.Options{
			SettleQuiescence: cfg.Connection.SettleQuiescence(),
			SettleMax:        cfg.Connection.SettleMax(),
			SendRatePerSec:   cfg.Connection.SendRatePerSec,
			SendBurst:        cfg.Connection.SendBurst,
		},
		History: store,
	})
	return o, store
}

func loadConfig() (config.Config, string) {
	dir, err := config.Dir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(filepath.Join(dir, config.FileName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: using defaults: %v\n", err)
	}
	return cfg, dir
}

func handleLocal(args []string) {
	fs := flag.NewFlagSet("local", flag.ExitOnError)
	shell := fs.String("shell", "", "Shell to run (defaults to $SHELL)")
	dir := fs.String("dir", "", "Working directory")

	fs.Usage = func() {
		fmt.Println("Usage: termcore local [options]")
		fmt.Println()
		fmt.Println("Open a local shell session with block-based command tracking.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, cfgDir := loadConfig()
	setupLogging(cfg, cfgDir)
	defer logging.Shutdown()

	cols, rows := terminalSize()
	runSession(cfg, cfgDir, transport.LocalTarget{
		Shell: *shell,
		Dir:   *dir,
		Cols:  cols,
		Rows:  rows,
	})
}

func handleSSH(args []string) {
	fs := flag.NewFlagSet("ssh", flag.ExitOnError)
	keyPath := fs.String("i", "", "Private key file")
	password := fs.String("password", "", "Password (prompted when empty and no key given)")
	port := fs.Int("port", 22, "SSH port")
	strict := fs.Bool("strict-host-key", false, "Verify the host key against known_hosts")
	knownHosts := fs.String("known-hosts", "", "known_hosts path (defaults to ~/.ssh/known_hosts)")

	fs.Usage = func() {
		fmt.Println("Usage: termcore ssh <user@host> [options]")
		fmt.Println()
		fmt.Println("Open an SSH session with block-based command tracking.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  termcore ssh dev@build1")
		fmt.Println("  termcore ssh dev@build1 -i ~/.ssh/id_ed25519 -port 2222")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	dest := fs.Arg(0)
	if dest == "" {
		fs.Usage()
		os.Exit(1)
	}
	user, host, ok := strings.Cut(dest, "@")
	if !ok {
		fmt.Fprintln(os.Stderr, "Error: destination must be user@host")
		os.Exit(1)
	}

	auth := transport.Auth{Password: *password}
	if *keyPath != "" {
		pem, err := os.ReadFile(expandHome(*keyPath))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: read key: %v\n", err)
			os.Exit(1)
		}
		auth.PrivateKeyPEM = pem
	}
	if auth.Password == "" && auth.PrivateKeyPEM == nil {
		pw, err := promptPassword(fmt.Sprintf("%s's password: ", dest))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		auth.Password = pw
	}

	khPath := *knownHosts
	if *strict && khPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			khPath = filepath.Join(home, ".ssh", "known_hosts")
		}
	}

	cfg, cfgDir := loadConfig()
	setupLogging(cfg, cfgDir)
	defer logging.Shutdown()

	cols, rows := terminalSize()
	runSession(cfg, cfgDir, transport.RemoteTarget{
		Profile:        transport.HostProfile{Host: host, Port: *port, User: user},
		Auth:           auth,
		Cols:           cols,
		Rows:           rows,
		StrictHostKey:  *strict,
		KnownHostsPath: khPath,
	})
}

func handleHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	query := fs.String("q", "", "Fuzzy search query")
	limit := fs.Int("n", 20, "Maximum entries to show")

	fs.Usage = func() {
		fmt.Println("Usage: termcore history [options]")
		fmt.Println()
		fmt.Println("Show recent commands, or fuzzy-search them with -q.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, cfgDir := loadConfig()
	store, err := history.Open(cfg.History.HistoryPath(cfgDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: open history: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	matches, err := store.Search(*query, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(matches) == 0 {
		fmt.Println("No matching commands.")
		return
	}

	for _, m := range matches {
		e := m.Entry
		fmt.Printf("%-20s %-12s %-10s %s\n",
			e.StartedAt.Format("2006-01-02 15:04:05"),
			e.Category,
			e.Status,
			e.Command)
	}
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func terminalSize() (cols, rows int) {
	cols, rows, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || cols <= 0 || rows <= 0 {
		return 80, 24
	}
	return cols, rows
}

// runSession connects the target, then bridges the controlling terminal to
// the session until the transport closes or the user detaches with Ctrl-Q.
func runSession(cfg config.Config, cfgDir string, target transport.Target) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o, store := buildOrchestrator(cfg, cfgDir)
	if store != nil {
		defer store.Close()
	}
	o.Start(ctx)
	defer o.Close()

	connectCtx, connectCancel := context.WithTimeout(ctx, cfg.Connection.ConnectTimeout())
	sessionID, err := o.Connect(connectCtx, target)
	connectCancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := runLoop(ctx, o, sessionID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
