// Copyright (c) 2023 BVK Chaitanya

package subcmds

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bvk/volumebot/ctxutil"
	"github.com/bvk/volumebot/daemonize"
	"github.com/bvk/volumebot/fanout"
	"github.com/bvk/volumebot/httputil"
	"github.com/bvk/volumebot/server"
	"github.com/bvk/volumebot/subcmds/cmdutil"
	"github.com/bvkgo/kv/kvhttp"
	"github.com/bvkgo/kvbadger"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/nightlyone/lockfile"
	"github.com/shopspring/decimal"
	"github.com/visvasity/cli"
	"github.com/visvasity/sglog"
	"golang.org/x/term"
)

type Run struct {
	cmdutil.ServerFlags

	background bool

	restart         bool
	shutdownTimeout time.Duration

	noPprof  bool
	noResume bool

	paper bool

	paperTxFee string

	secretsPath string
	envPath     string
	dataDir     string

	numWallets   int
	feeFraction  string
	feeAddress   string
	adminAddress string
	minDeposit   string

	depositReserve string

	depositTimeout time.Duration
	reportInterval time.Duration
}

func (c *Run) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("run", flag.ContinueOnError)
	c.ServerFlags.SetFlags(fset)
	fset.BoolVar(&c.background, "background", false, "runs the daemon in background")
	fset.BoolVar(&c.restart, "restart", false, "when true, kills any old instance")
	fset.DurationVar(&c.shutdownTimeout, "shutdown-timeout", 30*time.Second, "max timeout for shutdown when restarting")
	fset.BoolVar(&c.noPprof, "no-pprof", false, "when true net/http/pprof handler is not registered")
	fset.BoolVar(&c.noResume, "no-resume", false, "when true old sessions aren't resumed automatically")
	fset.BoolVar(&c.paper, "paper", false, "when true, uses a simulated in-memory ledger instead of the network")
	fset.StringVar(&c.paperTxFee, "paper-tx-fee", "0.000005", "base currency charged for every simulated transaction")
	fset.StringVar(&c.secretsPath, "secrets-file", "", "path to credentials file")
	fset.StringVar(&c.envPath, "env-file", "", "path to a .env file with VOLUMEBOT_* overrides")
	fset.StringVar(&c.dataDir, "data-dir", "", "path to the data directory")
	fset.IntVar(&c.numWallets, "num-wallets", 3, "number of trading sub-wallets per session")
	fset.StringVar(&c.feeFraction, "fee-fraction", fanout.DefaultFeeFraction, "fraction of the deposit collected as the service fee; zero disables the fee")
	fset.StringVar(&c.feeAddress, "fee-address", "", "address that receives the service fee")
	fset.StringVar(&c.adminAddress, "admin-address", "", "address that receives the funds on an admin sweep")
	fset.StringVar(&c.minDeposit, "min-deposit", "0.1", "minimum base currency deposit")
	fset.StringVar(&c.depositReserve, "deposit-reserve", "0", "extra base currency kept in the deposit wallet on top of the fan-out transaction costs")
	fset.DurationVar(&c.depositTimeout, "deposit-timeout", 30*time.Minute, "time to wait for a session deposit")
	fset.DurationVar(&c.reportInterval, "report-interval", 5*time.Minute, "time between two status reports of a session")
	return "run", fset, cli.CmdFunc(c.run)
}

func (c *Run) Purpose() string {
	return "Runs volumebot service in foreground or background"
}

func (c *Run) Description() string {
	return `

Command "run" starts the volumebot service. Service scans the database for
sessions that are not closed or failed and resumes them automatically.

SECRETS FILE

Wallet keys are encrypted with a passphrase from the secrets file. Users are
expected to create a secrets file in JSON format, preferably with the "setup"
commands. An example secrets file is given below:

    {
        "custody":{
            "passphrase":"correct horse battery staple"
        },
        "solana":{
            "rpc_url":"https://api.mainnet-beta.solana.com"
        },
        "telegram":{
            "token":"111111:AAAAAAA",
            "owner":"username"
        }
    }

When the passphrase is not found in the secrets file or in the
VOLUMEBOT_CUSTODY_PASSPHRASE environment variable, it is read from the
terminal.

`
}

func (c *Run) engineOptions() (*server.Options, error) {
	feeFraction, err := decimal.NewFromString(c.feeFraction)
	if err != nil {
		return nil, fmt.Errorf("invalid fee fraction %q: %w", c.feeFraction, err)
	}
	minDeposit, err := decimal.NewFromString(c.minDeposit)
	if err != nil {
		return nil, fmt.Errorf("invalid min deposit %q: %w", c.minDeposit, err)
	}
	depositReserve, err := decimal.NewFromString(c.depositReserve)
	if err != nil {
		return nil, fmt.Errorf("invalid deposit reserve %q: %w", c.depositReserve, err)
	}
	paperTxFee, err := decimal.NewFromString(c.paperTxFee)
	if err != nil {
		return nil, fmt.Errorf("invalid paper tx fee %q: %w", c.paperTxFee, err)
	}
	opts := &server.Options{
		Paper: c.paper,
	}
	opts.PaperOptions.TxFee = paperTxFee
	opts.PaperOptions.AccountRent = decimal.RequireFromString("0.00203928")
	opts.Engine.NoResume = c.noResume
	opts.Engine.AdminAddress = c.adminAddress
	opts.Engine.ReportInterval = c.reportInterval
	opts.Engine.Watcher.Timeout = c.depositTimeout
	opts.Engine.Watcher.MinBase = minDeposit
	opts.Engine.Fanout.NumWallets = c.numWallets
	opts.Engine.Fanout.FeeFraction = feeFraction
	opts.Engine.Fanout.FeeAddress = c.feeAddress
	opts.Engine.Fanout.DepositReserve = depositReserve
	return opts, nil
}

func (c *Run) loadSecrets() (*server.Secrets, error) {
	if len(c.envPath) != 0 {
		if err := godotenv.Load(c.envPath); err != nil {
			return nil, fmt.Errorf("could not load env file %q: %w", c.envPath, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("could not load .env file: %w", err)
	}

	secrets, err := server.SecretsFromFile(c.secretsPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		secrets = new(server.Secrets)
	}
	secrets.ApplyEnv()

	if secrets.Custody == nil || len(secrets.Custody.Passphrase) == 0 {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return nil, fmt.Errorf("custody passphrase is not configured: %w", os.ErrInvalid)
		}
		fmt.Fprint(os.Stderr, "Custody passphrase: ")
		pass, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("could not read the passphrase: %w", err)
		}
		secrets.Custody = &server.CustodySecrets{Passphrase: string(pass)}
	}
	if err := secrets.Check(); err != nil {
		return nil, err
	}
	return secrets, nil
}

func (c *Run) run(ctx context.Context, args []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(c.dataDir) == 0 {
		c.dataDir = filepath.Join(os.Getenv("HOME"), ".volumebot")
	}
	if _, err := os.Stat(c.dataDir); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("could not stat data directory %q: %w", c.dataDir, err)
		}
		if err := os.MkdirAll(c.dataDir, 0700); err != nil {
			return fmt.Errorf("could not create data directory %q: %w", c.dataDir, err)
		}
	}
	dataDir, err := filepath.Abs(c.dataDir)
	if err != nil {
		return fmt.Errorf("could not determine data-dir %q absolute path: %w", c.dataDir, err)
	}

	if len(c.secretsPath) == 0 {
		c.secretsPath = filepath.Join(dataDir, "secrets.json")
	}
	if c.secretsPath, err = filepath.Abs(c.secretsPath); err != nil {
		return fmt.Errorf("could not determine secrets file absolute path: %w", err)
	}
	secrets, err := c.loadSecrets()
	if err != nil {
		return err
	}
	opts, err := c.engineOptions()
	if err != nil {
		return err
	}

	if ip := net.ParseIP(c.IP); ip == nil {
		return fmt.Errorf("invalid ip address")
	}
	if c.Port <= 0 {
		return fmt.Errorf("invalid port number")
	}
	addr := &net.TCPAddr{
		IP:   net.ParseIP(c.IP),
		Port: c.Port,
	}

	// Health checker for the background process initialization. We need to
	// verify that responding http server is really our child and not an older
	// instance.
	check := func(ctx context.Context, child *os.Process) (bool, error) {
		client := http.Client{Timeout: time.Second}
		resp, err := client.Get(fmt.Sprintf("http://%s/pid", addr.String()))
		if err != nil {
			return true, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return true, fmt.Errorf("http status: %d", resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return true, err
		}
		if pid := string(data); pid != fmt.Sprintf("%d", child.Pid) {
			return c.restart, fmt.Errorf("is another instance already running? pid mismatch: want %d got %s", child.Pid, pid)
		}
		return false, nil
	}

	if c.background {
		if err := daemonize.Daemonize(ctx, "VOLUMEBOT_DAEMONIZE", check); err != nil {
			return err
		}
	}

	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("could not create logs directory: %w", err)
	}
	backend := sglog.NewBackend(&sglog.Options{
		LogDirs: []string{logDir},
	})
	defer backend.Close()
	slog.SetDefault(slog.New(backend.Handler()))

	slog.Info("using data directory and secrets file", "data-dir", dataDir, "secrets", c.secretsPath)

	lockPath := filepath.Join(dataDir, "volumebot.lock")
	flock, err := lockfile.New(lockPath)
	if err != nil {
		return fmt.Errorf("could not create lock file %q: %w", lockPath, err)
	}
	if err := flock.TryLock(); err != nil {
		if !c.restart {
			return fmt.Errorf("could not get lock on file %q: %w", lockPath, err)
		}
		owner, err := flock.GetOwner()
		if err != nil {
			return fmt.Errorf("could not get current owner of the lock file: %w", err)
		}
		if err := owner.Signal(os.Interrupt); err == nil {
			slog.Info("waiting for the previous instance to shutdown", "pid", owner.Pid)
			if err := ctxutil.RetryTimeout(ctx, time.Second, c.shutdownTimeout, flock.TryLock); err != nil {
				if err := owner.Signal(os.Kill); err != nil {
					return fmt.Errorf("could not kill current owner of the lock file: %w", err)
				}
				ctxutil.Sleep(ctx, time.Millisecond)
			}
		}
		if err := flock.TryLock(); err != nil {
			return fmt.Errorf("could not get lock on file %q after killing previous instance: %w", lockPath, err)
		}
	}
	defer flock.Unlock()

	// Start HTTP server.
	s, err := httputil.New(nil /* opts */)
	if err != nil {
		return err
	}
	defer s.Close()

	tcpServer, err := s.StartTCP(ctx, addr)
	if err != nil {
		return fmt.Errorf("could not start http server on %s: %w", addr, err)
	}
	defer s.Stop(tcpServer)

	if !c.noPprof {
		s.AddHandler("/debug/pprof/heap", pprof.Handler("heap"))
		s.AddHandler("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		s.AddHandler("/debug/pprof/allocs", pprof.Handler("allocs"))
		s.AddHandler("/debug/pprof/block", pprof.Handler("block"))
		s.AddHandler("/debug/pprof/mutex", pprof.Handler("mutex"))
	}

	// Open the database.
	bopts := badger.DefaultOptions(filepath.Join(dataDir, "db"))
	bopts.Logger = nil
	bdb, err := badger.Open(bopts)
	if err != nil {
		return fmt.Errorf("could not open the database: %w", err)
	}
	defer bdb.Close()
	db := kvbadger.New(bdb, isGoodKey)

	s.AddHandler("/db/", http.StripPrefix("/db", kvhttp.Handler(db)))

	// Start the service.
	bot, err := server.New(ctx, secrets, db, opts)
	if err != nil {
		return err
	}
	defer bot.Close()

	handlers := bot.HandlerMap()
	for k, v := range handlers {
		s.AddHandler(k, v)
	}
	defer func() {
		for k := range handlers {
			s.RemoveHandler(k)
		}
	}()

	if err := bot.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := bot.Stop(context.Background()); err != nil {
			slog.Warn("could not stop all sessions (ignored)", "err", err)
		}
	}()

	// Wait for the signals

	slog.Info("started volumebot server", "addr", addr, "paper", c.paper)
	s.AddHandler("/pid", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, fmt.Sprintf("%d", os.Getpid()))
	}))

	<-ctx.Done()
	slog.Info("volumebot server is shutting down")
	return nil
}

func isGoodKey(k string) bool {
	return path.IsAbs(k) && k == path.Clean(k)
}
