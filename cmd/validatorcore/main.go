package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/stakenet/validatorcore/internal/accounts"
	"github.com/stakenet/validatorcore/internal/banking"
	"github.com/stakenet/validatorcore/internal/blockhash"
	"github.com/stakenet/validatorcore/internal/builtin"
	"github.com/stakenet/validatorcore/internal/ledger"
	applog "github.com/stakenet/validatorcore/internal/log"
	"github.com/stakenet/validatorcore/internal/locks"
	"github.com/stakenet/validatorcore/internal/loader"
	"github.com/stakenet/validatorcore/internal/metrics"
	"github.com/stakenet/validatorcore/internal/poh"
	"github.com/stakenet/validatorcore/internal/processor"
	"github.com/stakenet/validatorcore/internal/programcache"
	"github.com/stakenet/validatorcore/internal/rent"
	"github.com/stakenet/validatorcore/internal/stake"
	"github.com/stakenet/validatorcore/internal/types"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code. It accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	cfg, exit, code := parseFlags(args)
	if exit {
		return code
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return 1
	}
	if err := cfg.InitDataDir(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize datadir: %v\n", err)
		return 1
	}

	logger := buildLogger(cfg)
	logger.Info("validatorcore starting",
		"version", version, "commit", commit,
		"datadir", cfg.DataDir, "identity", cfg.Identity, "workers", cfg.Workers)

	reg := metrics.NewRegistry("validatorcore")
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, reg, logger)
	}

	acctLedger, err := ledger.OpenAccountStore(cfg.DataDir+"/accounts", cfg.AccountStoreCacheBytes, logger)
	if err != nil {
		logger.Error("failed to open account store", "err", err)
		return 1
	}
	defer acctLedger.Close()

	forkGraph := bootstrapForkGraph{}
	store := accounts.New(forkGraph, acctLedger, reg, logger)

	self := types.HexToPubkey(cfg.Identity)
	schedule := bootstrapLeaderSchedule{self: self}

	env := programcache.NewEnvironment("genesis")
	// The program cache (C3) governs availability of compiled BPF program
	// artifacts; the VM that would execute them is explicitly out of scope
	// (spec.md §1), so the builtin registry below dispatches directly and
	// the cache is constructed but not consulted on the hot path here.
	_ = programcache.New(cfg.ProgramCacheMaxDistinct, env, forkGraph, reg, logger)

	// The stake engine (C1) produces effective-stake numbers the consensus
	// layer consumes at epoch boundaries; it has no dependency on the
	// per-slot banking pipeline below, so it is constructed standalone.
	_ = stake.NewHistory()

	lockTable := locks.New(reg, logger)
	registry := builtin.New()
	rentCollector := rent.New()
	proc := processor.New(registry, rentCollector, logger)
	bhQueue := blockhash.New(blockhash.DefaultMaxAge)
	bhQueue.RegisterHash([32]byte{}, 5000) // genesis blockhash, lamports_per_signature bootstrap value
	ld := loader.New(store, bhQueue, rentCollector, types.Pubkey{}, false, logger)

	recorder := poh.New([32]byte{}, schedule, cfg.Workers*2, logger)
	recorder.SetBank(&poh.Bank{Slot: 0, MaxTickHeight: cfg.MaxTickHeight}, 0)

	applier := &storeApplier{store: store}
	ancestors := func() types.AncestorSet { return types.NewAncestorSet(0) }

	stage, voteIn, nonVoteIns := buildBankingStage(cfg, self, lockTable, ld, proc, recorder, applier, ancestors, reg, logger)
	router := banking.NewRouter(voteIn, nonVoteIns)
	_ = router // wired for a future ingest stage (spec.md §1 "wire-level packet ingest" is out of scope)

	ctx, cancel := context.WithCancel(context.Background())
	runErrs := make(chan error, 1)
	go func() { runErrs <- stage.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
		<-runErrs
	case err := <-runErrs:
		if err != nil {
			logger.Error("banking stage exited", "err", err)
			return 1
		}
	}

	logger.Info("shutdown complete")
	return 0
}

// buildBankingStage constructs one Worker per configured slot (worker 0 is
// the vote worker, spec.md §4.8) and wraps them in a Stage.
func buildBankingStage(
	cfg Config,
	self types.Pubkey,
	lockTable *locks.Table,
	ld *loader.Loader,
	proc *processor.Processor,
	recorder *poh.Recorder,
	applier *storeApplier,
	ancestors func() types.AncestorSet,
	reg *metrics.Registry,
	logger *applog.Logger,
) (*banking.Stage, chan<- types.Transaction, []chan<- types.Transaction) {
	workers := make([]*banking.Worker, cfg.Workers)
	var voteIn chan types.Transaction
	nonVoteIns := make([]chan<- types.Transaction, 0, cfg.Workers-1)

	for i := 0; i < cfg.Workers; i++ {
		incoming := make(chan types.Transaction, cfg.BufferCap)
		isVote := i == 0
		if isVote {
			voteIn = incoming
		} else {
			nonVoteIns = append(nonVoteIns, incoming)
		}
		workers[i] = banking.NewWorker(banking.Config{
			ID:         i,
			IsVote:     isVote,
			Incoming:   incoming,
			BufferCap:  cfg.BufferCap,
			Table:      lockTable,
			Loader:     ld,
			Processor:  proc,
			Recorder:   recorder,
			Forwarder:  udpForwarder{},
			Applier:    applier,
			Costs:      banking.NewCostTracker(cfg.SlotCostBudget),
			Ancestors:  ancestors,
			Self:       self,
			NextLeaderAddr: func(types.Pubkey) (*net.UDPAddr, bool) { return nil, false },
			Metrics:    reg,
			Logger:     logger,
		})
	}
	return banking.NewStage(workers), voteIn, nonVoteIns
}

func buildLogger(cfg Config) *applog.Logger {
	level := levelFor(VerbosityToLogLevel(cfg.Verbosity))
	if cfg.LogRotatePath != "" {
		return applog.NewRotating(cfg.LogRotatePath, level, 100, 5, 28)
	}
	return applog.New(level)
}

func levelFor(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func serveMetrics(addr string, reg *metrics.Registry, logger *applog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	logger.Info("metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server exited", "err", err)
	}
}

// parseFlags parses CLI arguments into a Config. Returns the config, whether
// the caller should exit immediately, and the exit code.
func parseFlags(args []string) (Config, bool, int) {
	cfg := DefaultConfig()
	fs := newFlagSet(&cfg)
	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cfg, true, 2
	}
	if *showVersion {
		fmt.Printf("validatorcore %s (commit %s)\n", version, commit)
		return cfg, true, 0
	}
	return cfg, false, 0
}
