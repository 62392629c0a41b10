// Package main provides the ndexgraph CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ndexbio/ndexgraph/pkg/clone"
	"github.com/ndexbio/ndexgraph/pkg/config"
	"github.com/ndexbio/ndexgraph/pkg/metrics"
	"github.com/ndexbio/ndexgraph/pkg/model"
	"github.com/ndexbio/ndexgraph/pkg/ndexdb"
	"github.com/ndexbio/ndexgraph/pkg/tasks"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ndexgraph",
		Short: "ndexgraph - NDEx network store with clone and rebuild",
		Long: `ndexgraph stores NDEx networks as owned graphs in an embedded database.

Features:
  • Clone a network snapshot into a fresh, independent graph
  • Rebuild a live network in place and swap it in atomically
  • Deferred deletion of displaced graphs through a persistent task queue
  • Crash recovery for interrupted rebuilds`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "ndexgraph.yaml", "Config file (NDEX_* variables override it)")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (overrides config)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ndexgraph v%s (%s)\n", version, commit)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Initialize a data directory and write a default config",
		RunE:  runInit,
	})

	cloneCmd := &cobra.Command{
		Use:   "clone [snapshot.json]",
		Short: "Clone a network snapshot into a new network",
		Args:  cobra.ExactArgs(1),
		RunE:  runClone,
	}
	cloneCmd.Flags().String("owner", "", "Account granted admin on the clone")
	rootCmd.AddCommand(cloneCmd)

	updateCmd := &cobra.Command{
		Use:   "update [snapshot.json]",
		Short: "Rebuild a live network from a snapshot and swap it in",
		Args:  cobra.ExactArgs(1),
		RunE:  runUpdate,
	}
	updateCmd.Flags().String("network", "", "UUID of the network to replace (defaults to the snapshot's externalId)")
	rootCmd.AddCommand(updateCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "recover",
		Short: "Settle clones and updates interrupted by a crash",
		RunE:  runRecover,
	})

	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the deferred task workers",
		RunE:  runWorker,
	}
	workerCmd.Flags().Int("workers", 0, "Worker count (overrides config)")
	workerCmd.Flags().Bool("drain", false, "Process visible tasks and exit")
	rootCmd.AddCommand(workerCmd)

	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Account operations",
	}
	accountCmd.AddCommand(&cobra.Command{
		Use:   "add [name]",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE:  runAccountAdd,
	})
	rootCmd.AddCommand(accountCmd)

	networkCmd := &cobra.Command{
		Use:   "network",
		Short: "Network operations",
	}
	networkCmd.AddCommand(&cobra.Command{
		Use:   "show [uuid]",
		Short: "Print a network summary as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runNetworkShow,
	})
	networkCmd.AddCommand(&cobra.Command{
		Use:   "citations [uuid]",
		Short: "Print a network's citations as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runNetworkCitations,
	})
	networkCmd.AddCommand(&cobra.Command{
		Use:   "delete [uuid]",
		Short: "Queue a network for deletion",
		Args:  cobra.ExactArgs(1),
		RunE:  runNetworkDelete,
	})
	rootCmd.AddCommand(networkCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig applies the persistent flags on top of the layered config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.Database.DataDir = dataDir
		cfg.Tasks.QueuePath = filepath.Join(dataDir, "tasks.db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// app is everything a command needs, opened from one config.
type app struct {
	cfg    *config.Config
	db     *ndexdb.DB
	queue  *tasks.SQLiteQueue
	engine *clone.Engine
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	db, err := ndexdb.Open(&ndexdb.Config{
		DataDir:      filepath.Join(cfg.Database.DataDir, "graph"),
		InMemory:     cfg.Database.InMemory,
		SyncWrites:   cfg.Database.SyncWrites,
		MemTableSize: cfg.Database.MemTableSize,
		LowMemory:    cfg.Database.LowMemory,
		LogBadger:    cfg.Logging.Badger,
		URIPrefix:    cfg.NDEx.URIPrefix,
		IDLease:      cfg.NDEx.IDLease,
		DeleteBatch:  cfg.NDEx.DeleteBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	queue, err := tasks.OpenSQLiteQueue(cfg.Tasks.QueuePath, tasks.QueueOptions{
		VisibilityTimeout: cfg.Tasks.VisibilityTimeout,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening task queue: %w", err)
	}

	return &app{
		cfg:    cfg,
		db:     db,
		queue:  queue,
		engine: clone.New(db, queue),
	}, nil
}

func (r *app) Close() {
	if err := r.queue.Close(); err != nil {
		log.Printf("[NDEx] Warning: closing task queue: %v", err)
	}
	if err := r.db.Close(); err != nil {
		log.Printf("[NDEx] Warning: closing database: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func readSnapshot(path string) (*model.Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return model.ReadNetwork(f)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dataDir := cfg.Database.DataDir

	fmt.Printf("📂 Initializing ndexgraph in %s\n", dataDir)
	for _, dir := range []string{dataDir, filepath.Join(dataDir, "graph")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dataDir, "ndexgraph.yaml")
	configContent := fmt.Sprintf(`# ndexgraph configuration
database:
  data_dir: %s
  memtable_size: 64MB

ndex:
  uri_prefix: %s
  id_lease: 1000
  delete_batch: 500

tasks:
  queue_path: %s
  workers: 2
  visibility_timeout: 5m
  max_attempts: 5
  poll_interval: 1s

metrics:
  enabled: false
  address: ":9464"
`, dataDir, cfg.NDEx.URIPrefix, filepath.Join(dataDir, "tasks.db"))
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Println("✅ Initialized")
	fmt.Printf("   Config: %s\n", configPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Create an owner:  ndexgraph account add alice --config", configPath)
	fmt.Println("  2. Clone a network:  ndexgraph clone network.json --owner alice --config", configPath)
	fmt.Println("  3. Run the workers:  ndexgraph worker --config", configPath)
	return nil
}

func runClone(cmd *cobra.Command, args []string) error {
	owner, _ := cmd.Flags().GetString("owner")
	if owner == "" {
		return errors.New("--owner is required")
	}

	src, err := readSnapshot(args[0])
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}

	rt, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	summary, err := rt.engine.CloneNetwork(ctx, src, owner)
	if err != nil {
		return fmt.Errorf("cloning %s: %w", args[0], err)
	}
	log.Printf("[NDEx] Cloned %q as %s in %v", summary.Name, summary.ExternalID, time.Since(start))
	return printJSON(summary)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	src, err := readSnapshot(args[0])
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	if target, _ := cmd.Flags().GetString("network"); target != "" {
		id, err := uuid.Parse(target)
		if err != nil {
			return fmt.Errorf("--network: %w", err)
		}
		src.ExternalID = id
	}

	rt, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()

	summary, err := rt.engine.UpdateNetwork(ctx, src)
	if err != nil {
		return fmt.Errorf("updating %s: %w", src.ExternalID, err)
	}
	log.Printf("[NDEx] Rebuilt %s (%d nodes, %d edges)", summary.ExternalID, summary.NodeCount, summary.EdgeCount)
	return printJSON(summary)
}

func runRecover(cmd *cobra.Command, args []string) error {
	rt, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := signalContext()
	defer cancel()

	report, err := rt.engine.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recovering: %w", err)
	}
	fmt.Printf("✅ Recovery complete: %d unlocked, %d abandoned, %d resumed, %d discarded, %d resubmitted\n",
		report.Unlocked, report.Abandoned, report.Resumed, report.Discarded, report.Resubmitted)
	return nil
}

func runWorker(cmd *cobra.Command, args []string) error {
	rt, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		workers = rt.cfg.Tasks.Workers
	}
	drain, _ := cmd.Flags().GetBool("drain")

	ctx, cancel := signalContext()
	defer cancel()

	// Interrupted updates must be settled before any task runs.
	if _, err := rt.engine.Recover(ctx); err != nil {
		return fmt.Errorf("recovering: %w", err)
	}

	p := tasks.NewProcessor(rt.queue, tasks.ProcessorOptions{
		Workers:      workers,
		PollInterval: rt.cfg.Tasks.PollInterval,
		MaxAttempts:  rt.cfg.Tasks.MaxAttempts,
	})
	p.Handle(tasks.TypeDeleteNetwork, tasks.DeleteNetworkHandler(rt.db))

	if drain {
		n, err := p.Drain(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("✅ Processed %d task(s)\n", n)
		return nil
	}

	if rt.cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: rt.cfg.Metrics.Address, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[NDEx] Metrics server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		log.Printf("[NDEx] Metrics on http://%s/metrics", rt.cfg.Metrics.Address)
	}

	fmt.Println("Press Ctrl+C to stop")
	return p.Run(ctx)
}

func runAccountAdd(cmd *cobra.Command, args []string) error {
	rt, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	id, err := rt.db.Accounts().CreateAccount(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("creating account %q: %w", args[0], err)
	}
	fmt.Printf("✅ Account %q created (%s)\n", args[0], id)
	return nil
}

func runNetworkShow(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return err
	}
	rt, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	summary, err := rt.db.GetNetwork(cmd.Context(), id)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func runNetworkCitations(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return err
	}
	rt, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	citations, err := rt.db.NetworkCitations(cmd.Context(), id)
	if err != nil {
		return err
	}
	return printJSON(citations)
}

func runNetworkDelete(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return err
	}
	rt, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	summary, err := rt.db.GetNetwork(ctx, id)
	if err != nil {
		return err
	}
	if summary.IsLocked {
		return fmt.Errorf("network %s: %w", id, ndexdb.ErrNetworkLocked)
	}
	if err := rt.queue.Submit(ctx, tasks.DeleteNetworkTask(id)); err != nil {
		return err
	}
	fmt.Printf("🗑️  Network %s queued for deletion\n", id)
	return nil
}
