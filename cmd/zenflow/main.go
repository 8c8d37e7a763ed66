// zenflow is the swarm coordination daemon.
//
// Usage:
//
//	zenflow run                        # run the coordinator
//	zenflow run --config zenflow.yaml  # with a config file
//	zenflow simulate --nodes 5         # run a self-contained swarm simulation
//	zenflow version                    # show version info
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mikkihugo/zenflow/config"
	"github.com/mikkihugo/zenflow/coordination"
	"github.com/mikkihugo/zenflow/coordination/hierarchy"
	"github.com/mikkihugo/zenflow/coordination/worksteal"
	"github.com/mikkihugo/zenflow/types"
)

// Injected at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runDaemon(os.Args[2:])
	case "simulate":
		runSimulation(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runDaemon(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	nodes := fs.Int("nodes", 3, "Number of initial swarm nodes")
	_ = fs.Parse(args)

	cfg, err := config.NewLoader().WithConfigPath(*configPath).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.Log.BuildLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	m, err := coordination.New(cfg.Coordination(), coordination.WithLogger(logger))
	if err != nil {
		logger.Fatal("failed to create coordinator", zap.Error(err))
	}
	if err := m.Start(); err != nil {
		logger.Fatal("failed to start coordinator", zap.Error(err))
	}

	for i := 0; i < *nodes; i++ {
		node := types.NewNode(fmt.Sprintf("node-%d", i+1), *nodes-i)
		if err := m.RegisterNode(node); err != nil {
			logger.Fatal("failed to register node", zap.String("node_id", node.ID), zap.Error(err))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Hot reload: a pattern change in the config file switches the live
	// coordinator over.
	if *configPath != "" {
		reloader, err := config.NewReloader(*configPath, logger)
		if err != nil {
			logger.Fatal("failed to create config reloader", zap.Error(err))
		}
		reloader.OnReload(func(old, next *config.Config) {
			if old.Pattern == next.Pattern {
				return
			}
			if err := m.SwitchPattern(coordination.Pattern(next.Pattern)); err != nil {
				logger.Warn("pattern switch from config reload failed", zap.Error(err))
			}
		})
		if err := reloader.Start(ctx); err != nil {
			logger.Fatal("failed to start config reloader", zap.Error(err))
		}
		defer reloader.Stop()
	}

	logger.Info("zenflow running",
		zap.String("version", Version),
		zap.String("pattern", cfg.Pattern),
		zap.Int("nodes", *nodes))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	if err := m.Shutdown(); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
		os.Exit(1)
	}
}

func runSimulation(args []string) {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	nodes := fs.Int("nodes", 5, "Number of swarm nodes")
	pattern := fs.String("pattern", "hybrid", "Coordination pattern")
	duration := fs.Duration("duration", 3*time.Second, "Simulation length")
	workItems := fs.Int("work", 50, "Work items to submit")
	_ = fs.Parse(args)

	logger, err := (&config.LogConfig{Level: "info", Format: "console"}).BuildLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg := coordination.DefaultConfig()
	cfg.Pattern = coordination.Pattern(*pattern)
	m, err := coordination.New(cfg, coordination.WithLogger(logger))
	if err != nil {
		logger.Fatal("failed to create coordinator", zap.Error(err))
	}
	if err := m.Start(); err != nil {
		logger.Fatal("failed to start coordinator", zap.Error(err))
	}

	ids := make([]string, 0, *nodes)
	for i := 0; i < *nodes; i++ {
		node := types.NewNode(fmt.Sprintf("sim-%d", i+1), *nodes-i)
		if err := m.RegisterNode(node); err != nil {
			logger.Fatal("failed to register node", zap.Error(err))
		}
		ids = append(ids, node.ID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	status := m.GetCoordinationStatus()
	if status.Enabled["election"] {
		if leader, err := m.StartElection(ctx); err != nil {
			logger.Warn("election failed", zap.Error(err))
		} else {
			logger.Info("leader elected", zap.String("leader", leader))
		}
	}
	if status.Enabled["consensus"] {
		for i := 0; i < 5; i++ {
			accepted, err := m.ProposeConsensus(ctx, fmt.Sprintf("sim-op-%d", i))
			if err != nil {
				logger.Warn("proposal failed", zap.Error(err))
				break
			}
			logger.Info("proposal settled", zap.Int("op", i), zap.Bool("accepted", accepted))
		}
	}
	if status.Enabled["work-stealing"] {
		for i := 0; i < *workItems; i++ {
			item := worksteal.NewWorkItem(i%10, map[string]any{"complexity": 1 + i%5})
			if _, err := m.SubmitWork(item); err != nil {
				logger.Warn("work submission failed", zap.Error(err))
			}
		}
	}
	if status.Enabled["hierarchical"] && len(ids) > 1 {
		for i := 1; i < len(ids); i++ {
			if accepted, _ := m.DelegateTask(hierarchy.DelegationRequest{
				DelegatorID: ids[0],
				DelegateID:  ids[i],
				Task:        fmt.Sprintf("sim-task-%d", i),
			}); !accepted {
				logger.Info("delegation declined", zap.String("delegate", ids[i]))
			}
		}
	}

	<-ctx.Done()

	final := m.GetCoordinationStatus()
	out, _ := json.MarshalIndent(final, "", "  ")
	fmt.Println(string(out))

	if err := m.Shutdown(); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("zenflow %s\n", Version)
	fmt.Printf("  build time: %s\n", BuildTime)
	fmt.Printf("  git commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`zenflow - swarm coordination engine

Usage:
  zenflow run [--config path] [--nodes n]          Run the coordinator daemon
  zenflow simulate [--nodes n] [--pattern p]
                   [--duration d] [--work n]       Run a swarm simulation
  zenflow version                                  Show version info
  zenflow help                                     Show this help`)
}
