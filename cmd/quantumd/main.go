package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/lyralab/quantumd/internal/adapter"
	"github.com/lyralab/quantumd/internal/config"
	"github.com/lyralab/quantumd/internal/history"
	"github.com/lyralab/quantumd/internal/supervisor"
)

func main() {
	log.Println("quantumd - quantum dispatch core")
	log.Println("================================")

	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, using environment variables")
	} else {
		log.Println("[config] Loaded .env file")
	}

	configPath := flag.String("config", "quantumd.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	command := flag.Arg(0)
	if command == "" {
		command = "start"
	}

	switch command {
	case "start":
		os.Exit(runStart(cfg))
	case "stop":
		os.Exit(runStop(cfg))
	case "status":
		os.Exit(runStatus(cfg))
	default:
		log.Printf("Unknown command %q (want start, stop, or status)", command)
		os.Exit(1)
	}
}

func pidFile(cfg *config.Config) string {
	return filepath.Join(cfg.StatePath, "system", "quantumd.pid")
}

// runStart brings the core up and blocks until a shutdown signal arrives.
// Exit 0 on clean shutdown, 1 when startup fails, 2 on a fatal runtime
// error.
func runStart(cfg *config.Config) int {
	if err := os.MkdirAll(filepath.Join(cfg.StatePath, "system"), 0755); err != nil {
		log.Printf("Failed to create state directory: %v", err)
		return 1
	}

	core := supervisor.New(cfg, supervisor.Callbacks{})
	var chat *adapter.DiscordAdapter

	if cfg.Discord.Token != "" {
		var err error
		chat, err = adapter.NewDiscordAdapter(adapter.DiscordConfig{
			Token:     cfg.Discord.Token,
			ChannelID: cfg.Discord.ChannelID,
		}, core)
		if err != nil {
			log.Printf("Failed to create Discord adapter: %v", err)
			return 1
		}
		core = supervisor.New(cfg, supervisor.Callbacks{
			OnReply:   chat.DeliverReply,
			OnFailure: chat.DeliverFailure,
		})
	} else {
		log.Println("[main] DISCORD_TOKEN not set, running without chat ingress")
	}

	if err := core.Start(); err != nil {
		log.Printf("Failed to start dispatch core: %v", err)
		return 1
	}

	if chat != nil {
		if err := chat.Start(); err != nil {
			log.Printf("Failed to connect chat adapter: %v", err)
			core.Shutdown()
			return 1
		}
	}

	if err := writePID(pidFile(cfg)); err != nil {
		log.Printf("Failed to write pid file: %v", err)
		core.Shutdown()
		return 1
	}
	defer os.Remove(pidFile(cfg))

	log.Println("[main] Running. Send SIGINT or SIGTERM to stop.")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("[main] Received %v, shutting down", sig)

	if chat != nil {
		if err := chat.Stop(); err != nil {
			log.Printf("[main] Chat adapter stop: %v", err)
		}
	}
	core.Shutdown()
	return 0
}

// runStop signals a running instance via its pid file.
func runStop(cfg *config.Config) int {
	pid, err := readPID(pidFile(cfg))
	if err != nil {
		log.Printf("Not running: %v", err)
		return 1
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		log.Printf("Process %d not found: %v", pid, err)
		return 1
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		log.Printf("Failed to signal %d: %v", pid, err)
		return 2
	}
	log.Printf("Sent SIGTERM to %d", pid)
	return 0
}

// runStatus prints dispatch statistics from the history store.
func runStatus(cfg *config.Config) int {
	if pid, err := readPID(pidFile(cfg)); err == nil {
		fmt.Printf("quantumd running (pid %d)\n", pid)
	} else {
		fmt.Println("quantumd not running")
	}

	hist, err := history.Open(cfg.StatePath)
	if err != nil {
		log.Printf("Failed to open history: %v", err)
		return 1
	}
	defer hist.Close()

	stats, err := hist.GetStats()
	if err != nil {
		log.Printf("Failed to read stats: %v", err)
		return 2
	}
	fmt.Printf("dispatches: %d total, %d successful, %d degraded\n",
		stats.Total, stats.Successful, stats.Degraded)
	fmt.Printf("average collapse time: %.2fs\n", stats.AvgTotalSeconds)

	recent, err := hist.Recent(5)
	if err != nil {
		log.Printf("Failed to read recent dispatches: %v", err)
		return 2
	}
	for _, r := range recent {
		fmt.Printf("  %s  %-9s  user=%s  %.2fs  cpu=%.0f%%\n",
			r.CompletedAt.Format("2006-01-02 15:04:05"), r.State, r.UserID, r.TotalSeconds, r.CPUUtilization)
	}
	return 0
}

func writePID(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("bad pid file: %w", err)
	}
	return pid, nil
}
