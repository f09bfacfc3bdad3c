package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/events"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	pidList := flag.String("pid", "", "comma-separated target pids")
	snapshot := flag.String("snapshot", "", "binder transactions file (overrides resolver.snapshotPath)")
	asJSON := flag.Bool("json", false, "print resolutions as JSON")
	serveMode := flag.Bool("serve", false, "run the HTTP/RPC service")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *snapshot != "" {
		cfg.Resolver.SnapshotPath = *snapshot
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serveMode {
		logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
		if err := serve(ctx, cfg); err != nil {
			slog.Error("service failed", "error", err)
			os.Exit(1)
		}
		return
	}

	pids, err := parsePIDs(*pidList)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		flag.Usage()
		os.Exit(2)
	}
	// Logs go to stderr so that stdout stays machine-readable with -json.
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err := resolveOnce(ctx, cfg, pids, *asJSON, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "bindertrack: %v\n", err)
		os.Exit(1)
	}
}

func resolveOnce(ctx context.Context, cfg *config.Config, pids []int, asJSON bool, out io.Writer) error {
	// One-shot runs expose no /metrics, so counters go to a private registry.
	b := openBackends(ctx, cfg, metrics.New(prometheus.NewRegistry()))
	defer b.Close()

	var (
		results []*binder.Resolution
		err     error
	)
	if len(pids) == 1 {
		var res *binder.Resolution
		res, _, err = b.service.Resolve(ctx, pids[0], events.OriginCLI)
		results = []*binder.Resolution{res}
	} else {
		results, err = b.service.ResolveMany(ctx, pids, events.OriginCLI)
	}
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if len(results) == 1 {
			return enc.Encode(results[0])
		}
		return enc.Encode(results)
	}
	for _, res := range results {
		printResolution(out, cfg.Resolver.SnapshotPath, res)
	}
	return nil
}

func parsePIDs(list string) ([]int, error) {
	if strings.TrimSpace(list) == "" {
		return nil, fmt.Errorf("-pid is required unless -serve is given")
	}
	var pids []int
	for _, field := range strings.Split(list, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		pid, err := strconv.Atoi(field)
		if err != nil || pid <= 0 {
			return nil, fmt.Errorf("invalid pid %q", field)
		}
		pids = append(pids, pid)
	}
	if len(pids) == 0 {
		return nil, fmt.Errorf("-pid is required unless -serve is given")
	}
	return pids, nil
}
