/*
Package main is the entry point for the greenlink command-line application.

greenlink finds URLs and bare domains in source code and reports whether each one is served
from verified green hosting, as recorded by the Green Web Foundation.

  - extract:  print the URL and domain occurrences in a file or stdin, without lookups.
  - check:    classify domains given on the command line.
  - scan:     scan files and directories, classify every domain found, optionally write a CSV report.
  - cache:    inspect or clear the classification cache.
  - serve:    run the JSON API used by editor integrations.

Settings come from an optional YAML file (--config), GREENLINK_* environment variables and
flags, in increasing precedence. Classifications are cached for seven days in a file under
the user cache directory, in Redis, or only in memory (--store).
*/
package main

/*
greenlink — finds URLs and domains in source code and checks them for green hosting
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/x-stp/greenlink/internal/config"
	"github.com/x-stp/greenlink/internal/metrics"
)

// Global flags (persistent across commands)
var (
	configPath   string
	storeBackend string
	cacheDir     string
	redisURL     string
	apiURL       string
	concurrency  int
	timeout      time.Duration
	rateLimit    float64
	metricsAddr  string
	debug        bool
)

// Flags specific to individual commands
var (
	outputPath    string
	compress      bool
	showStats     bool
	workspaceMode bool
	jsonOutput    bool
	listenAddr    string
)

// cfg is resolved in PersistentPreRunE and read by every command.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:           "greenlink",
	Short:         "greenlink - find domains in source code and check them for green hosting",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlags(cmd, &loaded)
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded

		if cfg.Debug {
			log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}
		return nil
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Print URL and domain occurrences in a file (or stdin) without classifying them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExtract(cmd.OutOrStdout(), args)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <domain>...",
	Short: "Classify one or more domains",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(cmd.Context(), cmd.OutOrStdout(), args)
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan [path]...",
	Short: "Scan files and directories and classify every domain found",
	Long: `Walks the given paths (default: current directory), skipping VCS metadata, dependency
and build directories, binary files and files larger than the configured limit. All
domains found are classified in one batch. With --output the findings are written as CSV:
file,start,end,domain,status,hosted_by,error`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			args = []string{"."}
		}
		return runScan(cmd.Context(), cmd.OutOrStdout(), args)
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the classification cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show how many cached domains are green, not verified or errored",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCacheStats(cmd.Context(), cmd.OutOrStdout())
	},
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached classifications",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCacheList(cmd.Context(), cmd.OutOrStdout())
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the in-memory and durable cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCacheClear(cmd.Context(), cmd.OutOrStdout())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the JSON API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to a YAML config file")
	pf.StringVar(&storeBackend, "store", config.StoreFile, "Cache store: file, redis or memory")
	pf.StringVar(&cacheDir, "cache-dir", "", "Directory for the file store (default: user cache dir)")
	pf.StringVar(&redisURL, "redis-url", "", "Redis URL or host:port for the redis store")
	pf.StringVar(&apiURL, "api-url", "", "Base URL of the greencheck API")
	pf.IntVarP(&concurrency, "concurrency", "c", 0, "Number of lookup workers")
	pf.DurationVar(&timeout, "timeout", 0, "Per-lookup timeout")
	pf.Float64Var(&rateLimit, "rate", 0, "Maximum lookups per second (0 for unlimited)")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	pf.BoolVar(&debug, "debug", false, "Enable debug logging")

	extractCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print matches as JSON")
	checkCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")

	scanCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write a CSV report to this file or directory")
	scanCmd.Flags().BoolVar(&compress, "compress", false, "Gzip the CSV report")
	scanCmd.Flags().BoolVarP(&showStats, "stats", "s", true, "Print scan statistics to stderr")
	scanCmd.Flags().BoolVar(&workspaceMode, "workspace-mode", false, "Widen the HTTP connection pool for large scans")
	scanCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print findings as JSON")

	cacheListCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print entries as JSON")

	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "API listen address (default :8080)")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(serveCmd)
}

// applyFlags copies explicitly set flags over c.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("store") {
		c.Store = storeBackend
	}
	if flags.Changed("cache-dir") {
		c.CacheDir = cacheDir
	}
	if flags.Changed("redis-url") {
		c.RedisURL = redisURL
		if !flags.Changed("store") && c.Store == config.StoreFile {
			c.Store = config.StoreRedis
		}
	}
	if flags.Changed("api-url") {
		c.APIURL = apiURL
	}
	if flags.Changed("concurrency") {
		c.Workers = concurrency
	}
	if flags.Changed("timeout") {
		c.LookupTimeout = timeout
	}
	if flags.Changed("rate") {
		c.RatePerSecond = rateLimit
	}
	if flags.Changed("metrics-addr") {
		c.MetricsAddr = metricsAddr
	}
	if flags.Changed("debug") {
		c.Debug = debug
	}
	if flags.Changed("listen") {
		c.ListenAddr = listenAddr
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.EnableMetrics()

	err := rootCmd.ExecuteContext(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if serr := metrics.ShutdownMetricsServer(shutdownCtx); serr != nil {
		log.Printf("Failed to stop metrics server: %v", serr)
	}
	cancel()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Interrupted.")
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
