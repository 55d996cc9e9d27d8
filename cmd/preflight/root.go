package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/preflight"
	"github.com/aretw0/preflight/internal/config"
	"github.com/aretw0/preflight/internal/logging"
	"github.com/aretw0/preflight/pkg/adapters/redis"
	"github.com/spf13/cobra"
)

// redisPrefix namespaces lock keys in a shared Redis.
const redisPrefix = "preflight:"

var rootCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Rule-driven precheck for document-generation requests",
	Long: `Preflight classifies a request, resolves its region and domain, selects knowledge packs
and gates it before any content is produced. Every stage writes a hash-stamped artifact
so the decision can be audited and replayed. Rule sets are managed as versioned packs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitError carries a process exit code other than 1.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if ee.msg != "" {
				fmt.Fprintln(os.Stderr, ee.msg)
			}
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("dir", ".", "Project directory holding the config file")
	rootCmd.PersistentFlags().String("config", "", "Config file, relative to --dir (default kg_config.json, .yaml or .yml)")
	rootCmd.PersistentFlags().String("artifacts", "", "Artifact directory (default: artifact_dir from the config, else <dir>/build)")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("redis", os.Getenv("PREFLIGHT_REDIS_URL"), "Redis URL for cross-process locks (default: in-process locks)")
}

// newEngine builds the facade from the persistent flags. The returned close
// function releases the Redis client, if any.
func newEngine(cmd *cobra.Command) (*preflight.Engine, func(), error) {
	flags := cmd.Flags()
	dir, _ := flags.GetString("dir")
	name, _ := flags.GetString("config")
	artifacts, _ := flags.GetString("artifacts")
	levelName, _ := flags.GetString("log-level")
	redisURL, _ := flags.GetString("redis")

	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(level)
	opts := []preflight.Option{preflight.WithLogger(logger)}
	if artifacts != "" {
		opts = append(opts, preflight.WithArtifactDir(artifacts))
	}

	closeFn := func() {}
	if redisURL != "" {
		client, err := redis.NewClient(redisURL)
		if err != nil {
			return nil, nil, err
		}
		closeFn = func() { _ = client.Close() }
		opts = append(opts, preflight.WithLocker(redis.NewLocker(client, redisPrefix)))
		logger.Debug("using redis locks", "prefix", redisPrefix)
	}

	eng, err := preflight.New(config.Locate(dir, name), opts...)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return eng, closeFn, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
