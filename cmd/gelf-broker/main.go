/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Command gelf-broker runs the GELF intake broker daemon: it reads its
// configuration from a YAML file and/or flag overrides, binds the intake
// listener and upstream connector, and blocks until a shutdown signal.
package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nabbar/gelf-broker/gelf/broker"
	"github.com/nabbar/gelf-broker/gelf/config"
	gelflog "github.com/nabbar/gelf-broker/gelf/log"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

const (
	exitOK      = 0
	exitUsage   = 1
	exitBadArgs = 2
	exitStartup = 3
)

// errBadArgs marks a flag combination that is well-formed but insufficient
// to build a configuration, per the "bad arguments" exit code in §6.
var errBadArgs = errors.New("either --config or both --listen and --graylog must be given")

type flags struct {
	logLevel string
	fake     bool
	listen   string
	graylog  string
	config   string
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	f := &flags{}

	cmd := &cobra.Command{
		Use:           "gelf-broker",
		Short:         "Forward locally-received GELF records to a remote Graylog endpoint",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected arguments: %v", args)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(f)
		},
	}

	cmd.Flags().StringVar(&f.logLevel, "log", "", "log level: debug, info, warn, or error (default: silent)")
	cmd.Flags().BoolVar(&f.fake, "fake", false, "print received records to stdout instead of forwarding")
	cmd.Flags().StringVar(&f.listen, "listen", "", "intake unix socket path, overrides the config file's socket")
	cmd.Flags().StringVar(&f.graylog, "graylog", "", "upstream host:port, overrides the config file's graylog")
	cmd.Flags().StringVar(&f.config, "config", "", "path to the YAML configuration file")

	if len(args) == 0 {
		_ = cmd.Help()
		return exitUsage
	}

	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gelf-broker:", err)
		if errors.Is(err, errBadArgs) {
			return exitBadArgs
		}
		return exitStartup
	}

	return exitOK
}

func serve(f *flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	logger := gelflog.New(f.logLevel, os.Stderr)

	opts := broker.Options{
		Fake:       f.fake,
		Logger:     logger,
		ConfigPath: f.config,
	}

	b, bErr := broker.New(cfg, opts)
	if bErr != nil {
		return bErr
	}

	if cfg.Metrics.Listen != "" {
		go serveMetrics(cfg.Metrics.Listen, b)
	}

	b.Run()
	return nil
}

// loadConfig builds a *config.Config either from --config, or, when absent,
// directly from --listen and --graylog.
func loadConfig(f *flags) (*config.Config, error) {
	if f.config != "" {
		cfg, err := config.Load(f.config, true, nil)
		if err != nil {
			return nil, err
		}
		if f.listen != "" {
			cfg.Socket = f.listen
		}
		if f.graylog != "" {
			cfg.Graylog = f.graylog
		}
		return cfg, nil
	}

	if f.listen == "" || f.graylog == "" {
		return nil, errBadArgs
	}

	cfg := &config.Config{
		Socket:  f.listen,
		Graylog: f.graylog,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// serveMetrics exposes the broker's Prometheus registry over HTTP, per the
// optional "metrics.listen" configuration key.
func serveMetrics(addr string, b *broker.Broker) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(b.Metrics().Registry(), promhttp.HandlerOpts{}))
	_ = http.ListenAndServe(addr, mux)
}
