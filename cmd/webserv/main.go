/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"net/http"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nabbar/webserv/internal/conf"
	"github.com/nabbar/webserv/internal/config"
	"github.com/nabbar/webserv/internal/engine"
	"github.com/nabbar/webserv/internal/logging"
	"github.com/nabbar/webserv/internal/metrics"
)

var (
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string
	flagMetrics   bool
	flagMetricsOn string
	flagSettings  string
)

func main() {
	root := &cobra.Command{
		Use:           "webserv",
		Short:         "Single-process, event-driven HTTP/1.1 server",
		Long:          "webserv serves static files, directory listings, uploads, and CGI/1.1 scripts across nginx-style virtual hosts, driven by one epoll readiness loop.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          run,
	}

	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to the nginx-style configuration file (required)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "override the configured log format (text, json)")
	root.PersistentFlags().BoolVar(&flagMetrics, "metrics", false, "expose Prometheus metrics")
	root.PersistentFlags().StringVar(&flagMetricsOn, "metrics-addr", "127.0.0.1:9090", "address the metrics endpoint listens on, when --metrics is set")
	root.PersistentFlags().StringVar(&flagSettings, "settings", "", "optional YAML file of ambient knobs (poll_tick_ms, cgi_timeout_default_s, log_level, log_format), kept separate from --config's server grammar")

	_ = root.MarkPersistentFlagFilename("config", "conf", "txt")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run is the cobra RunE body: load and validate configuration, wire up
// logging and optional metrics, start the engine, and block until a signal
// requests a graceful stop (mirrors nabbar-golib/cobra/configure.go's
// load-then-validate sequence, folded into one command since webserv has no
// subcommands).
func run(cmd *cobra.Command, args []string) error {
	// SIGPIPE on a half-closed socket must not kill the process; the engine
	// already treats EPIPE as an ordinary connection-close condition.
	signal.Ignore(syscall.SIGPIPE)

	if flagConfig == "" {
		return fmt.Errorf("missing required --config/-c flag")
	}

	settings := config.LoadSettings()
	if flagSettings != "" {
		loaded, serr := config.LoadAuxiliarySettingsFile(flagSettings, settings)
		if serr != nil {
			return fmt.Errorf("loading --settings file: %w", serr)
		}
		settings = loaded
	}
	if flagLogLevel != "" {
		settings.LogLevel = flagLogLevel
	}
	if flagLogFormat != "" {
		settings.LogFormat = flagLogFormat
	}

	log := logging.New(logging.Options{Level: settings.LogLevel, Format: settings.LogFormat})

	servers, cerr := config.Load(flagConfig)
	if cerr != nil {
		log.WithError(cerr).Error("configuration load failed")
		return cerr
	}

	printBanner(servers, flagConfig)

	var met *metrics.Collectors
	if flagMetrics {
		met = metrics.New(prometheus.DefaultRegisterer)
		go serveMetrics(flagMetricsOn, log)
	}

	eng, eerr := engine.New(servers, log, met)
	if eerr != nil {
		log.WithError(eerr).Error("engine failed to start")
		return eerr
	}

	stop := make(chan struct{})
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigc
		log.Info("shutdown signal received, closing connections")
		close(stop)
	}()

	if rerr := eng.Run(stop); rerr != nil {
		log.WithError(rerr).Error("engine stopped with error")
		return rerr
	}

	return nil
}

func serveMetrics(addr string, log *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Warn("metrics endpoint stopped")
	}
}

// printBanner writes a short colourised startup summary on a TTY, in the
// spirit of the teacher's cobra/ui colour use for human-facing CLI output.
func printBanner(servers []conf.Server, confPath string) {
	bold := color.New(color.Bold)
	_, _ = bold.Println("webserv")
	color.Cyan("config: %s", confPath)
	for _, srv := range servers {
		name := "_"
		if len(srv.Names) > 0 {
			name = srv.Names[0]
		}
		color.Green("  server %-20s listen %v", name, srv.Listen)
	}
}
