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

package config

import (
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Settings are the ambient knobs that sit outside the nginx-style server
// grammar: poll tick override, default CGI timeout, and log level/format.
// They are not part of the wire-level configuration the dispatcher consumes
// (conf.Server/conf.Location). Only LogLevel and LogFormat take effect (in
// cmd/webserv); PollTick and CGITimeoutDefault are loaded but not passed to
// the engine, which always uses engine.DefaultTick and the dispatcher's
// 30-second cgi_timeout default.
type Settings struct {
	PollTick          time.Duration
	CGITimeoutDefault time.Duration
	LogLevel          string
	LogFormat         string
}

// LoadSettings reads ambient knobs from environment variables prefixed
// WEBSERV_ (e.g. WEBSERV_LOG_LEVEL, WEBSERV_POLL_TICK_MS), the way
// config/components/http/config.go overlays its vpr.UnmarshalKey reads with
// AutomaticEnv.
func LoadSettings() Settings {
	v := viper.New()
	v.SetEnvPrefix("WEBSERV")
	v.AutomaticEnv()

	v.SetDefault("poll_tick_ms", 250)
	v.SetDefault("cgi_timeout_default_s", 30)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "")

	return Settings{
		PollTick:          time.Duration(v.GetInt("poll_tick_ms")) * time.Millisecond,
		CGITimeoutDefault: time.Duration(v.GetInt("cgi_timeout_default_s")) * time.Second,
		LogLevel:          v.GetString("log_level"),
		LogFormat:         v.GetString("log_format"),
	}
}

// auxiliarySettings is the on-disk shape of the optional YAML settings file
// accepted via --settings. It overlays the Settings base passed in; an
// explicit --log-level/--log-format flag in cmd/webserv/main.go still wins
// over both, since flags are applied after this overlay.
type auxiliarySettings struct {
	PollTickMS         int    `yaml:"poll_tick_ms"`
	CGITimeoutDefaultS int    `yaml:"cgi_timeout_default_s"`
	LogLevel           string `yaml:"log_level"`
	LogFormat          string `yaml:"log_format"`
}

// LoadAuxiliarySettingsFile reads a small YAML file of ambient knobs, kept
// separate from the nginx-style server grammar (given on the command line
// with --settings). A zero-valued field in the file leaves the matching
// Settings field untouched.
func LoadAuxiliarySettingsFile(path string, base Settings) (Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}

	var aux auxiliarySettings
	if err := yaml.Unmarshal(raw, &aux); err != nil {
		return base, err
	}

	out := base
	if aux.PollTickMS > 0 {
		out.PollTick = time.Duration(aux.PollTickMS) * time.Millisecond
	}
	if aux.CGITimeoutDefaultS > 0 {
		out.CGITimeoutDefault = time.Duration(aux.CGITimeoutDefaultS) * time.Second
	}
	if aux.LogLevel != "" {
		out.LogLevel = aux.LogLevel
	}
	if aux.LogFormat != "" {
		out.LogFormat = aux.LogFormat
	}
	return out, nil
}
