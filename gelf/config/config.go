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

// Package config loads and validates the broker's YAML configuration file,
// and optionally bridges filesystem change notifications to a reload hook.
package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	libval "github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	liberr "github.com/nabbar/gelf-broker/errors"
	"github.com/nabbar/gelf-broker/gelf/upstream"
)

const (
	ErrRead liberr.CodeError = iota + 4701
	ErrValidate
	ErrTLSOption
)

func init() {
	liberr.RegisterIdFctMessage(ErrRead, getMessage)
}

func getMessage(code liberr.CodeError) (message string) {
	switch code {
	case ErrRead:
		return "cannot read configuration file"
	case ErrValidate:
		return "configuration failed validation"
	case ErrTLSOption:
		return "configuration has an invalid ssl option"
	}
	return liberr.NullMessage
}

// Queue holds the soft queue-length cap, see §5 ("queue.max_length").
type Queue struct {
	MaxLength int `mapstructure:"max_length" yaml:"max_length" validate:"gte=0"`
}

// Metrics holds the optional Prometheus HTTP exposition endpoint.
type Metrics struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// Config is the broker's YAML configuration document, per §6.
type Config struct {
	Socket   string            `mapstructure:"socket" yaml:"socket" validate:"required"`
	Perms    string            `mapstructure:"perms" yaml:"perms"`
	Graylog  string            `mapstructure:"graylog" yaml:"graylog" validate:"required"`
	SSL      map[string]string `mapstructure:"ssl" yaml:"ssl"`
	Buffer   string            `mapstructure:"buffer" yaml:"buffer"`
	Status   string            `mapstructure:"status" yaml:"status"`
	Pidfile  string            `mapstructure:"pidfile" yaml:"pidfile"`
	Queue    Queue             `mapstructure:"queue" yaml:"queue"`
	LogLevel string            `mapstructure:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	Metrics  Metrics           `mapstructure:"metrics" yaml:"metrics"`
}

// Validate checks struct constraints and, when ssl is present, that every
// key belongs to the TLS options whitelist (§6).
func (c *Config) Validate() liberr.Error {
	err := ErrValidate.Error()

	if er := libval.New().Struct(c); er != nil {
		if e, ok := er.(*libval.InvalidValidationError); ok {
			err.Add(e)
		} else {
			for _, e := range er.(libval.ValidationErrors) {
				err.Add(fmt.Errorf("config field '%s' fails constraint '%s'", e.StructNamespace(), e.ActualTag()))
			}
		}
	}

	if len(c.SSL) > 0 {
		if tlsErr := upstream.ValidateTLSOptions(c.SSL); tlsErr != nil {
			err.Add(tlsErr)
		}
	}

	if err.HasParent() {
		return err
	}

	return nil
}

// Load reads and parses the YAML configuration at path via viper, then
// validates it. Enabling watch registers an fsnotify-backed hook that
// invokes onChange with the freshly reloaded configuration whenever the
// file is rewritten on disk, per the "config (re)load" lifecycle step.
func Load(path string, watch bool, onChange func(*Config)) (*Config, liberr.Error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, ErrRead.Error(err)
	}

	cfg, cErr := decode(v)
	if cErr != nil {
		return nil, cErr
	}

	if watch && onChange != nil {
		v.OnConfigChange(func(_ fsnotify.Event) {
			if reloaded, rErr := decode(v); rErr == nil {
				onChange(reloaded)
			}
		})
		v.WatchConfig()
	}

	return cfg, nil
}

func decode(v *viper.Viper) (*Config, liberr.Error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, ErrRead.Error(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
