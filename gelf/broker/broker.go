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

// Package broker wires the intake listener, in-memory queue, upstream
// connector, spool and status files, and the signal-driven lifecycle into
// a single cooperative event loop.
package broker

import (
	"os"
	"strconv"
	"time"

	"github.com/nabbar/gelf-broker/atomic"
	liberr "github.com/nabbar/gelf-broker/errors"
	"github.com/nabbar/gelf-broker/gelf/config"
	gelflog "github.com/nabbar/gelf-broker/gelf/log"
	"github.com/nabbar/gelf-broker/gelf/listener"
	"github.com/nabbar/gelf-broker/gelf/metrics"
	"github.com/nabbar/gelf-broker/gelf/pidfile"
	"github.com/nabbar/gelf-broker/gelf/queue"
	"github.com/nabbar/gelf-broker/gelf/spool"
	"github.com/nabbar/gelf-broker/gelf/status"
	"github.com/nabbar/gelf-broker/gelf/upstream"
)

// Options override config-derived defaults, mainly for tests that want a
// faster T_main than the spec's 10-second production default.
type Options struct {
	MainPeriod   time.Duration
	DrainPeriod  time.Duration
	ListenPeriod time.Duration
	ReconnPeriod time.Duration
	Fake         bool // print received records to stdout instead of forwarding, see --fake
	FakeOut      *os.File
	Logger       *gelflog.Logger
	ConfigPath   string // source file for a SIGUSR1 reload, empty disables reload
}

func (o Options) withDefaults() Options {
	if o.MainPeriod == 0 {
		o.MainPeriod = 10 * time.Second
	}
	if o.DrainPeriod == 0 {
		o.DrainPeriod = 200 * time.Millisecond
	}
	if o.ListenPeriod == 0 {
		o.ListenPeriod = 2 * time.Second
	}
	if o.ReconnPeriod == 0 {
		o.ReconnPeriod = 5 * time.Second
	}
	if o.FakeOut == nil {
		o.FakeOut = os.Stdout
	}
	return o
}

// Broker owns every piece of mutable state exclusively from its one loop
// goroutine; signal handlers and the intake reader only ever post events
// onto channels the loop selects on.
type Broker struct {
	cfg  *config.Config
	opts Options

	queue    *queue.Queue
	lst      *listener.Listener
	conn     *upstream.Connector
	pf       *pidfile.PIDFile
	met      *metrics.Registry
	log      *gelflog.Logger
	endpoint upstream.Endpoint

	startedAt    time.Time
	shuttingDown atomic.Value[bool]

	intakeCh chan []byte
	sigCh    chan os.Signal
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds a Broker from a loaded configuration: binds the intake
// listener, constructs the upstream connector, acquires the pidfile, and
// restores the spool into the queue, per the startup order in §4.7.
func New(cfg *config.Config, opts Options) (*Broker, liberr.Error) {
	opts = opts.withDefaults()

	ep, epErr := upstream.ParseEndpoint(cfg.Graylog)
	if epErr != nil {
		return nil, ErrConfig.Error(epErr)
	}

	tlsCfg, tErr := buildTLS(cfg)
	if tErr != nil {
		return nil, ErrConfig.Error(tErr)
	}

	perms := os.FileMode(0)
	if cfg.Perms != "" {
		if p, pErr := strconv.ParseUint(cfg.Perms, 8, 32); pErr == nil {
			perms = os.FileMode(p)
		}
	}

	lst, lErr := listener.Bind(cfg.Socket, perms)
	if lErr != nil {
		return nil, ErrListenerBind.Error(lErr)
	}

	var pf *pidfile.PIDFile
	if cfg.Pidfile != "" {
		p, pErr := pidfile.Acquire(cfg.Pidfile)
		if pErr != nil {
			_ = lst.Close()
			return nil, ErrPidfile.Error(pErr)
		}
		pf = p
	}

	q := queue.New(cfg.Queue.MaxLength)
	persist := cfg.Buffer != ""
	if cfg.Buffer != "" {
		restored, warn, sErr := spool.Load(cfg.Buffer)
		if sErr != nil {
			persist = false
			opts.Logger.Warnf("spool", "cannot restore spool %s: %v", cfg.Buffer, sErr)
		} else {
			if warn {
				opts.Logger.Warnf("spool", "spool %s is truncated; restored %d records", cfg.Buffer, len(restored))
			}
			q.Restore(restored)
		}
	}

	b := &Broker{
		cfg:       cfg,
		opts:      opts,
		queue:     q,
		lst:       lst,
		conn:      upstream.New(ep, tlsCfg),
		pf:        pf,
		met:       metrics.New(),
		log:       opts.Logger,
		endpoint:  ep,
		startedAt: time.Now(),
		intakeCh:  make(chan []byte, 256),
		sigCh:     make(chan os.Signal, 8),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	b.shuttingDown = atomic.NewValueDefault[bool](false, false)

	// Immediately re-persist the queue so spool and memory agree before the
	// loop starts draining, per §4.7 step 5. A spool that could not be read is
	// left untouched.
	if persist {
		current := q.Drain()
		_ = spool.Save(cfg.Buffer, current)
		q.Restore(current)
	}

	if cfg.Status != "" {
		_ = status.Write(cfg.Status, b.snapshot())
	}

	return b, nil
}

func (b *Broker) logf(category, format string, args ...interface{}) {
	if b.log == nil {
		return
	}
	b.log.Infof(category, format, args...)
}

func (b *Broker) warnf(category, format string, args ...interface{}) {
	if b.log == nil {
		return
	}
	b.log.Warnf(category, format, args...)
}

// snapshot builds the YAML status payload for the current instant.
func (b *Broker) snapshot() status.Snapshot {
	sig := b.lst.Signature()
	var sigHex string
	if !sig.IsZero() {
		sigHex = status.SignatureHex(sig[:])
	}

	return status.Snapshot{
		PID:         os.Getpid(),
		QueueLength: b.queue.Len(),
		StartedAt:   b.startedAt,
		UptimeSec:   time.Since(b.startedAt).Seconds(),
		Listener: status.Listener{
			SocketPath: b.lst.Path(),
			Signature:  sigHex,
		},
		SocketPath: b.cfg.Socket,
		Upstream: status.Upstream{
			State:    int(b.conn.State()),
			HostPort: b.endpoint.HostPort,
		},
	}
}

// Metrics exposes the broker's Prometheus registry, for the optional
// metrics.listen HTTP endpoint.
func (b *Broker) Metrics() *metrics.Registry {
	return b.met
}

// QueueLength reports the current in-memory queue depth, used by tests and
// the status writer.
func (b *Broker) QueueLength() int {
	return b.queue.Len()
}

// UpstreamState reports the connector's current state.
func (b *Broker) UpstreamState() upstream.State {
	return b.conn.State()
}
