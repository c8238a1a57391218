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

package broker

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	liberr "github.com/nabbar/gelf-broker/errors"
	"github.com/nabbar/gelf-broker/gelf/config"
	"github.com/nabbar/gelf-broker/gelf/envelope"
	"github.com/nabbar/gelf-broker/gelf/listener"
	"github.com/nabbar/gelf-broker/gelf/record"
	"github.com/nabbar/gelf-broker/gelf/spool"
	"github.com/nabbar/gelf-broker/gelf/status"
	"github.com/nabbar/gelf-broker/gelf/upstream"
)

// Run registers signal handlers and timers, starts the intake reader, and
// blocks until a shutdown signal is received or Stop is called. It is the
// single loop goroutine: every mutation of queue/listener/upstream state
// happens here, never in the reader goroutine or a signal handler.
func (b *Broker) Run() {
	signal.Notify(b.sigCh,
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
		syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGPIPE,
	)
	defer signal.Stop(b.sigCh)

	go b.readIntake(b.lst.Conn())

	mainT := time.NewTicker(b.opts.MainPeriod)
	drainT := time.NewTicker(b.opts.DrainPeriod)
	listenT := time.NewTicker(b.opts.ListenPeriod)
	reconnT := time.NewTicker(b.opts.ReconnPeriod)
	defer mainT.Stop()
	defer drainT.Stop()
	defer listenT.Stop()
	defer reconnT.Stop()

	defer close(b.doneCh)

	for {
		select {
		case <-b.stopCh:
			b.shutdown()
			return

		case sig := <-b.sigCh:
			if b.handleSignal(sig) {
				b.shutdown()
				return
			}

		case rec := <-b.intakeCh:
			b.enqueue(rec)

		case <-drainT.C:
			b.drainOnce()

		case <-listenT.C:
			b.checkListenerOnce()

		case <-reconnT.C:
			b.reconnectOnce()

		case <-mainT.C:
			b.tickMain()
		}
	}
}

// Stop requests a graceful shutdown from outside the loop goroutine; it is
// safe to call exactly once.
func (b *Broker) Stop() {
	close(b.stopCh)
	<-b.doneCh
}

// handleSignal applies the signal matrix from §4.7 and reports whether the
// loop should now shut down.
func (b *Broker) handleSignal(sig os.Signal) bool {
	switch sig {
	case syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
		return true
	case syscall.SIGHUP:
		b.restartUpstream()
	case syscall.SIGUSR1:
		b.reloadConfig()
	case syscall.SIGUSR2:
		b.writeStatus()
	case syscall.SIGPIPE:
		// ignored, per §4.7
	}
	return false
}

// enqueue pushes a decoded intake record onto the tail of the queue,
// enforcing the soft queue.max_length cap.
func (b *Broker) enqueue(rec []byte) {
	b.met.Read.Add(len(rec))
	b.queue.PushTail(rec)
}

// readIntake blocks reading datagrams off conn and posts decoded records
// onto intakeCh; it never touches broker state directly. Each rebind hands
// the reader a fresh conn via a fresh goroutine rather than having it poll
// b.lst, so the listener field stays owned solely by the loop goroutine.
func (b *Broker) readIntake(conn *net.UnixConn) {
	buf := make([]byte, 65536)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return // conn closed, superseded by a rebind or shutting down
		}

		datagram := make([]byte, n)
		copy(datagram, buf[:n])

		rec, decErr := envelope.DecodeIntake(datagram)
		if decErr != nil {
			b.warnf("listener", "dropped malformed datagram: %s", decErr.Error())
			continue
		}
		if rec == nil {
			continue // liveness probe, accepted without enqueue
		}

		select {
		case b.intakeCh <- rec:
		case <-b.stopCh:
			return
		}
	}
}

// drainOnce pops records from the head of the queue and sends them while
// the upstream is CONNECTED, stopping at the first send failure and
// re-inserting the failed record at the head, per §4.6.
func (b *Broker) drainOnce() {
	for {
		if !b.opts.Fake && b.conn.State() != upstream.Connected {
			return
		}

		rec, ok := b.queue.PopHead()
		if !ok {
			return
		}

		if b.opts.Fake {
			b.fakeOutput(rec)
			b.met.Sent.Add(len(rec))
			continue
		}

		if err := b.conn.Send(rec); err != nil {
			b.queue.PushHead(rec)
			b.warnf("upstream", "send failed, requeued: %s", err.Error())
			return
		}

		b.met.Sent.Add(len(rec))
	}
}

// checkListenerOnce verifies the bound socket still matches its captured
// signature and rebinds if a third party unlinked or replaced it.
func (b *Broker) checkListenerOnce() {
	if b.lst.Check() {
		return
	}

	_ = b.lst.Close()

	perms := os.FileMode(0)
	if b.cfg.Perms != "" {
		if p, pErr := strconv.ParseUint(b.cfg.Perms, 8, 32); pErr == nil {
			perms = os.FileMode(p)
		}
	}

	rebound, err := listener.Bind(b.cfg.Socket, perms)
	if err != nil {
		b.warnf("listener", "rebind failed: %s", err.Error())
		return
	}

	b.lst = rebound
	go b.readIntake(rebound.Conn())
	b.logf("listener", "rebound after signature drift")
}

// reconnectOnce dials the upstream when disconnected and sends a
// keep-alive frame when already connected.
func (b *Broker) reconnectOnce() {
	switch b.conn.State() {
	case upstream.Unknown, upstream.Error:
		if err := b.conn.Reconnect(); err != nil {
			b.warnf("upstream", "reconnect failed: %s", err.Error())
		} else {
			b.logf("upstream", "connected to %s", b.endpoint.HostPort)
		}
	case upstream.Connected:
		if err := b.conn.KeepAlive(); err != nil {
			b.warnf("upstream", "keep-alive failed: %s", err.Error())
		}
	}
}

// restartUpstream implements the HUP handler: flush the current
// connection and force a fresh reconnect on the next tick.
func (b *Broker) restartUpstream() {
	if b.conn.State() == upstream.Connected {
		b.conn.RequestShutdown()
		b.conn.FinishShutdown()
	}
	b.conn.Reset()
	b.logf("upstream", "restarted by HUP")
}

// reloadConfig implements the USR1 handler: it re-reads the configuration
// from the path the daemon was started with and, only if the reload
// succeeds end to end, swaps b.cfg and rebuilds the pieces derived from it
// (TLS config, upstream endpoint, connector). The queue and listener are
// left untouched. A failed reload logs and keeps the previous
// configuration in effect, matching the documented config-error fallback.
func (b *Broker) reloadConfig() {
	if b.opts.ConfigPath == "" {
		b.warnf("lifecycle", "configuration reload requested but no --config source was given, keeping previous configuration")
		return
	}

	cfg, cErr := config.Load(b.opts.ConfigPath, false, nil)
	if cErr != nil {
		b.warnf("lifecycle", "configuration reload failed, keeping previous configuration: %s", cErr.Error())
		return
	}

	ep, epErr := upstream.ParseEndpoint(cfg.Graylog)
	if epErr != nil {
		b.warnf("lifecycle", "configuration reload failed, keeping previous configuration: %s", epErr.Error())
		return
	}

	tlsCfg, tErr := buildTLS(cfg)
	if tErr != nil {
		b.warnf("lifecycle", "configuration reload failed, keeping previous configuration: %s", tErr.Error())
		return
	}

	if b.conn.State() == upstream.Connected {
		b.conn.RequestShutdown()
		b.conn.FinishShutdown()
	}

	b.cfg = cfg
	b.endpoint = ep
	b.conn = upstream.New(ep, tlsCfg)

	b.logf("lifecycle", "configuration reloaded from %s", b.opts.ConfigPath)
}

// writeStatus implements the USR2 handler.
func (b *Broker) writeStatus() {
	if b.cfg.Status == "" {
		return
	}
	if err := status.Write(b.cfg.Status, b.snapshot()); err != nil {
		b.warnf("status", "write failed: %s", err.Error())
	}
}

// tickMain performs the full T_main action set: spool snapshot, drain,
// listener check, reconnect/keep-alive, and a throughput report.
func (b *Broker) tickMain() {
	b.persistSpool()
	b.drainOnce()
	b.checkListenerOnce()
	b.reconnectOnce()
	b.report()
}

func (b *Broker) persistSpool() {
	if b.cfg.Buffer == "" {
		return
	}
	current := b.queue.Drain()
	if err := spool.Save(b.cfg.Buffer, current); err != nil {
		b.warnf("spool", "save failed: %s", err.Error())
	}
	b.queue.Restore(current)
}

func (b *Broker) report() {
	b.met.Report(b.queue.Len(), b.queue.Dropped(), int(b.conn.State()))
	if b.cfg.Status != "" {
		_ = status.Write(b.cfg.Status, b.snapshot())
	}
	if b.log != nil {
		b.logf("metrics", "queue=%d dropped=%d upstream=%s",
			b.queue.Len(), b.queue.Dropped(), b.conn.State())
	}
}

// shutdown implements the sequence from §4.7: mark shutting down, emit a
// self-log record, persist the queue, close and unlink the listener,
// drain pending writes, close upstream, and release the pidfile. The
// individual teardown steps are independent and best-effort; this is a
// synchronous sequence run once by the loop goroutine, so their errors are
// simply collected into a slice and combined with liberr.IfError, rather
// than a concurrent-safe collector this single call site doesn't need.
func (b *Broker) shutdown() {
	b.shuttingDown.Store(true)

	selfLog, _ := record.SelfLog("info", "broker shutting down").JSON()
	if selfLog != nil {
		b.queue.PushHead(selfLog)
	}

	b.persistSpool()

	var errs []error
	errs = append(errs, b.lst.Close())
	errs = append(errs, b.lst.Unlink())

	b.drainOnce()

	if b.conn.State() == upstream.Connected {
		b.conn.RequestShutdown()
		b.conn.FinishShutdown()
	}

	errs = append(errs, b.pf.Release())

	if err := liberr.UnknownError.IfError(errs...); err != nil {
		b.warnf("lifecycle", "shutdown teardown had error(s): %s", err.Error())
	}
}

// fakeOutput writes a record to the configured fake-mode writer instead of
// forwarding it upstream, used when --fake is set.
func (b *Broker) fakeOutput(rec []byte) {
	if !b.opts.Fake {
		return
	}
	_, _ = fmt.Fprintf(b.opts.FakeOut, "%s\n", rec)
}
