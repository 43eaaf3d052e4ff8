// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package mainloop implements the engine's main loop (spec.md §4.9):
// config-driven construction of the source/destination graph, the
// worker threads each runs on, periodic housekeeping, the control
// socket, and reconfiguration. Grounded on the teacher's
// internal/server.Run accept-and-dispatch loop and internal/agent's
// Scheduler for the cron-driven housekeeping job.
package mainloop

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/nishisan-dev/logpipe/internal/ack"
	"github.com/nishisan-dev/logpipe/internal/config"
	"github.com/nishisan-dev/logpipe/internal/controlsocket"
	"github.com/nishisan-dev/logpipe/internal/controlsocket/webui"
	"github.com/nishisan-dev/logpipe/internal/destination"
	"github.com/nishisan-dev/logpipe/internal/errkind"
	"github.com/nishisan-dev/logpipe/internal/internalsource"
	"github.com/nishisan-dev/logpipe/internal/logging"
	"github.com/nishisan-dev/logpipe/internal/mainloop/selfstats"
	"github.com/nishisan-dev/logpipe/internal/node"
	"github.com/nishisan-dev/logpipe/internal/parser"
	"github.com/nishisan-dev/logpipe/internal/persist"
	"github.com/nishisan-dev/logpipe/internal/queue"
	"github.com/nishisan-dev/logpipe/internal/source"
	"github.com/nishisan-dev/logpipe/internal/transport/file"
	"github.com/nishisan-dev/logpipe/internal/transport/tcptls"
	"github.com/nishisan-dev/logpipe/internal/window"
	"github.com/nishisan-dev/logpipe/internal/worker"
)

// resources is everything buildAll constructs from one EngineConfig.
// Held as a unit so Reload can tear the old one down atomically before
// swapping in the new one.
type resources struct {
	graph *node.Graph

	destQueues  map[string]queue.Queue
	destWorkers map[string]*destination.Worker
	destClosers []io.Closer

	sourceClosers  []io.Closer
	sourceTrackers map[string]*ack.Tracker

	threads []*worker.Thread
}

// Engine owns one running logpipe daemon instance: its configuration,
// persisted window/ack state, control socket, housekeeping schedule,
// and the live resources wired up from the current configuration.
type Engine struct {
	cfgPath string
	logger  *slog.Logger
	logCloser io.Closer

	persist *persist.File
	sink    *internalsource.Sink
	ctl     *controlsocket.Server
	webui   *webui.Server
	cronSched *cron.Cron

	mu        sync.Mutex
	cfg       *config.EngineConfig
	res       *resources
	startedAt time.Time

	eventsTotal atomic.Uint64

	stopCh chan struct{}
}

// New loads cfgPath and constructs an Engine, opening its persist file
// and internal diagnostics sink but not yet starting any sources,
// destinations, or the control socket — call Run for that.
func New(cfgPath string) (*Engine, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logger, logCloser := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	logger = logger.With("engine", cfg.Engine.Name)

	pf, err := persist.Open(cfg.PersistFile, 256)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("mainloop: opening persist file: %w", err)
	}

	sink := internalsource.NewSink(256, logger)

	e := &Engine{
		cfgPath:   cfgPath,
		logger:    logger,
		logCloser: logCloser,
		persist:   pf,
		sink:      sink,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
	}
	return e, nil
}

// Run builds the pipeline from the current configuration and blocks
// until ctx is cancelled or a STOP command arrives on the control
// socket, then shuts everything down gracefully.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	res, err := e.buildAll(e.cfg)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.res = res
	e.startedAt = time.Now()
	e.mu.Unlock()

	e.startThreads(ctx, res)

	e.cronSched = cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(e.logger.Handler(), slog.LevelDebug))))
	if _, err := e.cronSched.AddFunc("@every 30s", e.housekeeping); err != nil {
		e.shutdown()
		return fmt.Errorf("mainloop: scheduling housekeeping: %w", err)
	}
	e.cronSched.Start()

	if e.cfg.ControlSocket != "" {
		e.ctl = controlsocket.NewServer(e.cfg.ControlSocket, e.handleControl, e.logger)
		go e.ctl.Run(ctx)
	}

	if e.cfg.WebUIAddr != "" {
		e.webui = webui.NewServer(e.cfg.WebUIAddr, func() string { return e.handleControl(ctx, "STATS") }, e.logger)
		go func() {
			if err := e.webui.Run(ctx); err != nil {
				e.logger.Warn("webui server exited", "error", err)
			}
		}()
	}

	go e.drainInternalEvents(ctx)

	select {
	case <-ctx.Done():
	case <-e.stopCh:
	}

	e.shutdown()
	return nil
}

// startThreads launches one worker.Thread per source and destination,
// each hosting its Runnable independently so a panic in one does not
// bring down the others (grounded on worker.Thread's panic recovery).
func (e *Engine) startThreads(ctx context.Context, res *resources) {
	for _, t := range res.threads {
		t.Start(ctx)
	}
}

func (e *Engine) drainInternalEvents(ctx context.Context) {
	src := internalsource.NewSource(e.sink)
	for {
		frame, err := src.ReadFrame(ctx)
		if err != nil {
			return
		}
		var p internalsource.Parser
		ev, _, err := p.Parse(0, frame)
		if err != nil {
			continue
		}
		levelVal, _ := ev.Get("kind")
		msgVal, _ := ev.Get("message")
		msg, _ := msgVal.AsString()
		kindStr, _ := levelVal.AsString()
		switch kindStr {
		case errkind.KindCorruption.String(), errkind.KindResourceExhausted.String():
			e.logger.Error("internal event", "kind", kindStr, "message", msg)
		default:
			e.logger.Warn("internal event", "kind", kindStr, "message", msg)
		}
	}
}

// housekeeping runs every 30s: checks disk pressure and posts an
// internal diagnostic event if the persist/queue filesystem is running
// low, the engine analogue of the teacher's StatsReporter tick.
func (e *Engine) housekeeping() {
	e.mu.Lock()
	cfg := e.cfg
	e.mu.Unlock()

	diskPath := "/"
	for _, d := range cfg.Destinations {
		if d.QueueDir != "" {
			diskPath = d.QueueDir
			break
		}
	}

	low, err := selfstats.LowDiskSpace(diskPath, 64<<20)
	if err != nil {
		e.logger.Debug("selfstats sample failed", "error", err)
		return
	}
	if low {
		e.sink.Post(internalsource.Record{
			Kind:      errkind.KindResourceExhausted,
			Component: "mainloop",
			Message:   fmt.Sprintf("disk free space below threshold at %s", diskPath),
		})
	}
}

// handleControl dispatches one control-socket command line.
func (e *Engine) handleControl(ctx context.Context, line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "ERR empty command"
	}
	switch strings.ToUpper(fields[0]) {
	case "STATS":
		e.mu.Lock()
		uptime := time.Since(e.startedAt)
		e.mu.Unlock()
		return fmt.Sprintf("OK events=%d uptime=%s", e.eventsTotal.Load(), uptime)
	case "RELOAD":
		if err := e.Reload(ctx); err != nil {
			return fmt.Sprintf("ERR %v", err)
		}
		return "OK reloaded"
	case "STOP":
		e.requestStop()
		return "OK stopping"
	default:
		return "ERR unknown command"
	}
}

func (e *Engine) requestStop() {
	select {
	case <-e.stopCh:
	default:
		close(e.stopCh)
	}
}

// Reload rebuilds the pipeline from cfgPath: the new components are
// built first, then the old sources and destinations are stopped, their
// bookmarks persisted and their queues and readers closed without
// draining, and the new graph's threads started. Windows and queues are
// not carried over: buildAll creates every one of them afresh.
func (e *Engine) Reload(ctx context.Context) error {
	newCfg, err := config.Load(e.cfgPath)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	oldRes := e.res
	newRes, err := e.buildAll(newCfg)
	if err != nil {
		return fmt.Errorf("mainloop: reload: %w", err)
	}

	if oldRes != nil {
		stopThreads(oldRes.threads)
		e.persistBookmarks(oldRes)
		closeAll(oldRes.destClosers)
		closeAll(oldRes.sourceClosers)
		oldRes.graph.DeinitAll(ctx)
	}

	e.cfg = newCfg
	e.res = newRes
	e.startThreads(ctx, newRes)
	e.logger.Info("reconfiguration complete", "sources", len(newCfg.Sources), "destinations", len(newCfg.Destinations))
	return nil
}

func stopThreads(threads []*worker.Thread) {
	var wg sync.WaitGroup
	for _, t := range threads {
		wg.Add(1)
		go func(t *worker.Thread) {
			defer wg.Done()
			t.RequestExit()
		}(t)
	}
	wg.Wait()
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		c.Close()
	}
}

// shutdown stops housekeeping, the control socket, every worker
// thread, syncs persisted window/ack bookmarks, and releases the
// persist file and log handle — the engine's graceful-exit path.
func (e *Engine) shutdown() {
	if e.cronSched != nil {
		stopCtx := e.cronSched.Stop()
		<-stopCtx.Done()
	}

	e.mu.Lock()
	res := e.res
	e.mu.Unlock()

	if res != nil {
		stopThreads(res.threads)
		e.persistBookmarks(res)
		closeAll(res.destClosers)
		closeAll(res.sourceClosers)
		res.graph.DeinitAll(context.Background())
	}

	e.sink.Close()
	if err := e.persist.Sync(); err != nil {
		e.logger.Warn("persist sync failed", "error", err)
	}
	e.persist.Close()
	e.logCloser.Close()
}

// persistBookmarks records each source's last contiguously-acknowledged
// sequence number into the mmap'd persist file, keyed by source name,
// so a future reconfiguration or restart can report how far each
// source had progressed even though resumption itself is driven by
// the disk queue's own segment replay, not this bookmark.
func (e *Engine) persistBookmarks(res *resources) {
	for name, tr := range res.sourceTrackers {
		bookmark, ok := tr.Bookmark()
		if !ok {
			continue
		}
		if err := e.persist.Set(name, bookmark); err != nil {
			e.logger.Warn("persisting bookmark failed", "source", name, "error", err)
		}
	}
}

// buildAll constructs a fresh resources set from cfg: destination
// queues/transports/workers, the node graph wiring sources into
// destinations, and the source pumps/acceptors — all independent of
// whatever resources set is currently live, so Reload can build the
// replacement before tearing down the original.
func (e *Engine) buildAll(cfg *config.EngineConfig) (*resources, error) {
	res := &resources{
		destQueues:     make(map[string]queue.Queue),
		destWorkers:    make(map[string]*destination.Worker),
		sourceTrackers: make(map[string]*ack.Tracker),
	}

	nodes := make(map[string]node.Node)
	for _, nc := range cfg.Nodes {
		nodes[nc.Name] = buildConfiguredNode(nc)
	}

	for _, dc := range cfg.Destinations {
		q, err := e.buildDestQueue(dc)
		if err != nil {
			return nil, err
		}
		res.destQueues[dc.Name] = q

		transport, closer, err := buildTransport(dc)
		if err != nil {
			q.Close()
			return nil, err
		}
		res.destClosers = append(res.destClosers, closer)

		workerCfg, err := destinationWorkerConfig(dc)
		if err != nil {
			return nil, err
		}

		destLogger, logFileCloser, _, err := logging.NewSessionLogger(e.logger, dc.DebugLogDir, dc.Name, uuid.New().String())
		if err != nil {
			return nil, fmt.Errorf("mainloop: destination %s: debug log: %w", dc.Name, err)
		}
		res.destClosers = append(res.destClosers, logFileCloser)

		w := destination.NewWorker(dc.Name, q, transport, workerCfg, destLogger)
		res.destWorkers[dc.Name] = w
		res.threads = append(res.threads, worker.NewThread("dest:"+dc.Name, worker.Adapt(w.Run), e.logger))

		nodes[dc.Name] = newQueueSinkNode(q, &e.eventsTotal)
	}

	edges := make([]node.Edge, 0, len(cfg.Edges))
	for _, ec := range cfg.Edges {
		edges = append(edges, node.Edge{From: ec.From, To: ec.To})
	}

	graph, err := node.NewGraph(nodes, edges, cfg.Entry)
	if err != nil {
		return nil, err
	}
	if err := graph.InitAll(context.Background()); err != nil {
		return nil, err
	}
	res.graph = graph

	for _, sc := range cfg.Sources {
		if err := e.buildSource(sc, graph, res); err != nil {
			return nil, err
		}
	}

	return res, nil
}

func buildConfiguredNode(nc config.NodeConfig) node.Node {
	switch nc.Type {
	case "fanout":
		return fanOutNode{}
	default:
		return passthroughNode{}
	}
}

func (e *Engine) buildDestQueue(dc config.DestinationConfig) (queue.Queue, error) {
	if dc.QueueMemOnly || dc.QueueDir == "" {
		maxBytes := int64(0)
		if dc.QueueMaxBytes != "" {
			b, err := config.ParseByteSize(dc.QueueMaxBytes)
			if err != nil {
				return nil, err
			}
			maxBytes = b
		}
		return queue.NewMemQueue(dc.QueueMaxEvents, maxBytes), nil
	}

	segMax := int64(64 << 20)
	if dc.SegmentMaxBytes != "" {
		b, err := config.ParseByteSize(dc.SegmentMaxBytes)
		if err != nil {
			return nil, err
		}
		segMax = b
	}
	return queue.OpenDiskQueue(dc.QueueDir, dc.Name, segMax)
}

func destinationWorkerConfig(dc config.DestinationConfig) (destination.Config, error) {
	var cfg destination.Config
	cfg.MaxBatchEvents = dc.Batch.MaxEvents
	cfg.MaxRetries = dc.Retry.MaxAttempts

	if dc.Batch.MaxBytes != "" {
		b, err := config.ParseByteSize(dc.Batch.MaxBytes)
		if err != nil {
			return cfg, err
		}
		cfg.MaxBatchBytes = b
	}
	if dc.Batch.MaxLinger != "" {
		d, err := config.ParseDuration(dc.Batch.MaxLinger)
		if err != nil {
			return cfg, err
		}
		cfg.MaxLinger = d
	}
	if dc.Retry.BaseBackoff != "" {
		d, err := config.ParseDuration(dc.Retry.BaseBackoff)
		if err != nil {
			return cfg, err
		}
		cfg.BaseBackoff = d
	}
	if dc.Retry.MaxBackoff != "" {
		d, err := config.ParseDuration(dc.Retry.MaxBackoff)
		if err != nil {
			return cfg, err
		}
		cfg.MaxBackoff = d
	}
	return cfg, nil
}

func parserFor(name string) source.Parser {
	switch name {
	case "rfc5424":
		return parser.RFC5424{}
	case "json":
		return parser.JSON{}
	default:
		return parser.RFC3164{}
	}
}

// buildSource wires one configured source's window, ack tracker, and
// transport-specific reader into a Runnable and registers it on res.
func (e *Engine) buildSource(sc config.SourceConfig, graph *node.Graph, res *resources) error {
	w := window.New(sc.WindowSize)
	mode, err := ack.ParseMode(sc.AckMode)
	if err != nil {
		return fmt.Errorf("mainloop: source %s: %w", sc.Name, err)
	}
	tr := ack.New(mode, w)
	p := parserFor(sc.Parser)
	res.sourceTrackers[sc.Name] = tr

	switch sc.Type {
	case "file":
		reader, err := file.OpenTail(sc.Path)
		if err != nil {
			return err
		}
		res.sourceClosers = append(res.sourceClosers, reader)
		pump := source.NewPump(sc.Name, reader, p, w, tr, graph, e.logger)
		res.threads = append(res.threads, worker.NewThread("src:"+sc.Name, pump, e.logger))
		return nil

	case "tcptls":
		tlsCfg, err := tcptls.NewServerConfig(sc.CACert, sc.Cert, sc.Key)
		if err != nil {
			return fmt.Errorf("mainloop: source %s: tls config: %w", sc.Name, err)
		}
		acceptor, err := newTCPTLSAcceptor(sc.Name, sc.Listen, tlsCfg, p, w, tr, graph, e.logger)
		if err != nil {
			return fmt.Errorf("mainloop: source %s: listen: %w", sc.Name, err)
		}
		res.sourceClosers = append(res.sourceClosers, acceptor)
		res.threads = append(res.threads, worker.NewThread("src:"+sc.Name, acceptor, e.logger))
		return nil

	default:
		return fmt.Errorf("mainloop: source %s: unknown type %q", sc.Name, sc.Type)
	}
}
