package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/powchain/app/services/node/handlers"
	"github.com/ardanlabs/powchain/business/sys/metrics"
	"github.com/ardanlabs/powchain/foundation/blockchain/broadcast"
	"github.com/ardanlabs/powchain/foundation/blockchain/broadcast/memory"
	"github.com/ardanlabs/powchain/foundation/blockchain/broadcast/websocket"
	"github.com/ardanlabs/powchain/foundation/blockchain/database"
	"github.com/ardanlabs/powchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/powchain/foundation/blockchain/peer"
	"github.com/ardanlabs/powchain/foundation/blockchain/state"
	"github.com/ardanlabs/powchain/foundation/blockchain/storage/clickhouse"
	"github.com/ardanlabs/powchain/foundation/blockchain/storage/disk"
	storage "github.com/ardanlabs/powchain/foundation/blockchain/storage/memory"
	"github.com/ardanlabs/powchain/foundation/blockchain/worker"
	"github.com/ardanlabs/powchain/foundation/events"
	"github.com/ardanlabs/powchain/foundation/logger"
	"github.com/ardanlabs/powchain/foundation/web"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	// This is all the configuration for the application and the default values.
	// Configuration values will be passed through the application as individual
	// values.
	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			MineTimeout     time.Duration `conf:"default:5m"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
			PrivateHost     string        `conf:"default:0.0.0.0:9080"`
			Origins         []string      `conf:"default:*"`
		}
		State struct {
			NodeID        string `conf:"default:node0"`
			SyncNodeID    string `conf:"default:node0"`
			SyncSource    string `conf:"default:shared,help:shared or http"`
			CanonicalHost string `conf:"default:0.0.0.0:9080"`
			Storage       string `conf:"default:disk,help:memory disk or clickhouse"`
			DBPath        string `conf:"default:zblock/chain"`
			ClickHouseDSN string `conf:"default:clickhouse://default:@localhost:9000/default,mask"`
			GenesisPath   string `conf:"default:zblock/genesis.json"`
			BootstrapRate int    `conf:"default:0,help:blocks per second copied during bootstrap"`
			MaxDifficulty uint32 `conf:"default:0,help:overrides the genesis file when set"`
			BlockTime     uint64 `conf:"default:0,help:seconds overrides the genesis file when set"`
		}
		Broadcast struct {
			Kind string `conf:"default:websocket,help:memory or websocket"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "proof of work blockchain node",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Genesis Support

	gen, err := genesis.Load(cfg.State.GenesisPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("unable to load genesis: %w", err)
		}
		log.Infow("startup", "status", "genesis file missing, using default", "path", cfg.State.GenesisPath)
		gen = genesis.Default()
	}

	if cfg.State.MaxDifficulty != 0 {
		if cfg.State.MaxDifficulty > database.MaxDifficulty {
			return fmt.Errorf("max difficulty %d: %w", cfg.State.MaxDifficulty, database.ErrInvalidDifficulty)
		}
		gen.MaxDifficulty = cfg.State.MaxDifficulty
	}
	if cfg.State.BlockTime != 0 {
		gen.BlockTime = cfg.State.BlockTime
	}

	log.Infow("startup", "status", "genesis", "difficulty", gen.Difficulty, "maxdifficulty", gen.MaxDifficulty, "blocktime", gen.BlockTime)

	// =========================================================================
	// Storage Support

	log.Infow("startup", "status", "initializing storage", "kind", cfg.State.Storage)

	var store database.Storage
	switch cfg.State.Storage {
	case "memory":
		store = storage.New()

	case "disk":
		store, err = disk.New(cfg.State.DBPath)
		if err != nil {
			return fmt.Errorf("opening disk storage: %w", err)
		}

	case "clickhouse":
		store, err = clickhouse.New(cfg.State.ClickHouseDSN, metrics.Storage{})
		if err != nil {
			return fmt.Errorf("opening clickhouse storage: %w", err)
		}

	default:
		return fmt.Errorf("unknown storage kind %q", cfg.State.Storage)
	}

	// =========================================================================
	// Blockchain Support

	nodeID := database.NodeID(cfg.State.NodeID)
	syncNodeID := database.NodeID(cfg.State.SyncNodeID)
	isCanonical := nodeID == syncNodeID

	// The blockchain packages accept a function of this signature to allow the
	// application to log. Messages meant for the viewer are also sent to any
	// websocket client that is connected into the system through the events
	// package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		if strings.HasPrefix(s, "viewer:") {
			evts.Send(s)
		}
	}

	// Replicas pull the canonical chain from the shared store by default.
	// With http they ask the canonical node's private API instead.
	var source state.Source
	switch cfg.State.SyncSource {
	case "shared":
	case "http":
		if !isCanonical {
			source = peer.NewClient(peer.New(cfg.State.CanonicalHost))
		}
	default:
		return fmt.Errorf("unknown sync source %q", cfg.State.SyncSource)
	}

	// The canonical node publishes new blocks, every other node subscribes
	// to them.
	var hub *websocket.Hub
	var publisher broadcast.Publisher
	var subscriber broadcast.Subscriber
	switch cfg.Broadcast.Kind {
	case "memory":
		bus := memory.New()
		publisher = bus
		subscriber = bus

	case "websocket":
		if isCanonical {
			hub = websocket.NewHub(log.Desugar())
			publisher = hub
			break
		}
		url := fmt.Sprintf("ws://%s/v1/node/subscribe", cfg.State.CanonicalHost)
		subscriber = websocket.NewClient(log.Desugar(), url)

	default:
		return fmt.Errorf("unknown broadcast kind %q", cfg.Broadcast.Kind)
	}

	// The state value represents the blockchain node and manages the blockchain
	// database and provides an API for application support.
	st, err := state.New(context.Background(), state.Config{
		NodeID:        nodeID,
		SyncNodeID:    syncNodeID,
		Storage:       store,
		Source:        source,
		Publisher:     publisher,
		Genesis:       gen,
		BootstrapRate: cfg.State.BootstrapRate,
		Metrics:       metrics.Node{},
		EvHandler:     ev,
	})
	if err != nil {
		return err
	}
	defer st.Shutdown()

	// The worker package implements the mining, bootstrap, and broadcast
	// workflows. The worker will register itself with the state.
	w := worker.Run(st, subscriber, ev)

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	// The Debug function returns a mux to listen and serve on for all the debug
	// related endpoints. This includes the standard library endpoints.

	// Construct the mux for the debug calls.
	debugMux := handlers.DebugMux(build, log, st)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	// Construct the mux for the public API calls.
	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    st,
		Evts:     evts,
		Origins:  cfg.Web.Origins,
	})

	// Construct a server to service the requests against the mux. Mining
	// holds the request open until a block is found.
	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.MineTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Start Private Service

	log.Infow("startup", "status", "initializing V1 private API support")

	muxCfg := handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    st,
	}
	if hub != nil {
		muxCfg.Subscribe = web.Handler(hub.Serve)
	}

	// Construct the mux for the private API calls.
	privateMux := handlers.PrivateMux(muxCfg)

	// Construct a server to service the requests against the mux. The
	// subscribe stream is long lived so there is no write timeout here.
	private := http.Server{
		Addr:        cfg.Web.PrivateHost,
		Handler:     privateMux,
		ReadTimeout: cfg.Web.ReadTimeout,
		IdleTimeout: cfg.Web.IdleTimeout,
		ErrorLog:    zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "private api router started", "host", private.Addr)
		serverErrors <- private.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown. A replica that fails to
	// bootstrap takes the process down with it.
	synced := st.Synced()
	for {
		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case err := <-w.Fatal():
			return fmt.Errorf("replication: %w", err)

		case <-synced:
			log.Infow("startup", "status", "node synced", "nodeid", nodeID)
			synced = nil

		case sig := <-shutdown:
			log.Infow("shutdown", "status", "shutdown started", "signal", sig)
			defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

			// Release any web sockets that are currently active.
			log.Infow("shutdown", "status", "shutdown web socket channels")
			evts.Shutdown()
			if hub != nil {
				hub.Shutdown()
			}

			// Give outstanding requests a deadline for completion.
			ctx, cancelPri := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
			defer cancelPri()

			// Asking listener to shut down and shed load.
			log.Infow("shutdown", "status", "shutdown private API started")
			if err := private.Shutdown(ctx); err != nil {
				private.Close()
				return fmt.Errorf("could not stop private service gracefully: %w", err)
			}

			// Give outstanding requests a deadline for completion.
			ctx, cancelPub := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
			defer cancelPub()

			// Asking listener to shut down and shed load.
			log.Infow("shutdown", "status", "shutdown public API started")
			if err := public.Shutdown(ctx); err != nil {
				public.Close()
				return fmt.Errorf("could not stop public service gracefully: %w", err)
			}

			return nil
		}
	}
}
