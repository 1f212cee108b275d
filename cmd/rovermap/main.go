package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/rovermap/internal/api"
	"github.com/banshee-data/rovermap/internal/command"
	"github.com/banshee-data/rovermap/internal/config"
	"github.com/banshee-data/rovermap/internal/db"
	"github.com/banshee-data/rovermap/internal/monitoring"
	"github.com/banshee-data/rovermap/internal/publish"
	"github.com/banshee-data/rovermap/internal/render"
	"github.com/banshee-data/rovermap/internal/serialmux"
	"github.com/banshee-data/rovermap/internal/timeutil"
	"github.com/banshee-data/rovermap/internal/tracker"
	"github.com/banshee-data/rovermap/internal/version"
)

var (
	configPath    = flag.String("config", "", "Path to a .json or .yaml config file")
	port          = flag.String("port", config.DefaultPort, "Serial port the rover is attached to")
	baud          = flag.Int("baud", serialmux.DefaultBaudRate, "Serial baud rate")
	listen        = flag.String("listen", config.DefaultListen, "HTTP listen address")
	devFixture    = flag.String("dev", "", "Replay telemetry from this fixture file instead of a serial port")
	devInterval   = flag.Duration("dev-interval", config.DefaultReplayInterval, "Delay between replayed fixture lines")
	devLoop       = flag.Bool("dev-loop", false, "Restart the fixture when it ends")
	disableSerial = flag.Bool("disable-serial", false, "Run without a rover attached")
	dbPath        = flag.String("db", config.DefaultDBPath, "SQLite session and command log")
	speedCM       = flag.Float64("speed-cm", 0, "Nominal drive speed in cm/s (default 18.3 in/s)")
	historyCap    = flag.Int("history", config.DefaultHistoryCap, "Records kept per observation sequence")
	reconnect     = flag.Duration("reconnect", 0, "Reopen the serial port after this delay when it fails (0 disables)")
	mqttBroker    = flag.String("mqtt-broker", "", "MQTT broker URL for status publishing, e.g. tcp://localhost:1883")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get())
		return
	}

	cfg, err := loadConfig(*configPath, setFlags())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if flag.Arg(0) == "migrate" {
		if err := db.RunMigrateCommand(flag.Args()[1:], cfg.GetDBPath(), os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := runOptions{
		fixture:       *devFixture,
		replayEvery:   *devInterval,
		replayLoop:    *devLoop,
		disableSerial: *disableSerial,
	}
	if err := run(ctx, cfg, opts, os.Stdin, os.Stdout); err != nil {
		log.Fatalf("rovermap: %v", err)
	}
}

// setFlags reports which flags were given explicitly on the command line.
func setFlags() map[string]bool {
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// loadConfig reads the optional config file and lets explicitly set flags
// override it.
func loadConfig(path string, set map[string]bool) (*config.Config, error) {
	cfg := config.Empty()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	if set["port"] {
		cfg.Port = port
	}
	if set["baud"] {
		cfg.BaudRate = baud
	}
	if set["listen"] {
		cfg.Listen = listen
	}
	if set["db"] {
		cfg.DBPath = dbPath
	}
	if set["speed-cm"] {
		cfg.SpeedCMPerS = speedCM
	}
	if set["history"] {
		cfg.HistoryCap = historyCap
	}
	if set["reconnect"] {
		d := reconnect.String()
		cfg.ReconnectDelay = &d
	}
	if set["mqtt-broker"] {
		cfg.MQTTBroker = mqttBroker
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type runOptions struct {
	fixture       string
	replayEvery   time.Duration
	replayLoop    bool
	disableSerial bool
	// ready, when set, receives the bound HTTP address.
	ready func(addr string)
}

// openTransport returns the initial port, an Opener for reconnects (nil
// when reopening makes no sense) and a label for the session log.
func openTransport(cfg *config.Config, opts runOptions) (serialmux.SerialPorter, serialmux.Opener, string, error) {
	switch {
	case opts.disableSerial:
		return serialmux.NewDisabledPort(), nil, "disabled", nil
	case opts.fixture != "":
		p, err := serialmux.OpenReplayFile(opts.fixture, opts.replayEvery, opts.replayLoop)
		if err != nil {
			return nil, nil, "", fmt.Errorf("failed to open fixture: %w", err)
		}
		return p, nil, "replay:" + opts.fixture, nil
	default:
		opener := serialmux.PortOpener(cfg.GetPort(), cfg.PortOptions())
		p, err := opener()
		if err != nil {
			return nil, nil, "", err
		}
		return p, opener, cfg.GetPort(), nil
	}
}

func run(ctx context.Context, cfg *config.Config, opts runOptions, stdin io.Reader, stdout io.Writer) error {
	port, opener, label, err := openTransport(cfg, opts)
	if err != nil {
		return err
	}
	mux := serialmux.NewMux(port)
	defer func() {
		mux.Close()
		fmt.Fprintln(stdout, "Serial port closed.")
	}()
	monitoring.Logf("reading telemetry from %s", label)

	clock := timeutil.RealClock{}
	tr := tracker.New(tracker.Options{
		Speed:      cfg.GetSpeedCMPerS(),
		TickPeriod: cfg.GetTickPeriod(),
		HistoryCap: cfg.GetHistoryCap(),
	}, clock)
	trOpts := tr.Options()
	monitoring.Logf("dead reckoning at %.2f cm/s, tick %v, history %d", trOpts.Speed, trOpts.TickPeriod, trOpts.HistoryCap)

	database, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	session, err := database.StartSession(label, cfg.GetSpeedCMPerS(), clock.Now())
	if err != nil {
		return err
	}
	defer func() {
		if err := database.EndSession(session.ID, clock.Now()); err != nil {
			monitoring.Logf("failed to close session: %v", err)
		}
	}()
	monitoring.Logf("session %s recorded in %s", session.ID, database.Path())

	cmds := command.NewChannel(mux, database.Recorder(session.ID))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	// The line source: a failure is shown on the status and logged, but the
	// map stays up.
	source := serialmux.NewSource(mux, tr.Inbox(), serialmux.SourceOptions{
		Opener:         opener,
		ReconnectDelay: cfg.GetReconnectDelay(),
		Clock:          clock,
	})
	g.Go(func() error {
		if err := source.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Logf("serial source stopped: %v", err)
		}
		return nil
	})

	g.Go(func() error {
		return ignoreCanceled(tr.Run(gctx))
	})

	if broker := cfg.GetMQTTBroker(); broker != "" {
		sink, err := publish.Connect(broker, cfg.GetMQTTClientID())
		if err != nil {
			cancel()
			g.Wait()
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		defer sink.Close()
		pub := publish.NewStatusPublisher(sink, cfg.GetMQTTTopic(), cfg.GetMQTTInterval(), clock)
		tr.Observe(pub.Observe)
		g.Go(func() error { return ignoreCanceled(pub.Run(gctx)) })
	}

	addr := cfg.GetListen()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		cancel()
		g.Wait()
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if opts.ready != nil {
		opts.ready(ln.Addr().String())
	}

	ox, oy := cfg.GetOrigin()
	w, h := cfg.GetCanvasSize()
	view := render.View{Scale: cfg.GetScale(), OriginX: ox, OriginY: oy, Width: w, Height: h}

	httpMux := api.NewServer(tr, cmds, database, view).ServeMux()
	mux.AttachAdminRoutes(httpMux)
	if err := database.AttachAdminRoutes(httpMux); err != nil {
		monitoring.Logf("database admin routes unavailable: %v", err)
	}

	server := &http.Server{Handler: api.LoggingMiddleware(httpMux)}
	g.Go(func() error {
		monitoring.Logf("serving map on http://%s/map", ln.Addr())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("HTTP server shutdown error: %v", err)
			server.Close()
		}
		return nil
	})

	// Console input is not part of the group: a blocked read on stdin must
	// not hold up shutdown.
	go func() {
		err := readConsole(stdin, stdout, cmds)
		switch {
		case errors.Is(err, errQuit):
			cancel()
		case err != nil:
			monitoring.Logf("console input: %v", err)
		}
	}()

	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
