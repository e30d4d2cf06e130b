// cmd/nimctl/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"nimctl/internal/acquisition"
	"nimctl/internal/config"
	"nimctl/internal/errcode"
	"nimctl/internal/gateway"
	"nimctl/internal/nimlog"
	"nimctl/internal/publish"
	"nimctl/internal/status"
	"nimctl/internal/stv0910"
	"nimctl/internal/stv6120"
	"nimctl/internal/stvvglna"
	"nimctl/internal/supervisor"
	"nimctl/internal/tspipeline"
	"nimctl/internal/usbftdi"
)

// ---------- Startup ----------

func main() {
	os.Exit(run())
}

// run parses the command line, brings up the hardware and runtime
// threads, and blocks until shutdown, returning the process exit code
// spec.md §6 specifies (0 on a clean signal stop, otherwise the code
// matching the first fatal error kind observed).
func run() int {
	cli, err := config.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "nimctl:", err)
		return errcode.ExitCode(errcode.ArgsInput)
	}

	var file *config.FileDefaults
	if cli.ConfigFile != "" {
		file, err = config.LoadFile(cli.ConfigFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "nimctl:", err)
			return errcode.ExitCode(errcode.ArgsInput)
		}
	}

	cfg, err := config.Build(cli, file)
	if err != nil {
		fmt.Fprintln(os.Stderr, "nimctl:", err)
		return errcode.ExitCode(errcode.ArgsInput)
	}

	top := nimlog.For("nimctl")

	gw, closeHardware, err := bringUpHardware(cli, cfg)
	if err != nil {
		top.Error("hardware bring-up failed", "err", err)
		return errcode.ExitCode(errcode.Of(err))
	}
	defer closeHardware()

	threads, closeSinks := wireThreads(cfg, gw, top)
	defer closeSinks()

	sv := supervisor.New(threads)
	runErr := sv.Run(context.Background())

	code := errcode.Of(runErr)
	if code != "" && code != errcode.SignalTerminate {
		top.Error("shutting down on fatal error", "err", runErr)
	} else {
		top.Info("clean shutdown")
	}
	return errcode.ExitCode(code)
}

// ---------- Hardware bring-up ----------

// bringUpHardware opens endpoint 1 (and endpoint 2 when dual mode is
// requested), building the Bus Gateway spec.md §4.1 describes. The
// returned closer, which the caller runs after every thread has been
// joined, deactivates each endpoint opened here; it does not close the
// underlying I²C bus or bulk USB handles.
func bringUpHardware(cli *config.CLI, cfg *config.Configuration) (*gateway.Bus, func(), error) {
	if err := usbftdi.Init(); err != nil {
		return nil, nil, err
	}

	ep1, err := openEndpoint(cli.MainBusAddr)
	if err != nil {
		return nil, nil, err
	}
	ep1.Activate()

	gw := &gateway.Bus{Endpoint1: ep1}
	closers := []func(){func() { ep1.Deactivate() }}

	if cfg.DualEnabled {
		secondAddr := cli.SecondBusAddr
		ep2, err := openEndpoint(secondAddr)
		if err != nil {
			return nil, nil, err
		}
		ep2.Activate()
		gw.Endpoint2 = ep2
		closers = append(closers, func() { ep2.Deactivate() })
	}

	return gw, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

func openEndpoint(busAddr string) (*gateway.Endpoint, error) {
	i2cBus, err := usbftdi.OpenI2C(busAddr)
	if err != nil {
		return nil, err
	}
	bulk, err := usbftdi.OpenBulk(busAddr)
	if err != nil {
		return nil, err
	}
	return gateway.NewEndpoint(busAddr, i2cBus, bulk), nil
}

// ---------- Thread wiring ----------

// wireThreads builds the per-tuner acquisition/reader/parser/publisher
// threads plus the process-wide JSON stdout thread spec.md §5 names,
// returning the full fleet for the Supervisor and a closer for every
// sink connection opened along the way.
func wireThreads(cfg *config.Configuration, gw *gateway.Bus, top *log.Logger) ([]supervisor.Thread, func()) {
	demod := &stv0910.Driver{Bus: gw, DualEnabled: cfg.DualEnabled}
	tuner6120 := &stv6120.Driver{Bus: gw, DualEnabled: cfg.DualEnabled}
	lna := &stvvglna.Driver{Bus: gw, DualEnabled: cfg.DualEnabled}

	var barrier *acquisition.Barrier
	if cfg.DualEnabled {
		barrier = acquisition.NewBarrier()
	}

	var threads []supervisor.Thread
	var closers []func() error

	statusBuses := map[config.TunerID]*status.Bus{}

	tuners := []config.TunerID{config.Tuner1}
	if cfg.DualEnabled {
		tuners = append(tuners, config.Tuner2)
	}

	for _, tuner := range tuners {
		sb := status.New()
		statusBuses[tuner] = sb

		task := acquisition.NewTask(tuner, cfg, sb, demod, tuner6120, lna)
		task.DualEnabled = cfg.DualEnabled
		task.Barrier = barrier
		threads = append(threads, supervisor.Thread{
			Name: "acquisition." + tuner.String(),
			Run:  task.Run,
		})

		mb := tspipeline.NewMailbox()
		tsSink := &publish.TSSinkProvider{Tuner: tuner, Config: cfg}
		reader := tspipeline.NewReader(tuner, gw, cfg, sb, mb, tsSink)
		reader.DualEnabled = cfg.DualEnabled
		threads = append(threads, supervisor.Thread{
			Name: "ts_reader." + tuner.String(),
			Run:  reader.Run,
		})

		parser := tspipeline.NewParser(tuner, mb, sb)
		threads = append(threads, supervisor.Thread{
			Name: "ts_parser." + tuner.String(),
			Run:  parser.Run,
		})

		statusSink, closeSink := openStatusSink(cfg, tuner, top)
		if statusSink != nil {
			threads = append(threads, supervisor.Thread{
				Name: "publisher." + tuner.String(),
				Run: func(ctx context.Context) error {
					return publish.Loop(ctx, tuner, sb, statusSink)
				},
			})
		}
		if closeSink != nil {
			closers = append(closers, closeSink)
		}
	}

	// JSON stdout runs unconditionally alongside whichever status sink
	// (or none) is configured, as spec.md §4.6 names it as one of four
	// independent adapters with no CLI flag gating its presence (see
	// DESIGN.md's Open Question resolution).
	jsonPub := publish.NewJSONStdoutPublisher(os.Stdout, publish.VerbosityCompact, false, time.Second)
	threads = append(threads, supervisor.Thread{
		Name: "json_stdout",
		Run: func(ctx context.Context) error {
			return supervisor.RunJSONEmitter(ctx, jsonPub, statusBuses)
		},
	})

	return threads, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				top.Warn("error closing status sink", "err", err)
			}
		}
	}
}

// openStatusSink resolves a tuner's configured status sink into a
// publish.StatusSinker (or nil for config.SinkNone), along with a closer
// for sinks that hold an open connection.
func openStatusSink(cfg *config.Configuration, tuner config.TunerID, top *log.Logger) (publish.StatusSinker, func() error) {
	sink := cfg.Snapshot(tuner).StatusSink
	switch sink.Kind {
	case config.SinkUDP:
		conn, err := publish.DialUDPStatus(fmt.Sprintf("%s:%d", sink.IP, sink.Port))
		if err != nil {
			top.Warn("status UDP dial failed", "tuner", tuner.String(), "err", err)
			return nil, nil
		}
		return conn, conn.Close
	case config.SinkFifo:
		return publish.NewFIFOSink(sink.Path), nil
	case config.SinkMQTT:
		mp, err := publish.NewMQTTPublisher(sink.Broker, "nimctl-"+tuner.String(), cfg, tuner)
		if err != nil {
			top.Warn("status MQTT connect failed", "tuner", tuner.String(), "err", err)
			return nil, nil
		}
		return mp, mp.Close
	default:
		return nil, nil
	}
}
