package acquire

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/digitizerlab/ats-go/internal/acquisition"
	"github.com/digitizerlab/ats-go/internal/acquisition/drivers/atsapi"
	"github.com/digitizerlab/ats-go/internal/acquisition/drivers/simulator"
	"github.com/digitizerlab/ats-go/internal/acquisition/memory"
	"github.com/digitizerlab/ats-go/internal/acquisition/sinks"
	"github.com/digitizerlab/ats-go/internal/buildinfo"
	"github.com/digitizerlab/ats-go/internal/conf"
	"github.com/digitizerlab/ats-go/internal/errors"
	"github.com/digitizerlab/ats-go/internal/logger"
	"github.com/digitizerlab/ats-go/internal/observability"
)

// telemetryFlushTimeout bounds how long pending events are sent on exit
const telemetryFlushTimeout = 2 * time.Second

// Options are the streams and overrides of one Run
type Options struct {
	Build  *buildinfo.Context
	Data   io.Writer // raw samples from the ring sink
	Report io.Writer // YAML summary

	// LogWriter replaces the console log output
	LogWriter io.Writer
	// Driver replaces the driver named in the settings
	Driver acquisition.Driver
	// EngineOptions are applied after those derived from the settings
	EngineOptions []acquisition.Option
}

// Summary is printed after every acquisition, failed ones included
type Summary struct {
	Result    *acquisition.Result `yaml:"result"`
	WAVFrames int                 `yaml:"wav_frames,omitempty"`
	Ring      *sinks.RingStats    `yaml:"ring,omitempty"`
}

// Run configures the board from settings and runs one acquisition. The
// capture, the ring drain and the metrics endpoint run in one errgroup.
func Run(ctx context.Context, settings *conf.Settings, opts Options) (err error) {
	// stdout may carry sample data
	logWriter := opts.LogWriter
	if logWriter == nil {
		logWriter = os.Stderr
	}
	central, err := logger.NewCentralLogger(settings.LoggingConfig(), logger.WithConsoleWriter(logWriter))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := central.Close(); err == nil {
			err = closeErr
		}
	}()
	log := central.Module("atsdaq")

	if settings.Telemetry.Enabled {
		stop, err := setupTelemetry(settings.Telemetry, opts.Build)
		if err != nil {
			return err
		}
		defer stop()
	}

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	engineOpts := append(settings.EngineOptions(),
		acquisition.WithLogger(log),
		acquisition.WithMetrics(m.Acquisition))

	drv := opts.Driver
	if drv == nil {
		var driverOpts []acquisition.Option
		if drv, driverOpts, err = openDriver(settings, log); err != nil {
			return err
		}
		engineOpts = append(engineOpts, driverOpts...)
	}

	engine, err := acquisition.NewEngine(drv, append(engineOpts, opts.EngineOptions...)...)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := engine.Close(); closeErr != nil {
			log.Error("engine close failed", logger.Error(closeErr))
		}
	}()

	var wav *sinks.WAVSink
	if settings.Output.WAVPath != "" {
		channels := acquisition.ChannelSelection(settings.Acquisition.ChannelSelection).Count()
		wav, err = sinks.NewWAVFile(settings.Output.WAVPath, settings.WAVSampleRate(), channels, log)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := wav.Close(); err == nil {
				err = closeErr
			}
		}()
	}

	var ring *sinks.RingSink
	if settings.Output.RingSize > 0 {
		ring, err = sinks.NewRingSink(settings.Output.RingSize,
			sinks.WithRingLogger(log),
			sinks.WithRingMetrics(m.Acquisition))
		if err != nil {
			return err
		}
	}

	var sinkList []acquisition.Sink
	if wav != nil {
		sinkList = append(sinkList, wav)
	}
	if ring != nil {
		sinkList = append(sinkList, ring)
	}

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServe := context.WithCancel(gctx)
	defer stopServe()

	if settings.Metrics.Enabled {
		endpoint, err := observability.NewEndpoint(settings.Metrics.Listen, m, log)
		if err != nil {
			return err
		}
		g.Go(func() error { return endpoint.Run(serveCtx) })
	}

	if ring != nil {
		g.Go(func() error {
			_, err := ring.Drain(gctx, opts.Data)
			return err
		})
	}

	var result *acquisition.Result
	g.Go(func() error {
		defer stopServe()
		if ring != nil {
			defer ring.Close()
		}

		if err := engine.Configure(gctx, settings.EngineSettings()...); err != nil {
			return err
		}
		var err error
		result, err = engine.Acquire(gctx, acquisition.Request{Sink: acquisition.MultiSink(sinkList...)})
		return err
	})

	err = g.Wait()
	if result != nil && opts.Report != nil {
		summary := Summary{Result: result}
		if wav != nil {
			summary.WAVFrames = wav.Frames()
		}
		if ring != nil {
			stats := ring.Stats()
			summary.Ring = &stats
		}
		if encErr := writeSummary(opts.Report, summary); err == nil {
			err = encErr
		}
	}
	return err
}

func writeSummary(w io.Writer, summary Summary) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(summary)
}

// openDriver returns the driver named in the board section with the engine
// options it needs. A simulated board takes unlocked heap buffers.
func openDriver(settings *conf.Settings, log logger.Logger) (acquisition.Driver, []acquisition.Option, error) {
	switch settings.Board.Driver {
	case conf.DriverATSApi:
		drv, err := atsapi.New(log)
		return drv, nil, err
	default:
		drv := simulator.New(
			simulator.WithBoardID(settings.Board.SystemID, settings.Board.BoardID),
			simulator.WithLogger(log))
		return drv, []acquisition.Option{acquisition.WithAllocator(memory.NewHeap())}, nil
	}
}

// setupTelemetry initialises Sentry and routes enhanced errors to it. The
// returned function flushes pending events.
func setupTelemetry(settings conf.TelemetrySettings, build *buildinfo.Context) (func(), error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.DSN,
		Release:          build.Release(),
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Context("operation", "sentry-init").
			Build()
	}
	errors.SetTelemetryReporter(errors.NewSentryReporter(true, errors.DefaultDedupWindow))
	return func() { sentry.Flush(telemetryFlushTimeout) }, nil
}
