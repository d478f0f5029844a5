package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/soypat/sdmmcspi"
	"github.com/soypat/sdmmcspi/capture"
	"github.com/soypat/sdmmcspi/internal/sink"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	} else if err != nil {
		log.Fatal(err.Error())
	}
	level, _ := parseLevel(cfg.LogLevel)
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	start := time.Now()
	st, err := run(ctx, cfg, logger)
	if err != nil {
		log.Fatal(err.Error())
	}
	logger.Info("finished",
		slog.Duration("took", time.Since(start)),
		slog.Int("bytes", st.bytes),
		slog.Int("frames", st.frames),
		slog.Int("errors", st.errFrames),
		slog.Int("dataBlocks", st.dataBlocks),
	)
}

type stats struct {
	bytes      int
	frames     int
	errFrames  int
	dataBlocks int
}

func run(ctx context.Context, cfg config, logger *slog.Logger) (stats, error) {
	src, closeSrc, err := openSource(cfg)
	if err != nil {
		return stats{}, err
	}
	// Unblock live stream reads on interrupt.
	closeSrc = closeOnCancel(ctx, closeSrc)
	defer closeSrc()

	out, err := openSinks(ctx, cfg, logger)
	if err != nil {
		return stats{}, err
	}
	defer out.Close()

	dec := sdmmcspi.NewDecoder(cfg.decoderConfig(logger))
	st, err := decodeAll(src, dec, out)
	if ctx.Err() != nil {
		logger.Info("interrupted")
		return st, nil
	}
	return st, err
}

// decodeAll feeds every byte of src to dec and emits the decoded frames.
func decodeAll(src capture.Source, dec *sdmmcspi.Decoder, out sink.Sink) (stats, error) {
	var st stats
	for {
		b, err := src.Next()
		if errors.Is(err, io.EOF) {
			return st, nil
		} else if err != nil {
			return st, err
		}
		st.bytes++
		frame, ok := dec.AddByte(b.Value, b.Start, b.End)
		if !ok {
			continue
		}
		st.frames++
		if frame.Err {
			st.errFrames++
		}
		if frame.Type == sdmmcspi.FrameData {
			st.dataBlocks++
		}
		if err := out.Emit(frame); err != nil {
			return st, err
		}
	}
}

// closeOnCancel returns a close function that also runs when ctx is
// cancelled first. closeFn is called at most once and the watching
// goroutine exits once the returned function has been called.
func closeOnCancel(ctx context.Context, closeFn func() error) func() error {
	closeOnce := sync.OnceValue(closeFn)
	done := make(chan struct{})
	stop := sync.OnceFunc(func() { close(done) })
	go func() {
		select {
		case <-ctx.Done():
			closeOnce()
		case <-done:
		}
	}()
	return func() error {
		stop()
		return closeOnce()
	}
}

func openSource(cfg config) (capture.Source, func() error, error) {
	nop := func() error { return nil }
	switch {
	case cfg.Input.Stream != "":
		s, err := capture.OpenStream(cfg.Input.Stream, cfg.Input.Baud, cfg.Input.BitRate)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case cfg.Input.CSV != "":
		fp, err := os.Open(cfg.Input.CSV)
		if err != nil {
			return nil, nil, err
		}
		defer fp.Close()
		bytes, err := capture.ReadCSV(fp)
		if err != nil {
			return nil, nil, err
		}
		return capture.NewSlice(bytes), nop, nil

	case cfg.Input.DigitalCSV != "":
		fp, err := os.Open(cfg.Input.DigitalCSV)
		if err != nil {
			return nil, nil, err
		}
		defer fp.Close()
		bytes, err := capture.ReadDigitalCSV(fp, capture.DigitalCSVConfig{
			ClockColumn: cfg.Input.ClockCol,
			CmdColumn:   cfg.Input.CmdCol,
		})
		if err != nil {
			return nil, nil, err
		}
		return capture.NewSlice(bytes), nop, nil
	}
	clk, err := capture.OpenDigital(cfg.Input.Clock)
	if err != nil {
		return nil, nil, err
	}
	cmd, err := capture.OpenDigital(cfg.Input.Cmd)
	if err != nil {
		return nil, nil, err
	}
	bytes, err := capture.SampleClocked(clk, cmd)
	if err != nil {
		return nil, nil, err
	}
	return capture.NewSlice(bytes), nop, nil
}

func openSinks(ctx context.Context, cfg config, logger *slog.Logger) (sink.Multi, error) {
	text := sink.NewText(os.Stdout)
	if cfg.Output != "-" && cfg.Output != "" {
		fp, err := os.Create(cfg.Output)
		if err != nil {
			return nil, err
		}
		text = sink.NewTextCloser(fp)
	}
	text.OmitData = cfg.OmitData
	sinks := sink.Multi{text}
	if cfg.MQTT.Addr != "" {
		m, err := sink.DialMQTT(ctx, sink.MQTTConfig{
			Addr:     cfg.MQTT.Addr,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			Timeout:  cfg.MQTT.Timeout,
			Logger:   logger,
		})
		if err != nil {
			sinks.Close()
			return nil, err
		}
		sinks = append(sinks, m)
	}
	return sinks, nil
}
