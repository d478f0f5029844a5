package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soypat/sdmmcspi"
	"github.com/soypat/sdmmcspi/capture"
	"github.com/soypat/sdmmcspi/internal/sink"
	"github.com/soypat/sdmmcspi/sdcmd"
)

func TestLoadConfigFlags(t *testing.T) {
	cfg, err := loadConfig([]string{"-f-csv", "spi.csv", "-block-size", "512", "-omit-data"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Input.CSV != "spi.csv" || cfg.Decoder.BlockSize != 512 || !cfg.OmitData {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if cfg.Decoder.BitDivisor != sdmmcspi.DefaultBitDivisor || cfg.Output != "-" {
		t.Errorf("defaults not kept: %+v", cfg)
	}
}

func TestLoadConfigValidate(t *testing.T) {
	bad := [][]string{
		{},
		{"-f-csv", "a.csv", "-stream", "-"},
		{"-f-clk", "digital_0.bin"},
		{"-f-csv", "a.csv", "-block-size", "0"},
		{"-f-csv", "a.csv", "-log", "loud"},
	}
	for _, args := range bad {
		if _, err := loadConfig(args); err == nil {
			t.Errorf("expected error for args %q", args)
		}
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "sdanalyze.yaml")
	const contents = `
input:
  stream: tcp:127.0.0.1:9000
  bitrate: 25000000
output: frames.txt
mqtt:
  addr: localhost:1883
  timeout: 2s
decoder:
  block_size: 64
log_level: debug
`
	if err := os.WriteFile(file, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig([]string{"-config", file, "-block-size", "128"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Input.Stream != "tcp:127.0.0.1:9000" || cfg.Input.BitRate != 25_000_000 {
		t.Errorf("input not loaded: %+v", cfg.Input)
	}
	if cfg.Decoder.BlockSize != 128 {
		t.Errorf("flag should override file block size, got %d", cfg.Decoder.BlockSize)
	}
	if cfg.MQTT.Addr != "localhost:1883" || cfg.MQTT.Topic != "sdmmc/frames" || cfg.MQTT.Timeout.Seconds() != 2 {
		t.Errorf("mqtt not loaded: %+v", cfg.MQTT)
	}
	if cfg.LogLevel != "debug" || cfg.Output != "frames.txt" {
		t.Errorf("bad config %+v", cfg)
	}

	if err := os.WriteFile(file, []byte("bogus_key: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig([]string{"-config", file}); err == nil {
		t.Error("expected error on unknown yaml key")
	}
}

func TestDecodeAllCSV(t *testing.T) {
	var stream []byte
	stream = append(stream, 0xff, 0xff)
	stream = sdcmd.AppendCommand(stream, 0, 0)
	stream = append(stream, 0xff)
	stream = sdcmd.AppendCommand(stream, 8, 0x1aa)
	stream = append(stream, 0xff)
	stream = sdcmd.AppendResponse(stream, 8, 0x1aa)

	var csv strings.Builder
	csv.WriteString("name,type,start_time,duration,mosi,miso\n")
	for i, b := range stream {
		fmt.Fprintf(&csv, "SPI,result,%.9f,7.5e-06,0x%02X,0xFF\n", float64(i)*8e-6, b)
	}
	bytesIn, err := capture.ReadCSV(strings.NewReader(csv.String()))
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	dec := sdmmcspi.NewDecoder(sdmmcspi.DefaultConfig())
	st, err := decodeAll(capture.NewSlice(bytesIn), dec, sink.NewText(&out))
	if err != nil {
		t.Fatal(err)
	}
	if st.bytes != len(stream) || st.frames != 3 || st.errFrames != 0 {
		t.Errorf("bad stats %+v", st)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", lines)
	}
	wantSuffix := []string{
		"\tCMD\tGO_IDLE_STATE (CMD0), arg:0",
		"\tCMD\tSEND_EXT_CSD (CMD8), arg:426",
		"\tRSP\tR1, IDLE",
	}
	for i, want := range wantSuffix {
		if !strings.HasSuffix(lines[i], want) {
			t.Errorf("line %d: got %q want suffix %q", i, lines[i], want)
		}
	}
	if !strings.HasPrefix(lines[0], "t=0.000016000s..0.000063500s") {
		t.Errorf("bad timing %q", lines[0])
	}
}

func TestCloseOnCancel(t *testing.T) {
	var calls atomic.Int32
	closed := make(chan struct{}, 2)
	closeFn := func() error {
		calls.Add(1)
		closed <- struct{}{}
		return nil
	}

	// Cancelled before run returns: interrupt closes, deferred close is a no-op.
	ctx, cancel := context.WithCancel(context.Background())
	closeSrc := closeOnCancel(ctx, closeFn)
	cancel()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("source not closed on cancel")
	}
	if err := closeSrc(); err != nil {
		t.Fatal(err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("want 1 close after cancel, got %d", n)
	}

	// Run returns first: later cancel must not close again.
	calls.Store(0)
	ctx, cancel = context.WithCancel(context.Background())
	closeSrc = closeOnCancel(ctx, closeFn)
	closeSrc()
	<-closed
	closeSrc()
	cancel()
	time.Sleep(10 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Fatalf("want 1 close after return, got %d", n)
	}
}
