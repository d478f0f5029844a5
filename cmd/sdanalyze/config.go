package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/soypat/sdmmcspi"
	"gopkg.in/yaml.v2"
)

// config holds every option of sdanalyze. It is loaded from an optional
// YAML file and then overridden by explicitly set flags.
type config struct {
	ConfigFile string `yaml:"-"`
	Input      struct {
		// Saleae binary digital exports of CLK and CMD.
		Clock string `yaml:"clock"`
		Cmd   string `yaml:"cmd"`
		// Saleae Logic 2 SPI analyzer CSV export.
		CSV string `yaml:"csv"`
		// Saleae raw digital CSV export and its CLK and CMD columns.
		DigitalCSV string `yaml:"digital_csv"`
		ClockCol   int    `yaml:"clock_col"`
		CmdCol     int    `yaml:"cmd_col"`
		// Raw line stream: tcp:addr, serial:port, file or "-".
		Stream  string `yaml:"stream"`
		Baud    int    `yaml:"baud"`
		BitRate int    `yaml:"bitrate"`
	} `yaml:"input"`
	Output   string `yaml:"output"`
	OmitData bool   `yaml:"omit_data"`
	MQTT     struct {
		Addr     string        `yaml:"addr"`
		Topic    string        `yaml:"topic"`
		ClientID string        `yaml:"client_id"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"mqtt"`
	Decoder struct {
		BlockSize   uint    `yaml:"block_size"`
		BitDivisor  float64 `yaml:"bit_divisor"`
		SplitOffset float64 `yaml:"split_offset"`
	} `yaml:"decoder"`
	LogLevel string `yaml:"log_level"`
}

func defaultConfig() config {
	var cfg config
	def := sdmmcspi.DefaultConfig()
	cfg.Input.BitRate = 400_000
	cfg.Input.ClockCol = 1
	cfg.Input.CmdCol = 2
	cfg.Output = "-"
	cfg.MQTT.Topic = "sdmmc/frames"
	cfg.MQTT.ClientID = "sdanalyze"
	cfg.MQTT.Timeout = 5 * time.Second
	cfg.Decoder.BlockSize = uint(def.BlockSize)
	cfg.Decoder.BitDivisor = def.BitDivisor
	cfg.Decoder.SplitOffset = *def.SplitOffset
	cfg.LogLevel = "info"
	return cfg
}

func (cfg *config) flagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("sdanalyze", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "sdanalyze - Decode SD/MMC/SDIO CMD line traffic captured with an SPI analyzer.\n\tUsage:\n")
		fs.PrintDefaults()
	}
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML config file. Flags set explicitly override its values.")
	fs.StringVar(&cfg.Input.Clock, "f-clk", cfg.Input.Clock, "Input filename: Saleae binary export of the SD clock channel.")
	fs.StringVar(&cfg.Input.Cmd, "f-cmd", cfg.Input.Cmd, "Input filename: Saleae binary export of the CMD channel.")
	fs.StringVar(&cfg.Input.CSV, "f-csv", cfg.Input.CSV, "Input filename: Saleae Logic 2 SPI analyzer CSV export (CMD on MOSI).")
	fs.StringVar(&cfg.Input.DigitalCSV, "f-digital-csv", cfg.Input.DigitalCSV, "Input filename: Saleae raw digital CSV export with time in the first column.")
	fs.IntVar(&cfg.Input.ClockCol, "clk-col", cfg.Input.ClockCol, "Clock column of -f-digital-csv.")
	fs.IntVar(&cfg.Input.CmdCol, "cmd-col", cfg.Input.CmdCol, "CMD column of -f-digital-csv.")
	fs.StringVar(&cfg.Input.Stream, "stream", cfg.Input.Stream, "Raw CMD line byte stream: tcp:host:port, serial:/dev/port, a file or - for stdin.")
	fs.IntVar(&cfg.Input.Baud, "baud", cfg.Input.Baud, "Serial baud rate of a serial: stream.")
	fs.IntVar(&cfg.Input.BitRate, "bitrate", cfg.Input.BitRate, "CMD line clock in bits per second, used to timestamp streams.")
	fs.StringVar(&cfg.Output, "o", cfg.Output, "Output filename of decoded frames, - for stdout.")
	fs.BoolVar(&cfg.OmitData, "omit-data", cfg.OmitData, "Omit CMD53 data block frames from the text output.")
	fs.StringVar(&cfg.MQTT.Addr, "mqtt", cfg.MQTT.Addr, "MQTT broker host:port to publish frames to.")
	fs.StringVar(&cfg.MQTT.Topic, "mqtt-topic", cfg.MQTT.Topic, "MQTT topic frames are published on.")
	fs.UintVar(&cfg.Decoder.BlockSize, "block-size", cfg.Decoder.BlockSize, "CMD53 block size in bytes.")
	fs.Float64Var(&cfg.Decoder.BitDivisor, "bit-divisor", cfg.Decoder.BitDivisor, "Bit periods per captured byte span.")
	fs.Float64Var(&cfg.Decoder.SplitOffset, "split-offset", cfg.Decoder.SplitOffset, "Bit fraction added to frames starting mid-byte.")
	fs.StringVar(&cfg.LogLevel, "log", cfg.LogLevel, "Log level: trace, debug, info, warn or error.")
	return fs
}

// loadConfig parses args, reads the config file if one is given and parses
// args again so explicit flags win over the file.
func loadConfig(args []string) (config, error) {
	cfg := defaultConfig()
	if err := cfg.flagSet().Parse(args); err != nil {
		return cfg, err
	}
	if cfg.ConfigFile == "" {
		return cfg, cfg.validate()
	}
	contents, err := os.ReadFile(cfg.ConfigFile)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	fileCfg := defaultConfig()
	if err := yaml.UnmarshalStrict(contents, &fileCfg); err != nil {
		return cfg, fmt.Errorf("unmarshaling yaml file: %w", err)
	}
	if err := fileCfg.flagSet().Parse(args); err != nil {
		return cfg, err
	}
	return fileCfg, fileCfg.validate()
}

func (cfg *config) validate() error {
	inputs := 0
	if cfg.Input.Clock != "" || cfg.Input.Cmd != "" {
		if cfg.Input.Clock == "" || cfg.Input.Cmd == "" {
			return errors.New("digital input needs both -f-clk and -f-cmd")
		}
		inputs++
	}
	if cfg.Input.CSV != "" {
		inputs++
	}
	if cfg.Input.DigitalCSV != "" {
		inputs++
	}
	if cfg.Input.Stream != "" {
		inputs++
	}
	if inputs != 1 {
		return errors.New("select exactly one input: -f-clk/-f-cmd, -f-csv, -f-digital-csv or -stream")
	}
	if cfg.Decoder.BlockSize == 0 || cfg.Decoder.BlockSize > 2048 {
		return fmt.Errorf("invalid block size %d", cfg.Decoder.BlockSize)
	}
	_, err := parseLevel(cfg.LogLevel)
	return err
}

func (cfg *config) decoderConfig(logger *slog.Logger) sdmmcspi.Config {
	return sdmmcspi.Config{
		BlockSize:   uint32(cfg.Decoder.BlockSize),
		BitDivisor:  cfg.Decoder.BitDivisor,
		SplitOffset: sdmmcspi.SplitOffset(cfg.Decoder.SplitOffset),
		Logger:      logger,
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "trace":
		return slog.LevelDebug - 1, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level %q", s)
}
