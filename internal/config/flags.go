package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"nimctl/x/mathx"
)

// CLI is the parsed command-line surface of spec.md §6, before it has
// been folded into a Configuration.
type CLI struct {
	MainBusAddr   string // -u
	SecondBusAddr string // -U
	Dual          bool   // -d
	DualAutoProbe bool   // -D

	TsUDP        Endpoint // -i
	TsFifoPath   string   // -t
	StatusUDP    Endpoint // -I
	StatusMQTT   string   // -M
	StatusFifo   string   // -s
	Tuner2TsUDP  Endpoint // -j

	Polar         string  // -p
	PortSwap      bool    // -w
	HalfscanRatio float64 // -S
	Beep          bool    // -b
	TsTimeoutMs   int     // -r

	ConfigFile string // -c (supplemental, see SPEC_FULL.md §6)

	FreqKHz []int // positional
	SrKsps  []int // positional
}

// Endpoint is a host/port pair used by several UDP-bearing flags.
type Endpoint struct {
	IP   string
	Port int
	Set  bool
}

// defaultCLI mirrors the original program's defaults (spec.md §6):
// FIFO TS sink at "longmynd_main_ts", halfscan ratio unset (0, which
// programs a zero-width carrier search window), ts timeout disabled.
func defaultCLI() CLI {
	return CLI{
		TsFifoPath:  "longmynd_main_ts",
		TsTimeoutMs: TsTimeoutOffVal,
	}
}

// ParseArgs parses argv (excluding the program name) into a CLI value.
func ParseArgs(argv []string) (*CLI, error) {
	cli := defaultCLI()
	fs := pflag.NewFlagSet("nimctl", pflag.ContinueOnError)

	fs.StringVarP(&cli.MainBusAddr, "main-usb", "u", "", "main USB bus/addr, e.g. 001/002")
	fs.StringVarP(&cli.SecondBusAddr, "second-usb", "U", "", "second USB bus/addr (implies dual)")
	fs.BoolVarP(&cli.Dual, "dual", "d", false, "dual tuner mode")
	fs.BoolVarP(&cli.DualAutoProbe, "dual-autoprobe", "D", false, "dual mode, auto-detect second device")

	var tsUDP, statusUDP, tuner2TsUDP []string
	fs.StringArrayVarP(&tsUDP, "ts-udp", "i", nil, "TS UDP sink: ip port")
	fs.StringVarP(&cli.TsFifoPath, "ts-fifo", "t", cli.TsFifoPath, "TS FIFO sink path")
	fs.StringArrayVarP(&statusUDP, "status-udp", "I", nil, "status UDP sink: ip port")
	fs.StringVarP(&cli.StatusMQTT, "status-mqtt", "M", "", "status MQTT broker: ip port")
	fs.StringVarP(&cli.StatusFifo, "status-fifo", "s", "", "status FIFO path")
	fs.StringVarP(&cli.Polar, "polarisation", "p", "", "polarisation voltage: h|v")
	fs.BoolVarP(&cli.PortSwap, "port-swap", "w", false, "swap F-connector ports")
	fs.Float64VarP(&cli.HalfscanRatio, "halfscan", "S", 0, "halfscan ratio [0,100]")
	fs.BoolVarP(&cli.Beep, "beep", "b", false, "enable audible MER beeper (out of core)")
	fs.IntVarP(&cli.TsTimeoutMs, "ts-timeout", "r", cli.TsTimeoutMs, "TS timeout ms (-1 disables, else > 500)")
	fs.StringArrayVarP(&tuner2TsUDP, "tuner2-ts-udp", "j", nil, "tuner2 TS UDP sink: ip port")
	fs.StringVarP(&cli.ConfigFile, "config", "c", "", "optional YAML config file (supplemental to spec.md §6)")

	if err := fs.Parse(argv); err != nil {
		return nil, errcodeWrap(err)
	}

	var err error
	if cli.TsUDP, err = parseEndpointPair(tsUDP, "-i"); err != nil {
		return nil, err
	}
	if cli.StatusUDP, err = parseEndpointPair(statusUDP, "-I"); err != nil {
		return nil, err
	}
	if cli.Tuner2TsUDP, err = parseEndpointPair(tuner2TsUDP, "-j"); err != nil {
		return nil, err
	}

	pos := fs.Args()
	if len(pos) > 0 {
		cli.FreqKHz, err = parseCSVInts(pos[0])
		if err != nil {
			return nil, fmt.Errorf("args_input: frequency list: %w", err)
		}
	}
	if len(pos) > 1 {
		cli.SrKsps, err = parseCSVInts(pos[1])
		if err != nil {
			return nil, fmt.Errorf("args_input: symbol rate list: %w", err)
		}
	}

	if cli.SecondBusAddr != "" {
		cli.Dual = true
	}

	return &cli, nil
}

func errcodeWrap(err error) error { return fmt.Errorf("args_input: %w", err) }

func parseEndpointPair(vals []string, flag string) (Endpoint, error) {
	if len(vals) == 0 {
		return Endpoint{}, nil
	}
	// pflag's StringArray accumulates one entry per occurrence; only the
	// last occurrence is used, and it must carry both whitespace-separated
	// operands ("ip port") in one token. Splitting ip and port across two
	// occurrences is rejected.
	parts := strings.Fields(vals[len(vals)-1])
	if len(parts) != 2 {
		return Endpoint{}, fmt.Errorf("args_input: %s requires \"ip port\"", flag)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return Endpoint{}, fmt.Errorf("args_input: %s port: %w", flag, err)
	}
	return Endpoint{IP: parts[0], Port: port, Set: true}, nil
}

func parseCSVInts(s string) ([]int, error) {
	fields := strings.Split(s, ",")
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// FileDefaults is the shape of the optional -c YAML file (SPEC_FULL.md
// §6 supplement). Any field left zero does not override the CLI value.
type FileDefaults struct {
	FreqKHz       []int   `yaml:"freq_khz"`
	SrKsps        []int   `yaml:"sr_ksps"`
	Polarisation  string  `yaml:"polarisation"`
	HalfscanRatio float64 `yaml:"halfscan_ratio"`
	TsTimeoutMs   *int    `yaml:"ts_timeout_ms"`
}

// LoadFile reads and parses the optional config file named by -c.
func LoadFile(path string) (*FileDefaults, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("args_input: reading config file: %w", err)
	}
	var fd FileDefaults
	if err := yaml.Unmarshal(b, &fd); err != nil {
		return nil, fmt.Errorf("args_input: parsing config file: %w", err)
	}
	return &fd, nil
}

// Build folds CLI flags (and an optional file, with CLI taking
// precedence) into a runtime Configuration for Tuner1, honoring every
// range check of spec.md §8.
func Build(cli *CLI, file *FileDefaults) (*Configuration, error) {
	cfg := New()
	t := &cfg.Tuner1

	freq := cli.FreqKHz
	sr := cli.SrKsps
	if file != nil {
		if len(freq) == 0 {
			freq = file.FreqKHz
		}
		if len(sr) == 0 {
			sr = file.SrKsps
		}
	}
	if len(freq) == 0 || len(sr) == 0 {
		return nil, fmt.Errorf("args_input: at least one frequency and one symbol rate are required")
	}
	if len(freq) > 4 || len(sr) > 4 {
		return nil, fmt.Errorf("args_input: at most 4 alternative frequencies/symbol rates")
	}
	for i, f := range freq {
		if !mathx.Between(f, FreqMinKHz, FreqMaxKHz) {
			return nil, fmt.Errorf("args_input: freq_khz[%d]=%d out of range [%d, %d]", i, f, FreqMinKHz, FreqMaxKHz)
		}
		t.FreqKHz[i] = f
	}
	for i, s := range sr {
		if !mathx.Between(s, SrMinKsps, SrMaxKsps) {
			return nil, fmt.Errorf("args_input: sr_ksps[%d]=%d out of range [%d, %d]", i, s, SrMinKsps, SrMaxKsps)
		}
		t.SrKsps[i] = s
	}

	t.PortSwap = cli.PortSwap
	t.HalfscanRatio = cli.HalfscanRatio
	if file != nil && cli.HalfscanRatio == 0 {
		t.HalfscanRatio = file.HalfscanRatio
	}
	if !mathx.Between(t.HalfscanRatio, 0, 100) {
		return nil, fmt.Errorf("args_input: halfscan_ratio %v out of range [0,100]", t.HalfscanRatio)
	}

	polar := cli.Polar
	if polar == "" && file != nil {
		polar = file.Polarisation
	}
	switch polar {
	case "", "n":
		t.Polarisation = PolarOff
	case "v":
		t.Polarisation = PolarVertical13V
	case "h":
		t.Polarisation = PolarHorizontal18V
	default:
		return nil, fmt.Errorf("args_input: polarisation %q must be h, v, or n", polar)
	}

	t.TsTimeoutMs = cli.TsTimeoutMs
	if file != nil && file.TsTimeoutMs != nil && cli.TsTimeoutMs == TsTimeoutOffVal {
		t.TsTimeoutMs = *file.TsTimeoutMs
	}
	if t.TsTimeoutMs != TsTimeoutOffVal && t.TsTimeoutMs <= TsTimeoutMinMs {
		return nil, fmt.Errorf("args_input: ts_timeout_ms %d must be > %d or %d to disable", t.TsTimeoutMs, TsTimeoutMinMs, TsTimeoutOffVal)
	}

	if cli.TsUDP.Set {
		t.TsSink = Sink{Kind: SinkUDP, IP: cli.TsUDP.IP, Port: cli.TsUDP.Port}
	} else {
		t.TsSink = Sink{Kind: SinkFifo, Path: cli.TsFifoPath}
	}

	switch {
	case cli.StatusMQTT != "":
		t.StatusSink = Sink{Kind: SinkMQTT, Broker: cli.StatusMQTT}
	case cli.StatusUDP.Set:
		t.StatusSink = Sink{Kind: SinkUDP, IP: cli.StatusUDP.IP, Port: cli.StatusUDP.Port}
	case cli.StatusFifo != "":
		t.StatusSink = Sink{Kind: SinkFifo, Path: cli.StatusFifo}
	default:
		t.StatusSink = Sink{Kind: SinkNone}
	}

	t.NewConfig = true

	cfg.DualEnabled = cli.Dual || cli.DualAutoProbe
	if cfg.DualEnabled {
		cfg.Tuner2 = cfg.Tuner1
		if cli.Tuner2TsUDP.Set {
			cfg.Tuner2.TsSink = Sink{Kind: SinkUDP, IP: cli.Tuner2TsUDP.IP, Port: cli.Tuner2TsUDP.Port}
		}
	}

	return cfg, nil
}
