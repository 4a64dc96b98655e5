// config loads the viewer's and the simulator's settings from yaml.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"mazeview/models"
	"mazeview/reinforcement"
	"mazeview/sim"
	"mazeview/store"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Kind is the expected kind of the outer config envelope.
const Kind = "mazeview"

type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// Viper lowercases every key it reads, so the yaml tags below are lowercase; the
// files themselves may use any case, e.g. baseUrl.

// Remote locates the simulation.
type Remote struct {
	BaseURL string `yaml:"baseurl"`
	// StreamPath is /ws or /maze/simulate.
	StreamPath string `yaml:"streampath"`
	// Handshake sends the simulate handshake after the stream opens.
	Handshake bool          `yaml:"handshake"`
	Timeout   time.Duration `yaml:"timeout"`
}

// View configures the local presentation.
type View struct {
	Addr              string        `yaml:"addr"`
	ClearTableOnReset bool          `yaml:"cleartableonreset"`
	LenientStreamKeys bool          `yaml:"lenientstreamkeys"`
	PublishResolution time.Duration `yaml:"publishresolution"`
	Terminal          bool          `yaml:"terminal"`
	TerminalRefresh   time.Duration `yaml:"terminalrefresh"`
}

// Recorder configures the snapshot recorder. An empty address disables it.
type Recorder struct {
	RedisAddr string `yaml:"redisaddr"`
	Stream    string `yaml:"stream"`
	MaxLen    int64  `yaml:"maxlen"`
}

// Simulator configures the reference simulation.
type Simulator struct {
	Addr          string                         `yaml:"addr"`
	Start         [2]int                         `yaml:"start"`
	Goal          [2]int                         `yaml:"goal"`
	Obstacles     [][2]int                       `yaml:"obstacles"`
	HyperParams   []reinforcement.HyperParameter `yaml:"hyperparams"`
	Seed          uint64                         `yaml:"seed"`
	Pretrain      int                            `yaml:"pretrain"`
	Workers       int                            `yaml:"workers"`
	FrameInterval time.Duration                  `yaml:"frameinterval"`
	Horizon       int                            `yaml:"horizon"`
}

type Config struct {
	Remote    Remote          `yaml:"remote"`
	Grid      models.GridSize `yaml:"grid"`
	View      View            `yaml:"view"`
	Recorder  Recorder        `yaml:"recorder"`
	Simulator Simulator       `yaml:"simulator"`
}

func position(cell [2]int) models.Position {
	return models.Position{Row: cell[0], Col: cell[1]}
}

func cell(p models.Position) [2]int {
	return [2]int{p.Row, p.Col}
}

// Default returns the settings used for anything a config file leaves out.
func Default() *Config {
	simDefaults := sim.DefaultOptions()
	obstacles := make([][2]int, 0, len(simDefaults.Maze.Obstacles))
	for _, p := range simDefaults.Maze.Obstacles {
		obstacles = append(obstacles, cell(p))
	}

	return &Config{
		Remote: Remote{
			BaseURL:    "http://localhost:3030",
			StreamPath: "/maze/simulate",
			Handshake:  true,
			Timeout:    5 * time.Second,
		},
		Grid: models.GridSize{Rows: 5, Cols: 5},
		View: View{
			Addr:              ":8080",
			PublishResolution: 100 * time.Millisecond,
			TerminalRefresh:   250 * time.Millisecond,
		},
		Recorder: Recorder{
			Stream: "mazeview:snapshots",
			MaxLen: 10000,
		},
		Simulator: Simulator{
			Addr:          simDefaults.Addr,
			Start:         cell(simDefaults.Maze.Start),
			Goal:          cell(simDefaults.Maze.Goal),
			Obstacles:     obstacles,
			HyperParams:   simDefaults.Maze.HyperParams,
			Pretrain:      simDefaults.Pretrain,
			Workers:       simDefaults.Workers,
			FrameInterval: simDefaults.FrameInterval,
			Horizon:       simDefaults.Horizon,
		},
	}
}

// FromYaml reads the config at path. Settings missing from the file keep their defaults.
func FromYaml(path string) (*Config, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	var err error
	if err = vp.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	outerConfig := &OuterConfig{}
	if err = vp.Unmarshal(outerConfig); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if outerConfig.Kind != "" && outerConfig.Kind != Kind {
		return nil, fmt.Errorf("config %s: kind %q, want %q", path, outerConfig.Kind, Kind)
	}

	var spec []byte
	if spec, err = yaml.Marshal(outerConfig.Def); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	innerConfig := Default()
	if err = yaml.Unmarshal(spec, innerConfig); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err = innerConfig.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return innerConfig, nil
}

// Load reads the config at path, or returns the defaults when path is empty.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return FromYaml(path)
}

// Validate checks the settings that would otherwise fail far from their cause.
func (cfg *Config) Validate() error {
	if cfg.Grid.Rows <= 0 || cfg.Grid.Cols <= 0 {
		return fmt.Errorf("grid must be positive, got %dx%d", cfg.Grid.Rows, cfg.Grid.Cols)
	}
	u, err := url.Parse(cfg.Remote.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("remote baseUrl %q must be an http(s) url", cfg.Remote.BaseURL)
	}
	if !strings.HasPrefix(cfg.Remote.StreamPath, "/") {
		return fmt.Errorf("remote streamPath %q must start with /", cfg.Remote.StreamPath)
	}
	if cfg.Remote.Timeout <= 0 {
		return fmt.Errorf("remote timeout must be positive, got %v", cfg.Remote.Timeout)
	}
	if cfg.View.PublishResolution <= 0 || cfg.View.TerminalRefresh <= 0 {
		return fmt.Errorf("view publishResolution and terminalRefresh must be positive")
	}
	if cfg.Recorder.RedisAddr != "" && cfg.Recorder.Stream == "" {
		return fmt.Errorf("recorder stream name is required with redisAddr")
	}
	return nil
}

// StoreOptions returns the reconciliation settings.
func (cfg *Config) StoreOptions() store.Options {
	return store.Options{
		Size:              cfg.Grid,
		ClearTableOnReset: cfg.View.ClearTableOnReset,
		LenientStreamKeys: cfg.View.LenientStreamKeys,
	}
}

// SimOptions returns the simulator settings, on the configured grid.
func (cfg *Config) SimOptions() sim.Options {
	obstacles := make([]models.Position, 0, len(cfg.Simulator.Obstacles))
	for _, c := range cfg.Simulator.Obstacles {
		obstacles = append(obstacles, position(c))
	}

	return sim.Options{
		Addr: cfg.Simulator.Addr,
		Maze: reinforcement.MazeConfig{
			Size:        cfg.Grid,
			Start:       position(cfg.Simulator.Start),
			Goal:        position(cfg.Simulator.Goal),
			Obstacles:   obstacles,
			HyperParams: cfg.Simulator.HyperParams,
			Seed:        cfg.Simulator.Seed,
		},
		Pretrain:      cfg.Simulator.Pretrain,
		Workers:       cfg.Simulator.Workers,
		FrameInterval: cfg.Simulator.FrameInterval,
		Horizon:       cfg.Simulator.Horizon,
	}
}
