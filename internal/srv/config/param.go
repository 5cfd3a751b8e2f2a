package config

import (
	_ "embed"
	"time"
)

//go:embed param_default.yaml
var ParamDefaultFile []byte

const (
	defaultPollInterval = 5 * time.Second
	defaultTopCount     = 10
)

type ServerParam struct {
	MusicFolder    string        `yaml:"music_folder"`
	CatalogFile    string        `yaml:"catalog_file"`
	CheckFile      string        `yaml:"check_file"`
	RequestFile    string        `yaml:"request_file"`
	StatisticsFile string        `yaml:"statistics_file"`
	NowPlayingFile string        `yaml:"now_playing_file"`
	PlayLogFile    string        `yaml:"play_log_file"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	TopCount       int           `yaml:"top_count"`
	RandomGenres   []string      `yaml:"random_genres"`
	PlayerParam    PlayerParam   `yaml:"player"`
	ApiParam       ApiParam      `yaml:"api"`
}

type PlayerParam struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type ApiParam struct {
	Enabled bool   `yaml:"enabled"`
	SslPort int64  `yaml:"ssl_port"`
	ApiKey  string `yaml:"api_key"`
}

// applyDefaults fills the settings an older or hand written param file may lack
func (sp *ServerParam) applyDefaults() {
	if sp.PollInterval <= 0 {
		sp.PollInterval = defaultPollInterval
	}
	if sp.TopCount <= 0 {
		sp.TopCount = defaultTopCount
	}
	if sp.PlayerParam.Command == "" {
		sp.PlayerParam.Command = "cvlc"
		sp.PlayerParam.Args = []string{"--aout=alsa", "--play-and-exit"}
	}
}
