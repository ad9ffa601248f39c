package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"trivia-service/internal/domain"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Activities struct {
		TTL string `yaml:"ttl"`
	} `yaml:"activities"`
	Game struct {
		Questions  int    `yaml:"questions"`
		AnswerTime string `yaml:"answerTime"`
		RevealTime string `yaml:"revealTime"`
		Capacity   int    `yaml:"capacity"`
		MinPlayers int    `yaml:"minPlayers"`
	} `yaml:"game"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// GameConfig resolves the game section with sane defaults.
func (c Config) GameConfig() domain.GameConfig {
	g := domain.GameConfig{
		Questions:  c.Game.Questions,
		AnswerTime: TTLDuration(c.Game.AnswerTime, 15*time.Second),
		RevealTime: TTLDuration(c.Game.RevealTime, 5*time.Second),
		Capacity:   c.Game.Capacity,
		MinPlayers: c.Game.MinPlayers,
	}
	if g.Questions <= 0 {
		g.Questions = 20
	}
	if g.Capacity <= 0 {
		g.Capacity = 6
	}
	if g.MinPlayers <= 0 {
		g.MinPlayers = 2
	}
	return g
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
