package cmd

import (
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	"github.com/sentinelwatch/sentinel/agent"
	"github.com/sentinelwatch/sentinel/agent/impl"
	"github.com/sentinelwatch/sentinel/alert"
	"github.com/sentinelwatch/sentinel/ledger"
	"github.com/sentinelwatch/sentinel/ledger/sim"
	"github.com/sentinelwatch/sentinel/positions"
)

// Config is the on-disk agent configuration.
type Config struct {
	WalletPath          string   `yaml:"wallet"`
	ClusterOffset       uint32   `yaml:"cluster_offset"`
	CheckIntervalSec    int      `yaml:"check_interval_seconds"`
	RevealDelaySec      int      `yaml:"reveal_delay_seconds"`
	AlertMinIntervalSec int      `yaml:"alert_min_interval_seconds"`
	Watchlist           []string `yaml:"watchlist"`
}

// DefaultConfig returns the values the setup flow starts from.
func DefaultConfig() Config {
	return Config{
		WalletPath:          "wallet.json",
		CheckIntervalSec:    30,
		RevealDelaySec:      5,
		AlertMinIntervalSec: 10,
		Watchlist:           []string{"solend", "marginfi", "kamino"},
	}
}

// LoadConfig reads and validates the YAML configuration file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, xerrors.Errorf("read config %s: %v", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, xerrors.Errorf("parse config %s: %v", path, err)
	}
	if cfg.CheckIntervalSec <= 0 {
		return cfg, xerrors.Errorf("check_interval_seconds must be positive")
	}
	return cfg, nil
}

// Save writes the configuration back to disk.
func (c Config) Save(path string) error {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// StartCMD boots the agent against the simulated ledger and position
// source, then blocks until SIGINT/SIGTERM. Startup failures (wallet,
// session key negotiation) are fatal.
func StartCMD(configPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	wallet, err := ledger.LoadWallet(cfg.WalletPath)
	if err != nil {
		return err
	}

	transport := sim.NewLedger()
	transport.SetCallbackDelay(2 * time.Second)
	// the demo oracle: roughly one in four reveals flags the position
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	transport.SetVerdict(func(uint32) bool { return rng.Intn(4) == 0 })

	node := impl.NewAgent(agent.Configuration{
		Transport:     transport,
		Wallet:        wallet,
		ClusterOffset: cfg.ClusterOffset,
		CheckInterval: time.Duration(cfg.CheckIntervalSec) * time.Second,
		RevealDelay:   time.Duration(cfg.RevealDelaySec) * time.Second,
		KeyRetry:      agent.RetryPolicy{MaxAttempts: 10, Delay: time.Second},
		Positions:     positions.NewSimulator(time.Now().UnixNano(), cfg.Watchlist),
		Alerter: alert.NewAlerter(alert.LogSink{},
			time.Duration(cfg.AlertMinIntervalSec)*time.Second),
		Watchlist: cfg.Watchlist,
	})

	if err := node.Start(); err != nil {
		return err
	}
	defer func() {
		if err := node.Stop(); err != nil {
			log.Error().Msgf("stop agent: %v", err)
		}
	}()

	stopWatch, err := watchConfig(configPath, node)
	if err != nil {
		log.Warn().Msgf("config watch disabled: %v", err)
	} else {
		defer stopWatch()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	log.Info().Msgf("received %s, shutting down", sig)
	return nil
}

// watchConfig hot-reloads the watchlist when the config file changes.
func watchConfig(path string, node agent.Agent) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := LoadConfig(path)
				if err != nil {
					log.Warn().Msgf("config reload skipped: %v", err)
					continue
				}
				node.SetWatchlist(cfg.Watchlist)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Msgf("config watcher: %v", err)
			}
		}
	}()

	return func() { watcher.Close() }, nil
}
