package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rcourtman/crauti-dashboard/internal/logging"
	"github.com/rs/zerolog/log"
)

const (
	watchDebounce     = 100 * time.Millisecond
	watchPollInterval = 5 * time.Second
)

// ConfigWatcher monitors the .env file and applies the settings that can
// change at runtime. Today that is the log level; everything else needs a
// restart.
type ConfigWatcher struct {
	config      *Config
	envPath     string
	watcher     *fsnotify.Watcher
	stopChan    chan struct{}
	stopOnce    sync.Once
	lastModTime time.Time
	mu          sync.RWMutex
	onReload    func(*Config)
}

// NewConfigWatcher creates a watcher for the .env file config was loaded from,
// or ./.env when none was found.
func NewConfigWatcher(config *Config) (*ConfigWatcher, error) {
	envPath := config.EnvFile
	if envPath == "" {
		envPath = defaultEnvFile
	}
	if abs, err := filepath.Abs(envPath); err == nil {
		envPath = abs
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	cw := &ConfigWatcher{
		config:   config,
		envPath:  envPath,
		watcher:  watcher,
		stopChan: make(chan struct{}),
	}
	if stat, err := os.Stat(envPath); err == nil {
		cw.lastModTime = stat.ModTime()
	}
	return cw, nil
}

// SetReloadCallback registers fn to run after each applied reload.
func (cw *ConfigWatcher) SetReloadCallback(fn func(*Config)) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.onReload = fn
}

// Start begins watching the .env file's directory. If the directory cannot
// be watched it falls back to polling the file's mtime.
func (cw *ConfigWatcher) Start() error {
	dir := filepath.Dir(cw.envPath)
	if err := cw.watcher.Add(dir); err != nil {
		log.Warn().Err(err).Str("path", dir).Msg("Failed to watch config directory, falling back to polling")
		go cw.pollForChanges(watchPollInterval)
		return nil
	}

	go cw.handleEvents(cw.watcher.Events, cw.watcher.Errors)
	log.Info().Str("env_path", cw.envPath).Msg("Started watching .env for changes")
	return nil
}

// Stop stops the watcher. It is safe to call more than once.
func (cw *ConfigWatcher) Stop() {
	cw.stopOnce.Do(func() {
		close(cw.stopChan)
		if err := cw.watcher.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close fsnotify watcher")
		}
	})
}

// ReloadConfig re-reads the .env file immediately (e.g. on SIGHUP).
func (cw *ConfigWatcher) ReloadConfig() {
	cw.reloadConfig()
}

func (cw *ConfigWatcher) handleEvents(events <-chan fsnotify.Event, errs <-chan error) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Name != cw.envPath && filepath.Base(event.Name) != filepath.Base(cw.envPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// let the writer finish
			time.Sleep(watchDebounce)
			log.Info().Str("event", event.Op.String()).Msg("Detected .env file change")
			cw.reloadConfig()

		case err, ok := <-errs:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Config watcher error")

		case <-cw.stopChan:
			return
		}
	}
}

func (cw *ConfigWatcher) pollForChanges(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stat, err := os.Stat(cw.envPath)
			if err != nil {
				continue
			}
			cw.mu.Lock()
			changed := stat.ModTime().After(cw.lastModTime)
			if changed {
				cw.lastModTime = stat.ModTime()
			}
			cw.mu.Unlock()
			if changed {
				log.Info().Msg("Detected .env file change via polling")
				cw.reloadConfig()
			}

		case <-cw.stopChan:
			return
		}
	}
}

func (cw *ConfigWatcher) reloadConfig() {
	envMap, err := godotenv.Read(cw.envPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Error().Err(err).Str("path", cw.envPath).Msg("Failed to read .env file")
			return
		}
		envMap = map[string]string{}
	}

	cw.mu.Lock()
	var changes []string

	// the process environment keeps precedence over the file
	if !cw.config.EnvOverrides[EnvLogLevel] {
		newLevel := strings.ToLower(strings.Trim(strings.TrimSpace(envMap[EnvLogLevel]), "'\""))
		if newLevel == "" {
			newLevel = "info"
		}
		if newLevel != cw.config.LogLevel {
			cw.config.LogLevel = newLevel
			logging.SetGlobalLevel(newLevel)
			changes = append(changes, "log level "+newLevel)
		}
	}

	callback := cw.onReload
	cw.mu.Unlock()

	if len(changes) == 0 {
		log.Debug().Msg("No relevant changes detected in .env file")
		return
	}

	log.Info().
		Strs("changes", changes).
		Msg("Applied .env file changes to runtime config")

	if callback != nil {
		callback(cw.config)
	}
}

// LogLevel returns the currently applied log level.
func (cw *ConfigWatcher) LogLevel() string {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.config.LogLevel
}
