package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zots0127/marketadmin/pkg/logger"
)

// ConfigChangeCallback is called after a successful reload
type ConfigChangeCallback func(oldConfig, newConfig *Config)

// ConfigWatcher watches the configuration file and reloads it on change
type ConfigWatcher struct {
	configManager *ConfigManager
	watcher       *fsnotify.Watcher
	path          string
	debounceTime  time.Duration

	mu        sync.Mutex
	callbacks []ConfigChangeCallback
	timer     *time.Timer
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// NewConfigWatcher creates a watcher for the manager's current config file
func NewConfigWatcher(configManager *ConfigManager) (*ConfigWatcher, error) {
	path := configManager.ConfigPath()
	if path == "" {
		return nil, errors.New("no config path set")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// editors replace files on save, so the directory is watched
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", filepath.Dir(abs), err)
	}

	return &ConfigWatcher{
		configManager: configManager,
		watcher:       watcher,
		path:          abs,
		debounceTime:  500 * time.Millisecond,
		stopChan:      make(chan struct{}),
	}, nil
}

// SetDebounceTime sets how long the watcher waits for writes to settle
func (cw *ConfigWatcher) SetDebounceTime(duration time.Duration) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.debounceTime = duration
}

// AddCallback adds a configuration change callback
func (cw *ConfigWatcher) AddCallback(callback ConfigChangeCallback) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

// Start starts the watch loop
func (cw *ConfigWatcher) Start() {
	logger.Info("Starting config watcher", map[string]interface{}{"path": cw.path})
	go cw.watchLoop()
}

// Stop stops the watch loop and releases the file watcher
func (cw *ConfigWatcher) Stop() {
	cw.stopOnce.Do(func() {
		close(cw.stopChan)
		cw.mu.Lock()
		if cw.timer != nil {
			cw.timer.Stop()
		}
		cw.mu.Unlock()
		if err := cw.watcher.Close(); err != nil {
			logger.Error(err, "Error closing config watcher", nil)
		}
	})
}

func (cw *ConfigWatcher) watchLoop() {
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handleFileEvent(event)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			logger.Error(err, "Config watcher error", nil)

		case <-cw.stopChan:
			return
		}
	}
}

func (cw *ConfigWatcher) handleFileEvent(event fsnotify.Event) {
	if !cw.isWatchedFile(event.Name) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.timer = time.AfterFunc(cw.debounceTime, cw.triggerReload)
}

func (cw *ConfigWatcher) isWatchedFile(filename string) bool {
	abs, err := filepath.Abs(filename)
	if err != nil {
		return false
	}
	return abs == cw.path
}

func (cw *ConfigWatcher) triggerReload() {
	select {
	case <-cw.stopChan:
		return
	default:
	}

	oldConfig := cw.configManager.GetConfig()
	if err := cw.configManager.Reload(); err != nil {
		logger.Error(err, "Failed to reload configuration, keeping previous", map[string]interface{}{"path": cw.path})
		return
	}
	newConfig := cw.configManager.GetConfig()

	cw.mu.Lock()
	callbacks := append([]ConfigChangeCallback{}, cw.callbacks...)
	cw.mu.Unlock()

	for _, callback := range callbacks {
		callback(oldConfig, newConfig)
	}

	logger.Info("Configuration reloaded", map[string]interface{}{"path": cw.path})
}
