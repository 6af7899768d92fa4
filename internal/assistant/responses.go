package assistant

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Responses holds the canned reply templates keyed by intent.
type Responses struct {
	Greeting         string `yaml:"greeting"`
	Help             string `yaml:"help"`
	Unknown          string `yaml:"unknown"`
	NoExperts        string `yaml:"no_experts"`
	NoSuggestions    string `yaml:"no_suggestions"`
	NoKnowledge      string `yaml:"no_knowledge"`
	ExpertsFound     string `yaml:"experts_found"`
	SuggestionsFound string `yaml:"suggestions_found"`
	KnowledgeFound   string `yaml:"knowledge_found"`
}

// DefaultResponses covers a missing or partial config file.
func DefaultResponses() Responses {
	return Responses{
		Greeting:         "Hello! I can find experts, suggest connections, and search the knowledge base.",
		Help:             "Try: \"find an expert in react\", \"suggest connections\", or \"search articles about testing\".",
		Unknown:          "I did not catch that. Ask me to find an expert, suggest connections, or search knowledge.",
		NoExperts:        "No experts matched that topic.",
		NoSuggestions:    "No overlapping expertise found right now.",
		NoKnowledge:      "No knowledge items matched that topic.",
		ExpertsFound:     "Here is who I found:",
		SuggestionsFound: "These people share expertise and might want to connect:",
		KnowledgeFound:   "Here is what I found in the knowledge base:",
	}
}

// ResponseStore serves the current reply set and hot-reloads the YAML file
// when it changes on disk.
type ResponseStore struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	stopCh  chan struct{}

	mu      sync.RWMutex
	current Responses
}

// NewResponseStore loads the file and starts watching it. A missing file is
// not fatal: defaults apply until the file shows up.
func NewResponseStore(path string, logger *zap.Logger) (*ResponseStore, error) {
	rs := &ResponseStore{
		path:    path,
		logger:  logger,
		stopCh:  make(chan struct{}),
		current: DefaultResponses(),
	}

	if loaded, err := loadResponses(path); err != nil {
		logger.Warn("assistant responses not loaded, using defaults", zap.String("path", path), zap.Error(err))
	} else {
		rs.current = loaded
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	rs.watcher = watcher

	// Watch the directory, not just the file: editors and config rollouts
	// replace the file with a rename, which drops a file-level watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch config dir: %w", err)
	}

	go rs.watchLoop()
	return rs, nil
}

func (rs *ResponseStore) watchLoop() {
	for {
		select {
		case <-rs.stopCh:
			return
		case event, ok := <-rs.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(rs.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			loaded, err := loadResponses(rs.path)
			if err != nil {
				rs.logger.Warn("assistant responses reload failed", zap.Error(err))
				continue
			}
			rs.mu.Lock()
			rs.current = loaded
			rs.mu.Unlock()
			rs.logger.Info("assistant responses reloaded", zap.String("path", rs.path))
		case err, ok := <-rs.watcher.Errors:
			if !ok {
				return
			}
			rs.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

// Current returns the active reply set.
func (rs *ResponseStore) Current() Responses {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.current
}

// Close stops the watcher.
func (rs *ResponseStore) Close() error {
	close(rs.stopCh)
	return rs.watcher.Close()
}

func loadResponses(path string) (Responses, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return Responses{}, fmt.Errorf("read responses file: %w", err)
	}
	loaded := DefaultResponses()
	if err := yaml.Unmarshal(contents, &loaded); err != nil {
		return Responses{}, fmt.Errorf("parse responses file: %w", err)
	}
	return loaded, nil
}
