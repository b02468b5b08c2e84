package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/paulmach/orb"
)

// DefaultCenter is the regional default camera center (Basque Country).
var DefaultCenter = orb.Point{-2.616667, 42.983333}

// DefaultZoom is the camera zoom used when nothing has been persisted.
const DefaultZoom = 7

// DefaultPreferences returns the preferences used for an unknown key.
func DefaultPreferences() ViewPreferences {
	return ViewPreferences{Style: Day, Center: DefaultCenter, Zoom: DefaultZoom}
}

// PreferenceStore reads and writes view preferences by key.
type PreferenceStore interface {
	Load(key string) (ViewPreferences, error)
	Save(key string, prefs ViewPreferences) error
}

// FilePreferenceStore keeps preferences in a single JSON file in the data directory.
type FilePreferenceStore struct {
	dataDir string
	prefs   map[string]ViewPreferences
	mu      sync.RWMutex
	bus     *EventBus
}

// NewFilePreferenceStore creates a store backed by dataDir/preferences.json.
func NewFilePreferenceStore(dataDir string, bus *EventBus) *FilePreferenceStore {
	s := &FilePreferenceStore{
		dataDir: dataDir,
		prefs:   make(map[string]ViewPreferences),
		bus:     bus,
	}
	s.loadFromDisk()
	return s
}

// Load returns the preferences stored under key, or the defaults.
func (s *FilePreferenceStore) Load(key string) (ViewPreferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.prefs[key]; ok {
		return p, nil
	}
	return DefaultPreferences(), nil
}

// Save replaces the preferences stored under key.
func (s *FilePreferenceStore) Save(key string, prefs ViewPreferences) error {
	if key == "" {
		return errors.New("preference key is required")
	}
	if prefs.Style != Day && prefs.Style != Night {
		return fmt.Errorf("invalid style mode %q", prefs.Style)
	}

	s.mu.Lock()
	s.prefs[key] = prefs
	err := s.saveToDisk()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if s.bus != nil {
		s.bus.Publish(Event{Resource: ResourcePreferences, Action: ActionUpdated, ID: key})
	}
	return nil
}

func (s *FilePreferenceStore) configFile() string {
	return filepath.Join(s.dataDir, "preferences.json")
}

func (s *FilePreferenceStore) loadFromDisk() {
	data, err := os.ReadFile(s.configFile())
	if err != nil {
		return // File doesn't exist yet, start empty
	}

	var prefs map[string]ViewPreferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		return // Invalid JSON, start empty
	}
	s.prefs = prefs
}

func (s *FilePreferenceStore) saveToDisk() error {
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s.prefs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.configFile(), data, 0644)
}
