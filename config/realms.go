// Package wampConfig loads the realms file and the tool settings.
package wampConfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
)

var ErrorInvalidRealms = errors.New("InvalidRealms")

type RealmConfig struct {
	RouterURL string   `json:"router_url" jsonschema:"description=router endpoint, ws/wss/tcp/unix"`
	Topics    []string `json:"topics"`
}

// RealmsFile is the canonical object form {"realms": {"<name>": {...}}}
type RealmsFile struct {
	Realms map[string]*RealmConfig `json:"realms"`
}

type namedRealm struct {
	Realm     string   `json:"realm"`
	RouterURL string   `json:"router_url"`
	Topics    []string `json:"topics"`
}

func NewRealmsFile() *RealmsFile {
	return &RealmsFile{Realms: make(map[string]*RealmConfig)}
}

// ValidateRouterURL accepts ws, wss, tcp and unix endpoints
func ValidateRouterURL(routerURL string) error {
	address, e := url.Parse(routerURL)
	if e != nil {
		return fmt.Errorf("%w: router URL %q: %v", ErrorInvalidRealms, routerURL, e)
	}
	switch address.Scheme {
	case "ws", "wss", "tcp", "unix":
		return nil
	}
	return fmt.Errorf("%w: router URL %q has unsupported scheme", ErrorInvalidRealms, routerURL)
}

// Add merges a realm, equal names collapse into one entry.
// The latest non-empty router URL wins, topics keep first-seen order.
func (file *RealmsFile) Add(name string, routerURL string, topics ...string) error {
	if len(name) == 0 {
		return fmt.Errorf("%w: empty realm name", ErrorInvalidRealms)
	}
	if len(routerURL) > 0 {
		e := ValidateRouterURL(routerURL)
		if e != nil {
			return e
		}
	}
	realm, found := file.Realms[name]
	if !found {
		realm = &RealmConfig{Topics: []string{}}
		file.Realms[name] = realm
	}
	if len(routerURL) > 0 {
		realm.RouterURL = routerURL
	}
	for _, topic := range topics {
		if len(topic) == 0 {
			return fmt.Errorf("%w: empty topic in realm %s", ErrorInvalidRealms, name)
		}
		if !contains(realm.Topics, topic) {
			realm.Topics = append(realm.Topics, topic)
		}
	}
	return nil
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

// Names lists realm names in lexical order
func (file *RealmsFile) Names() []string {
	names := make([]string, 0, len(file.Realms))
	for name := range file.Realms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (file *RealmsFile) Lookup(name string) (*RealmConfig, bool) {
	realm, found := file.Realms[name]
	return realm, found
}

// ParseRealms accepts both the object and the array shape
func ParseRealms(data []byte) (*RealmsFile, error) {
	var envelope struct {
		Realms json.RawMessage `json:"realms"`
	}
	e := json.Unmarshal(data, &envelope)
	if e != nil {
		return nil, fmt.Errorf("%w: %v", ErrorInvalidRealms, e)
	}
	raw := bytes.TrimSpace(envelope.Realms)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("%w: missing \"realms\"", ErrorInvalidRealms)
	}

	result := NewRealmsFile()
	switch raw[0] {
	case '{':
		var object map[string]*RealmConfig
		e = json.Unmarshal(raw, &object)
		if e != nil {
			return nil, fmt.Errorf("%w: %v", ErrorInvalidRealms, e)
		}
		for name, realm := range object {
			if realm == nil {
				realm = new(RealmConfig)
			}
			e = result.Add(name, realm.RouterURL, realm.Topics...)
			if e != nil {
				return nil, e
			}
		}
	case '[':
		var list []namedRealm
		e = json.Unmarshal(raw, &list)
		if e != nil {
			return nil, fmt.Errorf("%w: %v", ErrorInvalidRealms, e)
		}
		for _, realm := range list {
			e = result.Add(realm.Realm, realm.RouterURL, realm.Topics...)
			if e != nil {
				return nil, e
			}
		}
	default:
		return nil, fmt.Errorf("%w: \"realms\" must be an object or an array", ErrorInvalidRealms)
	}
	return result, nil
}

func LoadRealms(path string) (*RealmsFile, error) {
	data, e := os.ReadFile(path)
	if e != nil {
		return nil, fmt.Errorf("reading realms file: %w", e)
	}
	return ParseRealms(data)
}

// Marshal renders the canonical object shape
func (file *RealmsFile) Marshal() ([]byte, error) {
	return json.MarshalIndent(file, "", "    ")
}

func (file *RealmsFile) Save(path string) error {
	data, e := file.Marshal()
	if e != nil {
		return e
	}
	e = os.MkdirAll(filepath.Dir(path), 0o755)
	if e != nil {
		return fmt.Errorf("creating realms directory: %w", e)
	}
	return os.WriteFile(path, data, 0o644)
}
