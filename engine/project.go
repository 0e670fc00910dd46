package wampEngine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"

	wampConfig "github.com/wamp3hub/wampytester/config"
)

type SubscriberRealm struct {
	Realm     string   `json:"realm"`
	RouterURL string   `json:"router_url"`
	Topics    []string `json:"topics"`
}

type PublisherProject struct {
	Scenarios    []*PublishRequest                  `json:"scenarios"`
	RealmConfigs map[string]*wampConfig.RealmConfig `json:"realm_configs"`
}

type SubscriberProject struct {
	Realms []SubscriberRealm `json:"realms"`
}

// Project is the saved state of a testing session
type Project struct {
	ID         string            `json:"id,omitempty" jsonschema:"format=uuid"`
	Publisher  PublisherProject  `json:"publisher"`
	Subscriber SubscriberProject `json:"subscriber"`
}

func NewProject() *Project {
	return &Project{
		ID: uuid.NewString(),
		Publisher: PublisherProject{
			Scenarios:    []*PublishRequest{},
			RealmConfigs: make(map[string]*wampConfig.RealmConfig),
		},
		Subscriber: SubscriberProject{Realms: []SubscriberRealm{}},
	}
}

func ProjectSchema() *jsonschema.Schema {
	return wampConfig.GenerateJSONSchema[Project]()
}

func ParseProject(data []byte) (*Project, error) {
	project := NewProject()
	project.ID = ""
	e := json.Unmarshal(data, project)
	if e != nil {
		return nil, newError(KindConfiguration, "", "", fmt.Errorf("invalid project: %w", e))
	}
	if project.Publisher.RealmConfigs == nil {
		project.Publisher.RealmConfigs = make(map[string]*wampConfig.RealmConfig)
	}
	_, e = project.Realms()
	if e != nil {
		return nil, e
	}
	return project, nil
}

func LoadProject(path string) (*Project, error) {
	data, e := os.ReadFile(path)
	if e != nil {
		return nil, newError(KindConfiguration, "", "", e)
	}
	return ParseProject(data)
}

// Save writes the project, assigning an ID to projects that have none
func (project *Project) Save(path string) error {
	if len(project.ID) == 0 {
		project.ID = uuid.NewString()
	}
	data, e := json.MarshalIndent(project, "", "    ")
	if e != nil {
		return e
	}
	e = os.MkdirAll(filepath.Dir(path), 0o755)
	if e != nil {
		return e
	}
	return os.WriteFile(path, data, 0o644)
}

// Realms converts realm_configs into a realms file
func (project *Project) Realms() (*wampConfig.RealmsFile, error) {
	realms := wampConfig.NewRealmsFile()
	for name, realm := range project.Publisher.RealmConfigs {
		if realm == nil {
			realm = new(wampConfig.RealmConfig)
		}
		e := realms.Add(name, realm.RouterURL, realm.Topics...)
		if e != nil {
			return nil, newError(KindConfiguration, name, "", e)
		}
	}
	return realms, nil
}

// Apply starts every subscription of the project and submits its scenarios.
// It returns how many scenarios were accepted.
func (project *Project) Apply(ctx context.Context, engine *Engine, callback SubscriptionCallback) (int, error) {
	realms, e := project.Realms()
	if e != nil {
		return 0, e
	}
	engine.LoadRealms(realms)
	var result []error
	for _, realm := range project.Subscriber.Realms {
		e := engine.StartSubscription(ctx, realm.Realm, realm.RouterURL, realm.Topics, callback)
		if e != nil {
			result = append(result, e)
		}
	}
	accepted := 0
	for _, request := range project.Publisher.Scenarios {
		e := engine.SubmitPublish(request)
		if e != nil {
			result = append(result, e)
			continue
		}
		accepted++
	}
	return accepted, errors.Join(result...)
}
