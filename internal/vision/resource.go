package vision

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MeKo-Tech/qrvision/internal/camera"
)

// API identifies a resource contract, e.g. rdk:service:vision.
type API struct {
	Namespace string
	Type      string
	Subtype   string
}

func (a API) String() string {
	return a.Namespace + ":" + a.Type + ":" + a.Subtype
}

// ParseAPI parses a namespace:type:subtype triple.
func ParseAPI(s string) (API, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return API{}, fmt.Errorf("invalid api %q: want namespace:type:subtype", s)
	}
	return API{Namespace: parts[0], Type: parts[1], Subtype: parts[2]}, nil
}

// ModelFamily groups models published together.
type ModelFamily struct {
	Namespace string
	Name      string
}

func (f ModelFamily) String() string { return f.Namespace + ":" + f.Name }

// Model identifies one implementation of an API.
type Model struct {
	Family ModelFamily
	Name   string
}

func (m Model) String() string { return m.Family.String() + ":" + m.Name }

// ParseModel parses a namespace:family:name triple.
func ParseModel(s string) (Model, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Model{}, fmt.Errorf("invalid model %q: want namespace:family:name", s)
	}
	for _, p := range parts {
		if p == "" {
			return Model{}, fmt.Errorf("invalid model %q: empty component", s)
		}
	}
	return Model{Family: ModelFamily{Namespace: parts[0], Name: parts[1]}, Name: parts[2]}, nil
}

// Well-known APIs.
var (
	APIVision = API{Namespace: "rdk", Type: "service", Subtype: "vision"}
	APICamera = API{Namespace: "rdk", Type: "component", Subtype: "camera"}
)

// ResourceName names a resource of an API.
type ResourceName struct {
	API  API
	Name string
}

func (n ResourceName) String() string { return n.API.String() + "/" + n.Name }

// ResourceNotFoundError is returned when a named dependency is missing.
type ResourceNotFoundError struct {
	Name ResourceName
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("resource %q not found", e.Name.String())
}

// IsNotFound reports whether err is a ResourceNotFoundError.
func IsNotFound(err error) bool {
	var nf *ResourceNotFoundError
	return errors.As(err, &nf)
}

// ResourceConfig is the configuration of one service instance.
type ResourceConfig struct {
	Name       string
	API        API
	Model      Model
	Attributes map[string]any
	DependsOn  []string
}

// Dependencies are the cameras a service may use, keyed by name.
type Dependencies map[string]camera.Camera

// Camera resolves a camera by name.
func (d Dependencies) Camera(name string) (camera.Camera, error) {
	if cam, ok := d[name]; ok && cam != nil {
		return cam, nil
	}
	return nil, &ResourceNotFoundError{Name: ResourceName{API: APICamera, Name: name}}
}

// Names returns the sorted dependency names.
func (d Dependencies) Names() []string {
	names := make([]string, 0, len(d))
	for n := range d {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
