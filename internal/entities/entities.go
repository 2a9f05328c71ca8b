// Package entities cross-references the entity library with the golden
// suites: which entities are exercised, which are not, and which suite
// expectations name an entity that does not exist.
package entities

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"
	"golang.org/x/text/cases"

	"github.com/ShayCichocki/askgate/pkg/models"
)

// Entity is one entry of the entity library.
type Entity struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	// Intents lists the intents the entity declares, when any.
	Intents []string `json:"intents,omitempty"`
}

// Usage counts how often suites expect an entity.
type Usage struct {
	ID       string   `json:"id"`
	Payloads int      `json:"payloads"`
	Suites   []string `json:"suites"`
}

// Unknown is an expected entity missing from the library.
type Unknown struct {
	ID        string   `json:"id"`
	Suites    []string `json:"suites"`
	Questions []string `json:"questions"`
}

// Report is the entity surface report.
type Report struct {
	Entities []Entity  `json:"entities"`
	Usage    []Usage   `json:"usage"`
	Unused   []string  `json:"unused"`
	Unknown  []Unknown `json:"unknown"`
}

// OK reports referential integrity: every suite entity exists.
func (r *Report) OK() bool { return len(r.Unknown) == 0 }

// LoadLibrary reads every *.yaml and *.yml file under dir. The id is the
// first top-level entity key, or the file stem when absent.
func LoadLibrary(dir string) ([]Entity, error) {
	var entities []Entity
	seen := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		e, err := loadEntity(path)
		if err != nil {
			return err
		}
		if prev, ok := seen[e.ID]; ok {
			return fmt.Errorf("entity %q defined twice: %s and %s", e.ID, prev, path)
		}
		seen[e.ID] = path
		entities = append(entities, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load entities from %s: %w", dir, err)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })
	return entities, nil
}

func loadEntity(path string) (Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entity{}, err
	}
	e := Entity{Path: path}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Entity{}, fmt.Errorf("%s: %w", path, err)
	}
	if len(doc.Content) > 0 && doc.Content[0].Kind == yaml.MappingNode {
		m := doc.Content[0]
		for i := 0; i+1 < len(m.Content); i += 2 {
			k, v := m.Content[i], m.Content[i+1]
			switch k.Value {
			case "entity":
				if e.ID == "" && v.Kind == yaml.ScalarNode {
					e.ID = strings.TrimSpace(v.Value)
				}
			case "intents":
				if v.Kind == yaml.SequenceNode {
					for _, item := range v.Content {
						if item.Kind == yaml.ScalarNode && strings.TrimSpace(item.Value) != "" {
							e.Intents = append(e.Intents, strings.TrimSpace(item.Value))
						}
					}
				}
			}
		}
	}
	if e.ID == "" {
		e.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return e, nil
}

// Build cross-references a loaded library with suites. Ids are matched
// case-insensitively.
func Build(library []Entity, suites []*models.Suite) *Report {
	fold := cases.Fold()
	known := make(map[string]string, len(library))
	for _, e := range library {
		known[fold.String(e.ID)] = e.ID
	}

	usage := make(map[string]*Usage)
	unknown := make(map[string]*Unknown)
	for _, s := range suites {
		for _, p := range s.Payloads {
			if p.ExpectedEntity == "" {
				continue
			}
			if id, ok := known[fold.String(p.ExpectedEntity)]; ok {
				u := usage[id]
				if u == nil {
					u = &Usage{ID: id}
					usage[id] = u
				}
				u.Payloads++
				u.Suites = appendUnique(u.Suites, s.Suite)
				continue
			}
			u := unknown[p.ExpectedEntity]
			if u == nil {
				u = &Unknown{ID: p.ExpectedEntity}
				unknown[p.ExpectedEntity] = u
			}
			u.Suites = appendUnique(u.Suites, s.Suite)
			u.Questions = append(u.Questions, p.Question)
		}
	}

	r := &Report{Entities: library}
	for _, e := range library {
		if u, ok := usage[e.ID]; ok {
			r.Usage = append(r.Usage, *u)
		} else {
			r.Unused = append(r.Unused, e.ID)
		}
	}
	sort.SliceStable(r.Usage, func(i, j int) bool {
		if r.Usage[i].Payloads != r.Usage[j].Payloads {
			return r.Usage[i].Payloads > r.Usage[j].Payloads
		}
		return r.Usage[i].ID < r.Usage[j].ID
	})
	for _, u := range unknown {
		r.Unknown = append(r.Unknown, *u)
	}
	sort.Slice(r.Unknown, func(i, j int) bool { return r.Unknown[i].ID < r.Unknown[j].ID })
	return r
}

// BuildReport loads the library under entitiesDir and runs Build.
func BuildReport(entitiesDir string, suites []*models.Suite) (*Report, error) {
	library, err := LoadLibrary(entitiesDir)
	if err != nil {
		return nil, err
	}
	return Build(library, suites), nil
}

// Render prints the report as plain text.
func (r *Report) Render(w io.Writer) {
	fmt.Fprintf(w, "entities: %d (used %d, unused %d, unknown %d)\n",
		len(r.Entities), len(r.Usage), len(r.Unused), len(r.Unknown))
	if len(r.Usage) > 0 {
		fmt.Fprintln(w, "\nusage:")
		for _, u := range r.Usage {
			fmt.Fprintf(w, "  %-32s %4d  %s\n", u.ID, u.Payloads, strings.Join(u.Suites, ", "))
		}
	}
	if len(r.Unused) > 0 {
		fmt.Fprintln(w, "\nunused:")
		for _, id := range r.Unused {
			fmt.Fprintf(w, "  %s\n", id)
		}
	}
	if len(r.Unknown) > 0 {
		fmt.Fprintln(w, "\nunknown (referenced by suites, missing from library):")
		for _, u := range r.Unknown {
			fmt.Fprintf(w, "  %-32s %d payloads in %s\n", u.ID, len(u.Questions), strings.Join(u.Suites, ", "))
		}
	}
}

func appendUnique(xs []string, s string) []string {
	for _, x := range xs {
		if x == s {
			return xs
		}
	}
	return append(xs, s)
}
