// Package prompts loads the embedded per-operation prompt templates.
package prompts

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templatesFS embed.FS

type Prompt struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Render substitutes {name} placeholders in the user template.
func (p Prompt) Render(vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(p.User)
}

// Catalog maps operation names to prompts.
type Catalog map[string]Prompt

// Load reads the embedded templates.
func Load() (Catalog, error) {
	return LoadFS(templatesFS, "templates")
}

// LoadFS reads every *.yaml file under dir; the file stem is the prompt name.
func LoadFS(fsys fs.FS, dir string) (Catalog, error) {
	paths, err := fs.Glob(fsys, path.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("glob prompt dir: %w", err)
	}

	catalog := make(Catalog, len(paths))
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read prompt file: %w", err)
		}

		var prompt Prompt
		if err := yaml.Unmarshal(data, &prompt); err != nil {
			return nil, fmt.Errorf("parse prompt %s: %w", p, err)
		}
		if strings.TrimSpace(prompt.System) == "" {
			return nil, fmt.Errorf("prompt %s: system is empty", p)
		}
		prompt.System = strings.TrimSpace(prompt.System)

		name := strings.TrimSuffix(path.Base(p), path.Ext(p))
		catalog[name] = prompt
	}
	return catalog, nil
}

// Get returns the named prompt or an error naming the missing operation.
func (c Catalog) Get(name string) (Prompt, error) {
	p, ok := c[name]
	if !ok {
		return Prompt{}, fmt.Errorf("no prompt for %q", name)
	}
	return p, nil
}
