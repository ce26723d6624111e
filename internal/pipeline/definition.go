// Package pipeline chains conversation loops into ordered phases.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Role names with special handling.
const (
	RoleSupervisor  = "supervisor"
	RoleImplementer = "implementer"
	RoleDocs        = "docs"
	RoleAuditor     = "auditor"
)

// mutatingRoles may run with apply enabled. No phase setting can lift this.
var mutatingRoles = map[string]bool{
	RoleImplementer: true,
	RoleDocs:        true,
}

// nonBlockingRoles do not halt the pipeline when their loop fails.
var nonBlockingRoles = map[string]bool{
	RoleAuditor: true,
}

// ErrNotFound is returned when no declaration exists for a name.
var ErrNotFound = errors.New("pipeline not found")

var extensions = []string{".yaml", ".yml", ".toml"}

// Phase is one stage of a pipeline.
type Phase struct {
	Role     string `yaml:"role" toml:"role"`
	Prompt   string `yaml:"prompt" toml:"prompt"`
	ToolLoop bool   `yaml:"tool_loop" toml:"tool_loop"`
	// Apply overrides the global apply flag when set.
	Apply    *bool  `yaml:"apply" toml:"apply"`
	MaxSteps int    `yaml:"max_steps" toml:"max_steps"`
	Model    string `yaml:"model" toml:"model"`
}

// Definition is a parsed pipeline declaration.
type Definition struct {
	Name        string  `yaml:"name" toml:"name"`
	Description string  `yaml:"description" toml:"description"`
	Phases      []Phase `yaml:"phases" toml:"phases"`

	// Path is the file the definition was loaded from.
	Path string `yaml:"-" toml:"-"`
}

// IsMutating reports whether role may run with apply enabled.
func IsMutating(role string) bool {
	return mutatingRoles[role]
}

// IsNonBlocking reports whether a failing loop in role leaves the pipeline
// running.
func IsNonBlocking(role string) bool {
	return nonBlockingRoles[role]
}

// EffectiveApply resolves the apply mode of a phase: the global flag, then
// the phase override, then the role ceiling.
func EffectiveApply(global bool, p Phase) bool {
	apply := global
	if p.Apply != nil {
		apply = *p.Apply
	}
	return apply && IsMutating(p.Role)
}

// Parse decodes a declaration. format is "yaml" or "toml".
func Parse(data []byte, format string) (*Definition, error) {
	var def Definition
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("failed to parse pipeline yaml: %w", err)
		}
	case "toml":
		if _, err := toml.Decode(string(data), &def); err != nil {
			return nil, fmt.Errorf("failed to parse pipeline toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported pipeline format: %q", format)
	}
	return &def, nil
}

// LoadFile reads and validates a declaration. Prompts naming a file next to
// the declaration are replaced by the file content.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline: %w", err)
	}
	def, err := Parse(data, strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return nil, err
	}
	def.Path = path
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	baseDir := filepath.Dir(path)
	for i := range def.Phases {
		p := &def.Phases[i]
		ref := strings.TrimSpace(p.Prompt)
		if ref == "" || strings.ContainsAny(ref, "\n") {
			continue
		}
		full := filepath.Join(baseDir, ref)
		if info, err := os.Stat(full); err == nil && !info.IsDir() {
			content, err := os.ReadFile(full)
			if err != nil {
				return nil, fmt.Errorf("phase %d: failed to load prompt %q: %w", i+1, ref, err)
			}
			p.Prompt = string(content)
		}
	}

	if err := Validate(def); err != nil {
		return nil, err
	}
	return def, nil
}

// Find locates the declaration for name in dir.
func Find(dir, name string) (string, error) {
	for _, ext := range extensions {
		path := filepath.Join(dir, name+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Load finds and loads the declaration for name in dir.
func Load(dir, name string) (*Definition, error) {
	path, err := Find(dir, name)
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// List returns the declared pipeline names in dir, sorted. A missing
// directory has no pipelines.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list pipelines: %w", err)
	}
	seen := make(map[string]bool)
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if !isExtension(ext) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ext)
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func isExtension(ext string) bool {
	for _, e := range extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Validate checks a definition and reports every problem at once.
func Validate(def *Definition) error {
	var errs []string
	if len(def.Phases) == 0 {
		errs = append(errs, "at least one phase is required")
	}
	for i, p := range def.Phases {
		if strings.TrimSpace(p.Role) == "" {
			errs = append(errs, fmt.Sprintf("phase %d: role is required", i+1))
			continue
		}
		if p.Role == RoleSupervisor && p.ToolLoop {
			errs = append(errs, fmt.Sprintf("phase %d: supervisor cannot run a tool loop", i+1))
		}
		if p.MaxSteps < 0 {
			errs = append(errs, fmt.Sprintf("phase %d: max_steps must not be negative", i+1))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("pipeline %q validation errors:\n  %s", def.Name, strings.Join(errs, "\n  "))
	}
	return nil
}
