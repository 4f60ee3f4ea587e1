package loader

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"pieces/internal/types"
)

// LoadInstance reads and parses a single YAML trigger instance file.
func LoadInstance(path string) (*types.InstanceDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading instance file %s: %w", path, err)
	}

	var inst types.InstanceDef
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&inst); err != nil {
		return nil, fmt.Errorf("parsing instance file %s: %w", path, err)
	}

	if inst.Name == "" {
		return nil, fmt.Errorf("instance file %s: missing required field 'name'", path)
	}
	if inst.Piece == "" || inst.Trigger == "" {
		return nil, fmt.Errorf("instance file %s: 'piece' and 'trigger' are required", path)
	}
	if inst.Props == nil {
		inst.Props = map[string]any{}
	}

	return &inst, nil
}

// LoadInstances reads all YAML instance files from a directory, recursively.
func LoadInstances(dir string) (map[string]*types.InstanceDef, error) {
	instances := make(map[string]*types.InstanceDef)
	paths := make(map[string]string)

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		inst, err := LoadInstance(path)
		if err != nil {
			return err
		}

		if prev, exists := paths[inst.Name]; exists {
			return fmt.Errorf("duplicate instance name %q in %s (first in %s)", inst.Name, path, prev)
		}
		instances[inst.Name] = inst
		paths[inst.Name] = path
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading instances from %s: %w", dir, err)
	}

	return instances, nil
}

// Sorted returns the instances ordered by name.
func Sorted(instances map[string]*types.InstanceDef) []*types.InstanceDef {
	out := make([]*types.InstanceDef, 0, len(instances))
	for _, inst := range instances {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
