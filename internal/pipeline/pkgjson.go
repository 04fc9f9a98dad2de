package pipeline

import (
	"encoding/json"
	"sort"
)

// parsePackageJSON is the package.json sub-pipeline of §4.3 step 1: parse
// as a JSON object, then apply a semantic extractor parameterized by
// node_main_fields.
func parsePackageJSON(content []byte, nodeMainFields []string) (*PackageInfo, *PackageError) {
	var raw map[string]interface{}
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, &PackageError{Message: err.Error()}
	}

	info := &PackageInfo{
		MainEntries: make(map[string]string, len(nodeMainFields)),
	}
	if name, ok := raw["name"].(string); ok {
		info.Name = name
	}
	for _, field := range nodeMainFields {
		if v, ok := raw[field].(string); ok {
			info.MainEntries[field] = v
		}
	}
	if deps, ok := raw["dependencies"].(map[string]interface{}); ok {
		for dep := range deps {
			info.Dependencies = append(info.Dependencies, dep)
		}
		sort.Strings(info.Dependencies)
	}
	return info, nil
}
