package config

import "fmt"

// Merge combines two configs where overlay takes precedence over base.
// This implements the hierarchical merge semantics:
//   - version: must agree if both declare it (non-zero); fatal error on mismatch
//   - backend: an overlay that declares a type replaces the base backend
//   - path, ambiguity, probe: overlay wins when set
//   - variables: deep merge, overlay keys win
//   - jobs: same name in overlay replaces base entry entirely
//   - type_definitions: merge by source type
func Merge(base, overlay *Config) (*Config, error) {
	if base == nil {
		return overlay, nil
	}
	if overlay == nil {
		return base, nil
	}

	result := &Config{}

	if err := mergeVersion(base.Version, overlay.Version, &result.Version); err != nil {
		return nil, err
	}

	result.Backend = base.Backend
	if overlay.Backend.Type != "" {
		result.Backend = overlay.Backend
	}

	result.Path = base.Path
	if overlay.Path.Delimiter != "" {
		result.Path.Delimiter = overlay.Path.Delimiter
	}
	if overlay.Path.CaseSensitive != nil {
		result.Path.CaseSensitive = overlay.Path.CaseSensitive
	}

	result.Ambiguity = base.Ambiguity
	if overlay.Ambiguity != "" {
		result.Ambiguity = overlay.Ambiguity
	}

	result.Probe = base.Probe
	if overlay.Probe != nil {
		result.Probe = overlay.Probe
	}

	result.Variables = mergeVariables(base.Variables, overlay.Variables)
	result.Jobs = mergeNamedJobs(base.Jobs, overlay.Jobs)
	result.TypeDefinitions = mergeTypeDefs(base.TypeDefinitions, overlay.TypeDefinitions)

	return result, nil
}

// MergeAll merges multiple configs in order (lowest precedence first).
// Returns an error if any version mismatch is found.
func MergeAll(configs []*Config) (*Config, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("no configs to merge")
	}

	result := configs[0]
	for i := 1; i < len(configs); i++ {
		var err error
		result, err = Merge(result, configs[i])
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func mergeVersion(base, overlay int, out *int) error {
	switch {
	case base == 0 && overlay == 0:
		*out = 0 // neither declares; validation will catch this
	case base == 0:
		*out = overlay
	case overlay == 0:
		*out = base
	case base == overlay:
		*out = base
	default:
		return fmt.Errorf("config version mismatch: one layer declares version %d, another declares version %d — all config layers must agree on version", base, overlay)
	}
	return nil
}

func mergeVariables(base, overlay map[string]string) map[string]string {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}

	result := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range overlay {
		result[k] = v // overlay wins
	}
	return result
}

func mergeNamedJobs(base, overlay []Job) []Job {
	if len(base) == 0 {
		return overlay
	}
	if len(overlay) == 0 {
		return base
	}

	overlayNames := make(map[string]bool, len(overlay))
	for _, j := range overlay {
		overlayNames[j.Name] = true
	}

	var result []Job
	for _, j := range base {
		if !overlayNames[j.Name] {
			result = append(result, j)
		}
	}

	return append(result, overlay...)
}

func mergeTypeDefs(base, overlay []TypeDefinition) []TypeDefinition {
	if len(base) == 0 {
		return overlay
	}
	if len(overlay) == 0 {
		return base
	}

	overlaySources := make(map[string]bool, len(overlay))
	for _, td := range overlay {
		overlaySources[td.Source] = true
	}

	var result []TypeDefinition
	for _, td := range base {
		if !overlaySources[td.Source] {
			result = append(result, td)
		}
	}

	return append(result, overlay...)
}
