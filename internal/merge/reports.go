package merge

import (
	"reflect"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/alpsla/codequal/internal/types"
)

// mergeCoverage takes the per-key maximum of two metric maps. Coverage only
// ever improves as later iterations observe more of the repository, so the
// highest reported value stands.
func mergeCoverage(existing, incoming map[string]float64) map[string]float64 {
	if incoming == nil {
		return existing
	}
	out := make(map[string]float64, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range incoming {
		if current, ok := out[k]; !ok || v > current {
			out[k] = v
		}
	}
	return out
}

// mergeDependencies merges dependency reports. Counts take the maximum;
// the outdated, vulnerable, and deprecated lists merge keyed by dependency
// name with non-empty-wins reconciliation and a semver-aware pick for the
// latest known version.
func mergeDependencies(existing, incoming *types.DependencyReport) *types.DependencyReport {
	if incoming == nil {
		return existing
	}
	out := &types.DependencyReport{}
	if existing != nil {
		*out = *existing
	}
	if incoming.Total > out.Total {
		out.Total = incoming.Total
	}
	if incoming.Direct > out.Direct {
		out.Direct = incoming.Direct
	}
	out.Outdated = mergeDependencyList(out.Outdated, incoming.Outdated)
	out.Vulnerable = mergeDependencyList(out.Vulnerable, incoming.Vulnerable)
	out.Deprecated = mergeDependencyList(out.Deprecated, incoming.Deprecated)
	if out.IsZero() {
		return nil
	}
	return out
}

func mergeDependencyList(existing, incoming []types.DependencyInfo) []types.DependencyInfo {
	if len(incoming) == 0 {
		return existing
	}
	out := append([]types.DependencyInfo(nil), existing...)
	byName := make(map[string]int, len(out))
	for i, entry := range out {
		byName[entry.Name] = i
	}

	for _, in := range incoming {
		i, ok := byName[in.Name]
		if !ok {
			out = append(out, in)
			byName[in.Name] = len(out) - 1
			continue
		}
		entry := &out[i]
		if in.Current != "" {
			entry.Current = in.Current
		}
		entry.Latest = pickLatestVersion(entry.Latest, in.Latest)
		if in.Severity != "" {
			entry.Severity = in.Severity
		}
		if in.Advisory != "" {
			entry.Advisory = in.Advisory
		}
	}
	return out
}

// pickLatestVersion chooses between two "latest version" observations.
// When both parse as semver the higher one wins; otherwise the incoming
// non-empty observation wins as the fresher sighting.
func pickLatestVersion(existing, incoming string) string {
	if incoming == "" {
		return existing
	}
	if existing == "" {
		return incoming
	}
	ev := canonicalSemver(existing)
	iv := canonicalSemver(incoming)
	if semver.IsValid(ev) && semver.IsValid(iv) {
		if semver.Compare(iv, ev) >= 0 {
			return incoming
		}
		return existing
	}
	return incoming
}

func canonicalSemver(version string) string {
	v := strings.TrimSpace(version)
	if v == "" {
		return v
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// mergeBreakingChanges merges the breaking-change list keyed by title.
func mergeBreakingChanges(existing, incoming []types.BreakingChange) []types.BreakingChange {
	if len(incoming) == 0 {
		return existing
	}
	out := append([]types.BreakingChange(nil), existing...)
	byTitle := make(map[string]int, len(out))
	for i, change := range out {
		byTitle[change.Title] = i
	}

	for _, in := range incoming {
		i, ok := byTitle[in.Title]
		if !ok {
			out = append(out, in)
			byTitle[in.Title] = len(out) - 1
			continue
		}
		change := &out[i]
		if in.Description != "" {
			change.Description = in.Description
		}
		if in.File != "" {
			change.File = in.File
		}
		if in.Migration != "" {
			change.Migration = in.Migration
		}
	}
	return out
}

// deepMerge recursively merges two JSON-shaped maps. Nested maps merge
// key-by-key, arrays append elements not already present, and on scalar or
// mixed-kind conflicts the incoming value wins. The result is always a
// fresh map; neither input is modified.
func deepMerge(existing, incoming map[string]any) map[string]any {
	if incoming == nil {
		return existing
	}
	out := make(map[string]any, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}

	for k, inVal := range incoming {
		exVal, present := out[k]
		if !present {
			out[k] = deepCopyValue(inVal)
			continue
		}

		exMap, exIsMap := exVal.(map[string]any)
		inMap, inIsMap := inVal.(map[string]any)
		if exIsMap && inIsMap {
			out[k] = deepMerge(exMap, inMap)
			continue
		}

		exArr, exIsArr := exVal.([]any)
		inArr, inIsArr := inVal.([]any)
		if exIsArr && inIsArr {
			out[k] = mergeArrays(exArr, inArr)
			continue
		}

		out[k] = deepCopyValue(inVal)
	}
	return out
}

// mergeArrays appends incoming elements that are not already present, so
// repeating a merge cannot grow an array twice.
func mergeArrays(existing, incoming []any) []any {
	out := append([]any(nil), existing...)
	for _, v := range incoming {
		if !containsValue(out, v) {
			out = append(out, deepCopyValue(v))
		}
	}
	return out
}

func containsValue(values []any, candidate any) bool {
	for _, v := range values {
		if reflect.DeepEqual(v, candidate) {
			return true
		}
	}
	return false
}

func deepCopyValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			out[k] = deepCopyValue(e)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
