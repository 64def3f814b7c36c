package controller

import (
	"sort"

	k8slabels "k8s.io/apimachinery/pkg/labels"
)

// spreadLabels picks the namespace labels whose key is one of keys.
func spreadLabels(nsLabels map[string]string, keys []string) map[string]string {
	out := map[string]string{}
	for _, k := range keys {
		if v, ok := nsLabels[k]; ok {
			out[k] = v
		}
	}
	return out
}

// differingKeys returns the sorted keys of desired that are missing from
// current or set to another value.
func differingKeys(current, desired map[string]string) []string {
	var keys []string
	for k, v := range desired {
		if cur, ok := current[k]; !ok || cur != v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// applyLabels overwrites keys with their desired value. Labels outside keys are left alone.
func applyLabels(current, desired map[string]string, keys []string) map[string]string {
	if current == nil {
		current = make(map[string]string, len(keys))
	}
	for _, k := range keys {
		current[k] = desired[k]
	}
	return current
}

func formatLabels(labels map[string]string, keys []string) string {
	return k8slabels.Set(spreadLabels(labels, keys)).String()
}
