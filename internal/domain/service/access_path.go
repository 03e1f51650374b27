package service

import "strings"

// HasAccess reports whether one of paths equals domainPath or is an ancestor of it.
// Paths are slash separated chains of domain names from the root.
func HasAccess(paths []string, domainPath string) bool {
	target := strings.Trim(domainPath, "/")
	if target == "" {
		return false
	}
	for _, p := range paths {
		p = strings.Trim(p, "/")
		if p == "" {
			continue
		}
		if p == target || strings.HasPrefix(target, p+"/") {
			return true
		}
	}
	return false
}

// PathMatcher returns a predicate matching domainPath and every path below it.
func PathMatcher(domainPath string) func(string) bool {
	target := strings.Trim(domainPath, "/")
	return func(p string) bool {
		p = strings.Trim(p, "/")
		return p == target || strings.HasPrefix(p, target+"/")
	}
}
