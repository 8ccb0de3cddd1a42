package sandbox

import "strings"

// PathAction is the verdict a PathRule carries.
type PathAction int

const (
	// PathDeny forbids access to a matching path.
	PathDeny PathAction = iota
	// PathAllow permits access to a matching path.
	PathAllow
)

// PathRule is an ordered (pattern, action) pair. A pattern ending in "/"
// matches any path with that prefix; otherwise it must match exactly.
type PathRule struct {
	Pattern string
	Action  PathAction
}

// defaultPathRules are the built-in rules, consulted only at file-access
// level >= 3 and only when no user rule matched.
var defaultPathRules = []PathRule{
	{"/etc/", PathAllow},
	{"/lib/", PathAllow},
	{"/usr/lib/", PathAllow},
	{"/opt/lib/", PathAllow},
	{"/usr/share/zoneinfo/", PathAllow},
	{"/usr/share/locale/", PathAllow},
	{"/dev/null", PathAllow},
	{"/dev/zero", PathAllow},
	{"/proc/meminfo", PathAllow},
	{"/proc/self/stat", PathAllow},
	{"/proc/self/exe", PathAllow},
}

// matchPathRule implements §4.2: compare r.Pattern against a prefix of p. A
// trailing-slash pattern also matches the directory itself with the slash
// stripped (e.g. pattern "/etc/" matches both "/etc" and "/etc/passwd").
func matchPathRule(r PathRule, p string) (PathAction, bool) {
	if strings.HasSuffix(r.Pattern, "/") {
		if strings.HasPrefix(p, r.Pattern) || p == r.Pattern[:len(r.Pattern)-1] {
			return r.Action, true
		}
		return 0, false
	}
	if p == r.Pattern {
		return r.Action, true
	}
	return 0, false
}

// matchPathRules scans rules in order and returns the first match's action.
// The second return is false if no rule matched (§4.2 "on mismatch, return
// DEFAULT").
func matchPathRules(rules []PathRule, p string) (PathAction, bool) {
	for _, r := range rules {
		if action, ok := matchPathRule(r, p); ok {
			return action, true
		}
	}
	return 0, false
}

// canonicalizePath implements §4.3 with a clean segment-stack algorithm,
// deliberately not reproducing box.c's documented off-by-two unwind bug
// (spec §9 "Ambiguous source behaviours"). It collapses repeated "/",
// resolves ".." against preceding segments (dropping a ".." at the root
// rather than producing one), and leaves single "." segments out, which is
// an equivalent relative path per §4.3's tolerance clause.
//
// hasUnresolvedDotDot reports whether the canonical form still starts with
// a ".." segment, e.g. "../../etc/passwd" given without enough leading
// segments to cancel out — such paths must be refused regardless of rules.
func canonicalizePath(p string) (canon string, hasUnresolvedDotDot bool) {
	abs := strings.HasPrefix(p, "/")

	var stack []string
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(stack) > 0 && stack[len(stack)-1] != ".." {
				stack = stack[:len(stack)-1]
			} else if !abs {
				stack = append(stack, "..")
			}
			// at root (abs == true, stack empty): drop the ".." silently.
		default:
			stack = append(stack, seg)
		}
	}

	for _, seg := range stack {
		if seg == ".." {
			hasUnresolvedDotDot = true
			break
		}
	}

	joined := strings.Join(stack, "/")
	if abs {
		canon = "/" + joined
	} else {
		canon = joined
	}
	return canon, hasUnresolvedDotDot
}
