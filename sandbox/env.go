package sandbox

// EnvRule is (var, val) with three modes: a nil Val means inherit the
// parent's value if present; a non-nil empty Val means unset; anything else
// means set to that literal.
type EnvRule struct {
	Var string
	Val *string
}

// builtinEnvRules are always applied first, ahead of any user rule, the way
// box.c's setup_environment hardcodes LIBC_FATAL_STDERR_=1 before scanning
// user rules.
var builtinEnvRules = []EnvRule{
	{Var: "LIBC_FATAL_STDERR_", Val: strPtr("1")},
}

func strPtr(s string) *string { return &s }

// BuildEnvironment implements §4.5. parentEnv and userRules are both given
// in "VAR=VAL" form for parentEnv and as EnvRule for userRules; passEnviron
// selects whether the starting environment is empty or a copy of the
// parent's.
func BuildEnvironment(parentEnv []string, userRules []EnvRule, passEnviron bool) []string {
	parent := splitEnv(parentEnv)

	var env []string
	if passEnviron {
		for _, kv := range parentEnv {
			env = append(env, kv)
		}
	}

	rules := make([]EnvRule, 0, len(builtinEnvRules)+len(userRules))
	rules = append(rules, builtinEnvRules...)
	rules = append(rules, userRules...)

	for _, r := range rules {
		env = removeEnvVar(env, r.Var)
		switch {
		case r.Val == nil:
			if v, ok := parent[r.Var]; ok {
				env = append(env, r.Var+"="+v)
			}
		case *r.Val == "":
			// unset: already removed above.
		default:
			env = append(env, r.Var+"="+*r.Val)
		}
	}

	return env
}

func splitEnv(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, kv := range env {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				m[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return m
}

func removeEnvVar(env []string, name string) []string {
	out := env[:0]
	for _, kv := range env {
		if envKey(kv) == name {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func envKey(kv string) string {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i]
		}
	}
	return kv
}
