// Package envmerge implements the Environment Merger component of
// spec.md §4.6: a fixed safe default environment, overlaid by user-supplied
// variables, flattened to a NAME=VALUE array for execve.
package envmerge

// defaults are the safe baseline values present unless the user overrides
// them by name.
var defaults = map[string]string{
	"PATH": "/usr/bin:/bin:/usr/sbin:/sbin:/usr/local/bin",
	"HOME": "/root",
	"TERM": "xterm",
}

// Merge overlays user on top of defaults (user wins by name) and flattens
// the result to a "NAME=VALUE" array suitable for exec.Cmd.Env. An empty
// value in user yields "NAME=", not an absent key.
func Merge(user map[string]string) []string {
	merged := make(map[string]string, len(defaults)+len(user))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range user {
		merged[k] = v
	}

	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}

	return out
}
