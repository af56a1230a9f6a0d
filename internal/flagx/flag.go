// Package flagx picks flags out of a raw argument list so they can be
// handed to a child process.
package flagx

import "strings"

// FilterArgs returns the arguments of args that belong to one of the named
// flags, in their original order. Names are given without dashes; a
// one-letter name matches "-x", longer names match "--name".
//
// Both "--name=value" and "--name value" are recognised. In the second form
// the following argument is taken as the value unless it starts with a
// dash, so only flags that take a value should be listed. Positional
// arguments and every other flag are dropped.
func FilterArgs(args []string, names []string) []string {
	allowed := make(map[string]struct{}, len(names))
	for _, n := range names {
		allowed[dashed(n)] = struct{}{}
	}

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		if !strings.HasPrefix(arg, "-") {
			continue
		}

		if name, _, ok := strings.Cut(arg, "="); ok {
			if _, keep := allowed[name]; keep {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, keep := allowed[arg]; !keep {
			continue
		}
		filtered = append(filtered, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}

	return filtered
}

func dashed(name string) string {
	if len(name) == 1 {
		return "-" + name
	}
	return "--" + name
}
