package main

import (
	"flag"
	"os"
	"strings"
)

// normalizeArgs reorders args so flags come before positional arguments.
// Go's flag package stops parsing at the first non-flag argument, which means
// "classify what is DNS --json" would send "--json" to the classifier.
func normalizeArgs(fs *flag.FlagSet, args []string) []string {
	// Bool flags don't take a value argument
	boolFlags := make(map[string]bool)
	fs.VisitAll(func(f *flag.Flag) {
		if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
			boolFlags[f.Name] = true
		}
	})
	for _, h := range []string{"h", "help"} {
		if fs.Lookup(h) == nil {
			boolFlags[h] = true
		}
	}

	var flags, positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]

		// "--" terminates flag processing
		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}

		if strings.HasPrefix(arg, "-") && arg != "-" {
			name := strings.TrimLeft(arg, "-")
			if key := strings.SplitN(name, "=", 2)[0]; fs.Lookup(key) == nil && key != "h" && key != "help" {
				// Question text can start with a dash ("-5 squared?").
				positional = append(positional, arg)
				continue
			}
			flags = append(flags, arg)

			if strings.Contains(name, "=") {
				continue
			}
			if !boolFlags[name] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, arg)
		}
	}
	return append(flags, positional...)
}

// formatPath shortens a path by replacing the home directory with ~
func formatPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == home {
		return "~"
	}
	if strings.HasPrefix(path, home+string(os.PathSeparator)) {
		return "~" + path[len(home):]
	}
	return path
}
