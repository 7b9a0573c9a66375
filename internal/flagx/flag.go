// Package flagx lets several independent flag sets share one command line.
// Each consumer picks out the flags it owns and parses only those, so flags
// meant for another consumer never trip an "undefined flag" error.
package flagx

import (
	"flag"
	"io"
	"strings"
)

// flagName strips the leading dashes of a flag and anything from '=' on.
// ok is false for arguments that are not flags.
func flagName(arg string) (name string, ok bool) {
	if len(arg) < 2 || arg[0] != '-' {
		return "", false
	}
	name = strings.TrimLeft(arg, "-")
	if i := strings.IndexByte(name, '='); i >= 0 {
		name = name[:i]
	}
	return name, name != ""
}

// FilterArgs keeps the arguments naming one of names, plus a separate value
// following each of them. Names are given without dashes, and "-x" matches
// "--x" like the flag package does. A value that starts with '-' is not
// taken. Scanning stops at "--".
func FilterArgs(args []string, names ...string) []string {
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[strings.TrimLeft(n, "-")] = true
	}

	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		name, ok := flagName(arg)
		if !ok || !keep[name] {
			continue
		}
		out = append(out, arg)
		if strings.Contains(arg, "=") {
			continue
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			out = append(out, args[i+1])
			i++
		}
	}
	return out
}

// ConfigFile returns the JSON config path given by -c or -config in args,
// or "" when neither is present. The last occurrence wins.
func ConfigFile(args []string) string {
	var path string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "path of the JSON config file")
	fs.StringVar(&path, "c", "", "path of the JSON config file (short)")
	_ = fs.Parse(FilterArgs(args, "c", "config"))

	return path
}
