// Package flagx lets several components parse their own flags out of one
// shared os.Args without tripping over each other.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// Filter keeps only known flags from an argument list. Value flags take
// their value either inline (-d=dsn) or as the next argument (-d dsn).
// Switches never consume the next argument, so "-revoke-on-reuse -a :80"
// and "-revoke-on-reuse positional" both leave the following token alone.
type Filter struct {
	values   map[string]struct{}
	switches map[string]struct{}
}

func NewFilter(valueFlags []string, switches ...string) *Filter {
	f := &Filter{
		values:   make(map[string]struct{}, len(valueFlags)),
		switches: make(map[string]struct{}, len(switches)),
	}
	for _, v := range valueFlags {
		f.values[v] = struct{}{}
	}
	for _, s := range switches {
		f.switches[s] = struct{}{}
	}
	return f
}

func (f *Filter) known(name string) bool {
	_, v := f.values[name]
	_, s := f.switches[name]
	return v || s
}

// Apply returns the subset of args the filter knows, in their original
// order. The result is never nil.
func (f *Filter) Apply(args []string) []string {
	out := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			if f.known(strings.SplitN(arg, "=", 2)[0]) {
				out = append(out, arg)
			}
			continue
		}

		if _, ok := f.switches[arg]; ok {
			out = append(out, arg)
			continue
		}

		if _, ok := f.values[arg]; ok {
			out = append(out, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				out = append(out, args[i+1])
				i++
			}
		}
	}

	return out
}

// FilterArgs is NewFilter(allowedFlags).Apply(args).
func FilterArgs(args []string, allowedFlags []string) []string {
	return NewFilter(allowedFlags).Apply(args)
}

// ConfigFile returns the JSON config path given with -c or -config, or ""
// when neither is present.
func ConfigFile() string {
	var path string

	args := FilterArgs(os.Args[1:], []string{"-c", "-config"})

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&path, "config", "", "Path to config file")
	fs.StringVar(&path, "c", "", "Path to config file (short)")
	_ = fs.Parse(args)

	return path
}
