// Package flagx pre-filters os.Args so each config layer can parse only the
// flags it owns with its own FlagSet.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// FilterArgs keeps the allowed flags from args, in order, together with
// their values. "-f v", "-f=v", "--f v" and "--f=v" are all recognised.
//
// A flag listed in boolFlags is a switch: it never takes the following token
// as its value, so "-P -d dir" keeps "-P" alone.
func FilterArgs(args []string, allowedFlags []string, boolFlags ...string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}
	switches := make(map[string]struct{}, len(boolFlags))
	for _, f := range boolFlags {
		switches[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, _, hasValue := strings.Cut(arg, "=")
		name = normalize(name)

		if _, ok := allowed[name]; !ok {
			continue
		}
		filtered = append(filtered, arg)
		if hasValue {
			continue
		}
		if _, isSwitch := switches[name]; isSwitch {
			continue
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}
	return filtered
}

// normalize maps "--name" to "-name", the way package flag treats them.
func normalize(name string) string {
	if strings.HasPrefix(name, "--") {
		return name[1:]
	}
	return name
}

// JsonConfigFlags returns the config file path given with -c or -config,
// or "" when neither is present. Other arguments are ignored.
func JsonConfigFlags() string {
	var config string

	args := FilterArgs(os.Args[1:], []string{"-c", "-config"})

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&config, "config", "", "Path to config file")
	fs.StringVar(&config, "c", "", "Path to config file (short)")
	_ = fs.Parse(args)

	return config
}
