package log

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/pflag"
)

// enumFlag is a string flag restricted to a fixed set of options. The first
// option is the default.
type enumFlag struct {
	options []string
	value   string
}

func newEnum(options ...string) *enumFlag {
	if len(options) == 0 {
		panic("enum flag needs at least one option")
	}
	return &enumFlag{options: options, value: options[0]}
}

func (f *enumFlag) String() string { return f.value }

func (f *enumFlag) Set(v string) error {
	if !slices.Contains(f.options, v) {
		return fmt.Errorf("must be one of %s", strings.Join(f.options, ", "))
	}
	f.value = v
	return nil
}

func (f *enumFlag) Type() string { return "string" }

func enumVar(flags *pflag.FlagSet, name string, options []string, usage string) {
	flags.Var(newEnum(options...), name, fmt.Sprintf("%s (one of %s)", usage, strings.Join(options, ", ")))
}

func enumGet(flags *pflag.FlagSet, name string) (string, error) {
	f := flags.Lookup(name)
	if f == nil {
		return "", fmt.Errorf("flag %s not registered", name)
	}
	return f.Value.String(), nil
}
