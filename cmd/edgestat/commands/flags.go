package commands

import (
	"slices"
	"strings"

	"github.com/juju/errors"
	"github.com/spf13/pflag"
)

// choiceFlag is a string flag restricted to a fixed set of values.
type choiceFlag struct {
	value   string
	choices []string
}

var _ pflag.Value = (*choiceFlag)(nil)

func newChoiceFlag(dflt string, choices ...string) *choiceFlag {
	return &choiceFlag{value: dflt, choices: choices}
}

func (f *choiceFlag) String() string {
	return f.value
}

func (f *choiceFlag) Set(v string) error {
	if !slices.Contains(f.choices, v) {
		return errors.NotValidf("%q, choose one of %s", v, strings.Join(f.choices, ", "))
	}
	f.value = v
	return nil
}

func (f *choiceFlag) Type() string {
	return "string"
}
