// version.go implements the 'seqstress version' command.
package main

import (
	"fmt"
	"io"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/kolkov/seqlock/seqlock"
)

// versionCommand prints build information and, with -require, fails unless
// the linked seqlock package satisfies the requirement.
//
// Example:
//
//	seqstress version
//	seqstress version --require v0.1.0
func versionCommand(args []string, w io.Writer) error {
	fs := gnuflag.NewFlagSet("version", gnuflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	required := fs.String("require", "", "minimum seqlock version")
	if err := fs.Parse(true, args); err != nil {
		return errors.NotValidf("flags: %v", err)
	}

	info := seqlock.GetInfo()
	fmt.Fprintf(w, "seqstress version %s\n", info.Version)
	fmt.Fprintf(w, "algorithm: %s\n", info.Algorithm)
	fmt.Fprintf(w, "race build: %v\n", info.RaceBuild)

	if *required != "" {
		if err := seqlock.Compatible(*required); err != nil {
			return errors.Annotatef(err, "--require %s", *required)
		}
	}
	return nil
}
