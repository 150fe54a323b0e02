// Package versioncmder provides the version command shared by strata binaries.
package versioncmder

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/strata/pkg/cliui"
	"github.com/papercomputeco/strata/pkg/utils"
)

type VersionCommander struct {
	out   io.Writer
	short bool
}

func NewVersionCmd() *cobra.Command {
	cmder := &VersionCommander{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the strata version",
		Long:  "Print the strata version, the commit it was built from and the Go runtime.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.out = cmd.OutOrStdout()
			return cmder.run()
		},
	}
	cmd.Flags().BoolVar(&cmder.short, "short", false, "Print only the version")

	return cmd
}

func (c *VersionCommander) run() error {
	if c.short {
		_, err := fmt.Fprintln(c.out, utils.Version)
		return err
	}

	cliui.Table(c.out, [][]string{
		{"strata", utils.Version},
		{"commit", utils.Sha},
		{"built", utils.Buildtime},
		{"go", fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)},
	})
	return nil
}
