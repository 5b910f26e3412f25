package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacklok/deskauth/pkg/versions"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the deskauth version",
		Run: func(_ *cobra.Command, _ []string) {
			info := versions.GetVersionInfo()
			fmt.Printf("deskauth %s (commit %s, built %s, %s, %s)\n",
				info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
		},
	}
}
