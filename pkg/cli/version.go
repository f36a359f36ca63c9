package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// VersionOutput is the JSON form of the version command.
type VersionOutput struct {
	Version string `json:"version"`
	Go      string `json:"go"`
	OS      string `json:"os"`
	Arch    string `json:"arch"`
}

func newVersionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show registry version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := VersionOutput{
				Version: opts.version,
				Go:      runtime.Version(),
				OS:      runtime.GOOS,
				Arch:    runtime.GOARCH,
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "dockai-registry %s (%s %s/%s)\n", out.Version, out.Go, out.OS, out.Arch)
			return err
		},
	}
}
