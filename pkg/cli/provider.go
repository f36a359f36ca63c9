package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dock-ai/registry/pkg/models"
	"github.com/dock-ai/registry/pkg/services"
)

// CreatedProvider is the JSON form of provider create and rotate-key. The API
// key is only ever shown here.
type CreatedProvider struct {
	Provider *models.Provider `json:"provider,omitempty"`
	ID       string           `json:"id"`
	APIKey   string           `json:"api_key"`
}

func newProviderCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Onboard providers and manage their flags and API keys",
	}
	cmd.AddCommand(
		newProviderCreateCmd(opts),
		newProviderFlagCmd(opts, "trust", "Mark a provider as trusted (curated)", services.ProviderAdminService.SetTrusted),
		newProviderFlagCmd(opts, "verify", "Mark a provider's onboarding as complete", services.ProviderAdminService.SetVerified),
		newProviderRotateKeyCmd(opts),
		newProviderListCmd(opts),
	)
	return cmd
}

func newProviderCreateCmd(opts *rootOptions) *cobra.Command {
	var in services.NewProviderInput
	var capabilities string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a provider and print its API key",
		Long: `Create a provider and print its API key. The key is shown once; only its
hash is stored. Providers can sync only once verified (--verified or
"provider verify").`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Capabilities = splitList(capabilities)

			admin, cleanup, err := opts.newAdmin(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			provider, key, err := admin.Create(cmd.Context(), in)
			if err != nil {
				return err
			}

			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), CreatedProvider{Provider: provider, ID: provider.ID, APIKey: key})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created provider %s (%s)\n", provider.ID, provider.Endpoint)
			fmt.Fprintf(out, "API key: %s\n", key)
			fmt.Fprintln(out, "Store it now: it cannot be shown again.")
			return nil
		},
	}

	cmd.Flags().StringVar(&in.ID, "id", "", "Provider slug (e.g. sevenrooms)")
	cmd.Flags().StringVar(&in.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&in.Endpoint, "endpoint", "", "MCP endpoint URL")
	cmd.Flags().StringVar(&in.ProviderDomain, "domain", "", "Provider domain used for pending provider detection")
	cmd.Flags().StringVar(&capabilities, "capabilities", "", "Comma-separated default capabilities")
	cmd.Flags().BoolVar(&in.Trusted, "trusted", false, "Mark the provider as trusted")
	cmd.Flags().BoolVar(&in.Verified, "verified", false, "Mark onboarding as complete")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("endpoint")
	return cmd
}

// newProviderFlagCmd builds "provider trust" and "provider verify"; --revoke
// clears the flag.
func newProviderFlagCmd(
	opts *rootOptions,
	use, short string,
	set func(a services.ProviderAdminService, ctx context.Context, id string, v bool) error,
) *cobra.Command {
	var revoke bool

	cmd := &cobra.Command{
		Use:   use + " <provider-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			admin, cleanup, err := opts.newAdmin(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := set(admin, cmd.Context(), args[0], !revoke); err != nil {
				return err
			}
			state := "set"
			if revoke {
				state = "cleared"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s flag %s\n", args[0], use, state)
			return err
		},
	}
	cmd.Flags().BoolVar(&revoke, "revoke", false, "Clear the flag instead of setting it")
	return cmd
}

func newProviderRotateKeyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-key <provider-id>",
		Short: "Replace a provider's API key; the old key stops working immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			admin, cleanup, err := opts.newAdmin(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			key, err := admin.RotateKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), CreatedProvider{ID: args[0], APIKey: key})
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "New API key for %s: %s\n", args[0], key)
			return err
		},
	}
}

func newProviderListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			admin, cleanup, err := opts.newAdmin(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			providers, err := admin.List(cmd.Context())
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), providers)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tENDPOINT\tTRUSTED\tVERIFIED")
			for _, p := range providers {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%t\n", p.ID, p.Name, p.Endpoint, p.Trusted, p.Verified)
			}
			return tw.Flush()
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
