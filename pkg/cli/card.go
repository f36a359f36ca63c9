package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dock-ai/registry/pkg/apperrors"
	"github.com/dock-ai/registry/pkg/entitycard"
	"github.com/dock-ai/registry/pkg/models"
	"github.com/dock-ai/registry/pkg/validation"
)

// CardReport is the JSON form of card validate.
type CardReport struct {
	Valid  bool               `json:"valid"`
	Source string             `json:"source"`
	Error  string             `json:"error,omitempty"`
	Card   *models.EntityCard `json:"card,omitempty"`
}

// errCardInvalid makes the command exit non-zero after the report is printed.
var errCardInvalid = errors.New("entity card is not valid")

func newCardCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "card",
		Short: "Entity Card tools",
	}
	cmd.AddCommand(newCardValidateCmd(opts))
	return cmd
}

func newCardValidateCmd(opts *rootOptions) *cobra.Command {
	var (
		live     bool
		hostedOn string
	)

	cmd := &cobra.Command{
		Use:   "validate <file | domain>",
		Short: "Validate an Entity Card file, or the card a domain serves (--live)",
		Long: `Validate an Entity Card against the 0.2.0 schema.

With a file argument the document is read locally ("-" reads stdin); --domain
additionally checks that the card declares that domain. With --live the
argument is a domain and its /.well-known/entity-card.json is fetched the way
the registry does on submit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			validator, err := entitycard.NewValidator()
			if err != nil {
				return err
			}

			var (
				card   *models.EntityCard
				source = args[0]
			)
			if live {
				domain, derr := validation.NormalizeDomain(args[0])
				if derr != nil {
					return fmt.Errorf("invalid domain %q: %w", args[0], derr)
				}
				cfg, logger, lerr := opts.loadConfig()
				if lerr != nil {
					return lerr
				}
				fetcher := entitycard.NewHTTPFetcher(&cfg.EntityCard, validator, logger)
				source = entitycard.CardURL(cfg.EntityCard.Scheme, domain)
				card, err = fetcher.Fetch(cmd.Context(), domain)
			} else {
				card, err = parseCardFile(cmd.InOrStdin(), args[0], hostedOn, validator)
			}

			report := CardReport{Valid: err == nil, Source: source, Card: card}
			if err != nil {
				if !isCardProblem(err) {
					return err
				}
				report.Error = err.Error()
			}
			if werr := printCardReport(cmd.OutOrStdout(), report, opts.jsonOutput); werr != nil {
				return werr
			}
			if !report.Valid {
				return errCardInvalid
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&live, "live", false, "Treat the argument as a domain and fetch its card")
	cmd.Flags().StringVar(&hostedOn, "domain", "", "Domain the file will be hosted on (checks the declared domain)")
	return cmd
}

func parseCardFile(stdin io.Reader, path, hostedOn string, validator *entitycard.Validator) (*models.EntityCard, error) {
	var (
		body []byte
		err  error
	)
	if path == "-" {
		body, err = io.ReadAll(stdin)
	} else {
		body, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read card: %w", err)
	}

	if hostedOn != "" {
		hostedOn, err = validation.NormalizeDomain(hostedOn)
		if err != nil {
			return nil, fmt.Errorf("invalid --domain: %w", err)
		}
	}
	return validator.Parse(body, hostedOn)
}

// isCardProblem reports whether err describes the card rather than a failure
// to run the check.
func isCardProblem(err error) bool {
	return errors.Is(err, apperrors.ErrInvalidCard) ||
		errors.Is(err, apperrors.ErrDomainMismatch) ||
		errors.Is(err, apperrors.ErrCardUnavailable)
}

func printCardReport(w io.Writer, report CardReport, asJSON bool) error {
	if asJSON {
		return writeJSON(w, report)
	}
	if !report.Valid {
		_, err := fmt.Fprintf(w, "INVALID %s\n  %s\n", report.Source, report.Error)
		return err
	}

	mcps := 0
	for _, e := range report.Card.Entities {
		mcps += len(e.MCPs)
	}
	if _, err := fmt.Fprintf(w, "OK %s\n  domain: %s\n  entities: %d\n  mcps: %d\n",
		report.Source, report.Card.Domain, len(report.Card.Entities), mcps); err != nil {
		return err
	}
	for _, e := range report.Card.Entities {
		if _, err := fmt.Fprintf(w, "  - %s %s (%d mcps)\n", e.Path, e.Name, len(e.MCPs)); err != nil {
			return err
		}
	}
	return nil
}
