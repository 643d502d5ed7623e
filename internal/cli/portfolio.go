package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewPortfolioCmd создаёт группу команд для работы с портфелями.
func NewPortfolioCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Inspect and generate portfolios",
	}

	cmd.AddCommand(
		newPortfolioListCmd(clientFn, outputFn),
		newPortfolioShowCmd(clientFn, outputFn),
		newPortfolioGenerateCmd(clientFn, outputFn),
		newPortfolioSectorsCmd(clientFn, outputFn),
	)

	return cmd
}

func newPortfolioListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List portfolios",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := clientFn().ListPortfolios()
			if err != nil {
				return err
			}

			rows := make([][]string, len(ids))
			for i, id := range ids {
				rows[i] = []string{id}
			}

			outputFn().Print([]string{"ID"}, rows, ids)
			return nil
		},
	}
}

func newPortfolioShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show portfolio constituents by weight",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := clientFn().GetPortfolio(args[0])
			if err != nil {
				return err
			}

			printPortfolio(outputFn(), p, top)
			return nil
		},
	}

	cmd.Flags().IntVar(&top, "top", 0, "Show only the N heaviest constituents")
	return cmd
}

func newPortfolioGenerateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "generate ID",
		Short: "Generate a random equal-weight portfolio (replaces an existing one)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			p, err := clientFn().GeneratePortfolio(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Portfolio generated: %s (%d assets)", p.ID, p.Assets))
			printPortfolio(out, p, 0)
			return nil
		},
	}
}

func newPortfolioSectorsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "sectors ID",
		Short: "Show total weight per sector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			weights, err := clientFn().SectorWeights(args[0])
			if err != nil {
				return err
			}

			rows := make([][]string, len(weights))
			for i, w := range weights {
				rows[i] = []string{w.Sector, formatWeight(w.Weight)}
			}

			outputFn().Print([]string{"SECTOR", "WEIGHT"}, rows, weights)
			return nil
		},
	}
}

func printPortfolio(out *Output, p *PortfolioResponse, top int) {
	constituents := p.Constituents
	if top > 0 && top < len(constituents) {
		constituents = constituents[:top]
	}

	rows := make([][]string, len(constituents))
	for i, c := range constituents {
		rows[i] = []string{c.AssetID, c.Sector, formatWeight(c.Weight)}
	}

	out.Print([]string{"ASSET", "SECTOR", "WEIGHT"}, rows, p)
}
