package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fragment-loader/internal/page"
)

func newListCmd() *cobra.Command {
	var pagePath, prefix string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the fragment path of every placeholder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readPage(pagePath)
			if err != nil {
				return err
			}
			for _, p := range doc.Placeholders(prefix) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", p.ID, p.Path())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pagePath, "page", "", "Page HTML file")
	cmd.Flags().StringVar(&prefix, "prefix", page.DefaultPrefix, "Placeholder id prefix")
	_ = cmd.MarkFlagRequired("page")
	return cmd
}
