package cmd

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCatalogCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the artwork catalog",
	}
	cmd.AddCommand(newCatalogListCmd(root), newCatalogValidateCmd(root))
	return cmd
}

func catalogPath(root *rootOptions, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	cfg, err := root.loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.Catalog.Path, nil
}

func newCatalogListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list [catalog file]",
		Short: "List catalog artworks",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := catalogPath(root, args)
			if err != nil {
				return err
			}
			cat, err := loadCatalog(path)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tARTIST\tYEAR\tRELATED")
			for _, art := range cat.All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", art.ID, art.Title, art.Artist, art.Year, strings.Join(art.RelatedArtworkIDs, ","))
			}
			return tw.Flush()
		},
	}
}

func newCatalogValidateCmd(root *rootOptions) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate [catalog file]",
		Short: "Check a catalog for duplicate ids and unknown related artworks",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := catalogPath(root, args)
			if err != nil {
				return err
			}
			cat, err := loadCatalog(path)
			if err != nil {
				return err
			}

			dangling := cat.DanglingRelations()
			ids := make([]string, 0, len(dangling))
			for id := range dangling {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d artworks\n", cat.Len())
			for _, id := range ids {
				fmt.Fprintf(out, "  %s relates to unknown: %s\n", id, strings.Join(dangling[id], ", "))
			}
			if strict && len(ids) > 0 {
				return fmt.Errorf("%d artworks have unknown related artworks", len(ids))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when related ids are not in the catalog")
	return cmd
}
