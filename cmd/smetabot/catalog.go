package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/velikov/smetabot/internal/catalog"
	"github.com/velikov/smetabot/internal/estimate"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the materials catalog",
		Long:  "Validates and lists the YAML catalog of materials, product templates, works, and other items.",
	}

	cmd.AddCommand(newCatalogValidateCmd())
	cmd.AddCommand(newCatalogListCmd())
	return cmd
}

func newCatalogValidateCmd() *cobra.Command {
	var catalogPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the catalog file",
		Long:  "Parses the catalog, prints per-item warnings, and reports section counts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogValidate(cmd, catalogPath)
		},
	}

	cmd.Flags().StringVarP(&catalogPath, "catalog", "f", "materials.yaml", "path to catalog YAML file")
	return cmd
}

func runCatalogValidate(cmd *cobra.Command, catalogPath string) error {
	out := cmd.OutOrStdout()
	store, err := catalog.LoadWithOutput(catalogPath, out)
	if err != nil {
		return fmt.Errorf("catalog invalid: %w", err)
	}

	counts := store.SectionCounts()
	fmt.Fprintf(out, "%s OK\n", catalogPath)
	for _, sec := range []string{catalog.SectionMaterials, catalog.SectionTemplates, catalog.SectionWorks, catalog.SectionOther} {
		fmt.Fprintf(out, "  %-10s %d\n", sec, counts[sec])
	}
	fmt.Fprintf(out, "  categories %d\n", len(store.Categories()))
	return nil
}

func newCatalogListCmd() *cobra.Command {
	var (
		catalogPath string
		section     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog items",
		Long:  "Prints catalog items with their category, unit, and base price.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogList(cmd, catalogPath, section)
		},
	}

	cmd.Flags().StringVarP(&catalogPath, "catalog", "f", "materials.yaml", "path to catalog YAML file")
	cmd.Flags().StringVarP(&section, "section", "s", "", "limit to one section (materials, templates, works, other)")
	return cmd
}

func runCatalogList(cmd *cobra.Command, catalogPath, section string) error {
	store, err := catalog.LoadWithOutput(catalogPath, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	var items []*catalog.Item
	if section == "" {
		items = store.AllItems()
	} else {
		items = store.Items(section)
		if len(items) == 0 {
			return fmt.Errorf("catalog: no items in section %q", section)
		}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCATEGORY\tUNIT\tPRICE")
	for _, item := range items {
		price := estimate.FormatNumber(item.Price)
		if item.Calculation != nil {
			price = "computed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", item.Name, item.Category, item.Unit, price)
	}
	return w.Flush()
}
