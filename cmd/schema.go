package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Show the loaded schema snapshot and its version",
	RunE:  runSchema,
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	p, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	snapshot := p.versions.Snapshot()

	fmt.Printf("Schema version: %s\n\n", snapshot.Version())

	for _, table := range snapshot.Tables() {
		fmt.Printf("%s\n", table.Name)

		for _, col := range table.Columns {
			marker := " "
			for _, pk := range table.PrimaryKey {
				if pk == col.Name {
					marker = "*"
				}
			}

			fmt.Printf("  %s %-24s %s\n", marker, col.Name, col.Type)
		}

		for _, fk := range table.ForeignKeys {
			fmt.Printf("    %s -> %s.%s\n", fk.Column, fk.ReferencedTable, fk.ReferencedColumn)
		}

		fmt.Println()
	}

	return nil
}
