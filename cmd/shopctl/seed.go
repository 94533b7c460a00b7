package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cartloom/cartloom-golang/internal/catalog"
	"github.com/cartloom/cartloom-golang/internal/database"
)

func seedCmd() *cobra.Command {
	var sellerID int64

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert a demo catalog for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.Open()
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close()

			created, err := catalog.NewService(db).Seed(cmd.Context(), sellerID)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d product(s).\n", created)
			return nil
		},
	}

	cmd.Flags().Int64Var(&sellerID, "seller", 1, "seller id to own the demo products")
	return cmd
}
