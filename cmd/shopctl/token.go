package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cartloom/cartloom-golang/internal/auth"
)

func tokenCmd() *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development JWT for a user id",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.GenerateToken(userID)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 1, "user id the token authenticates")
	return cmd
}
