package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
}

func init() {
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create an account (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Stop(context.Background()) }()

		token, err := login(ctx, a)
		if err != nil {
			return err
		}

		password, err := promptPassword(fmt.Sprintf("New password for %s: ", args[0]))
		if err != nil {
			return err
		}
		confirm, err := promptPassword("Repeat password: ")
		if err != nil {
			return err
		}
		if password != confirm {
			return fmt.Errorf("passwords do not match")
		}

		u, err := a.CreateUser(ctx, token, args[0], password)
		if err != nil {
			return err
		}
		fmt.Printf("Created user %q\n", u.Username)
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts (admin only)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.Stop(context.Background()) }()

		token, err := login(ctx, a)
		if err != nil {
			return err
		}
		users, err := a.ListUsers(ctx, token)
		if err != nil {
			return err
		}
		for _, u := range users {
			fmt.Println(u.Username)
		}
		return nil
	},
}
