package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	rosterChannels bool
	rosterJSON     bool
)

func init() {
	rosterCmd.Flags().BoolVar(&rosterChannels, "channels", false, "list channels instead of employees")
	rosterCmd.Flags().BoolVar(&rosterJSON, "json", false, "output raw JSON")
	rootCmd.AddCommand(rosterCmd)
}

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "List the employee or channel directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := newChatClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if rosterChannels {
			channels, err := client.FetchChannels(ctx)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			if rosterJSON {
				return printJSON(channels)
			}
			for _, ch := range channels {
				fmt.Printf("%-24s  %s\n", ch.ID, ch.Name)
			}
			return nil
		}

		employees, err := client.FetchEmployees(ctx)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if rosterJSON {
			return printJSON(employees)
		}
		for _, p := range employees {
			fmt.Printf("%-24s  %-20s  %s\n", p.ID, p.Name, p.Department)
		}
		return nil
	},
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
