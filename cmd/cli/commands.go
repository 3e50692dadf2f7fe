package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	role    string
	requeue bool
	count   int
)

func init() {
	joinCmd.Flags().StringVar(&role, "role", "", "Role preference (tank|dps|support|fill)")
	cancelCmd.Flags().BoolVar(&requeue, "requeue", false, "Return the players to the queue")
	seedTestCmd.Flags().IntVar(&count, "count", 1, "Number of test players to seed")

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(leaderboardCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(leaveCmd)
	rootCmd.AddCommand(readyCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(seedTestCmd)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health of the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return performGetRequest("/health")
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Show the queue and the active match",
	RunE: func(cmd *cobra.Command, args []string) error {
		return performGetRequest("/snapshot")
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Get application metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return performGetRequest("/metrics")
	},
}

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Show the rating leaderboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		return performGetRequest("/leaderboard")
	},
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recent matches",
	RunE: func(cmd *cobra.Command, args []string) error {
		return performGetRequest("/matches/recent")
	},
}

var joinCmd = &cobra.Command{
	Use:   "join <playerID> <name>",
	Short: "Join the queue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return performPostRequest("/queue/join", map[string]string{
			"player_id": args[0],
			"name":      args[1],
			"role":      role,
		})
	},
}

var leaveCmd = &cobra.Command{
	Use:   "leave <playerID>",
	Short: "Leave the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return performPostRequest("/queue/leave", map[string]string{"player_id": args[0]})
	},
}

var readyCmd = &cobra.Command{
	Use:   "ready <matchID> <playerID>",
	Short: "Signal readiness for the active match",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return performPostRequest("/match/ready", map[string]string{
			"match_id":  args[0],
			"player_id": args[1],
		})
	},
}

var reportCmd = &cobra.Command{
	Use:   "report <matchID> <team> <playerID> <outcome>",
	Short: "Report a match result (outcome: team_a|team_b|draw)",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return performPostRequest("/match/report", map[string]string{
			"match_id":  args[0],
			"team":      args[1],
			"player_id": args[2],
			"outcome":   args[3],
		})
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <adminID>",
	Short: "Cancel the active match",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return performPostRequest("/admin", map[string]any{
			"kind": "cancel",
			"params": map[string]any{
				"admin_id": args[0],
				"requeue":  requeue,
			},
		})
	},
}

var seedTestCmd = &cobra.Command{
	Use:   "seed-test <adminID>",
	Short: "Seed synthetic test players into the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return performPostRequest("/admin", map[string]any{
			"kind": "seed-test",
			"params": map[string]any{
				"admin_id": args[0],
				"count":    count,
			},
		})
	},
}

func performGetRequest(endpoint string) error {
	url := host + endpoint
	fmt.Printf("Making request to %s\n", url)

	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	return printResponse(resp)
}

func performPostRequest(endpoint string, payload any) error {
	url := host + endpoint
	fmt.Printf("Making request to %s\n", url)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	fmt.Printf("Status Code: %d\n", resp.StatusCode)
	fmt.Println("Response Body:")
	fmt.Println(string(body))

	return nil
}
