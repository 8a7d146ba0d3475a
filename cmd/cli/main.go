// Command dex-cli is the command-line interface for DEX coordination backend
// operations.
//
// This tool talks to the running API server over HTTP rather than reaching
// into Redis or PostgreSQL directly: core ledger, order, and pool state all
// live in the API server's memory now, so the CLI is a client of it, not a
// second writer of shared storage.
//
// Usage:
//
//	dex-cli balance get --user-id alice
//	dex-cli orders place --user-id alice --market SOL/USDT --side buy --price 20 --quantity 10
//	dex-cli pools list
//	dex-cli pools unpause --pool-id SOL-USDT
//	dex-cli withdrawals get --request-id <id>
//	dex-cli admin health
//	dex-cli admin reconcile-now
//	dex-cli admin verify-integrity
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	Version = "dev"

	apiAddr string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "dex-cli",
		Short:         "dex-cli - command-line interface for the DEX coordination backend",
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().StringVar(&apiAddr, "api-addr", getEnv("DEX_API_ADDR", "http://localhost:8080"), "API server address")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(balanceCmd())
	rootCmd.AddCommand(ordersCmd())
	rootCmd.AddCommand(poolsCmd())
	rootCmd.AddCommand(withdrawalsCmd())
	rootCmd.AddCommand(adminCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func balanceCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "balance", Short: "Balance operations"}

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "List balances for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user-id")
			return getJSON(fmt.Sprintf("/balances/%s", userID))
		},
	}
	getCmd.Flags().String("user-id", "", "User ID (required)")
	getCmd.MarkFlagRequired("user-id")

	cmd.AddCommand(getCmd)
	return cmd
}

func ordersCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "orders", Short: "Order operations"}

	placeCmd := &cobra.Command{
		Use:   "place",
		Short: "Place a limit order",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user-id")
			market, _ := cmd.Flags().GetString("market")
			side, _ := cmd.Flags().GetString("side")
			price, _ := cmd.Flags().GetString("price")
			quantity, _ := cmd.Flags().GetString("quantity")

			return postJSON("/orders", map[string]string{
				"user_id": userID, "market": market, "side": side, "price": price, "quantity": quantity,
			})
		},
	}
	placeCmd.Flags().String("user-id", "", "User ID (required)")
	placeCmd.Flags().String("market", "", "Market, e.g. SOL/USDT (required)")
	placeCmd.Flags().String("side", "", "buy or sell (required)")
	placeCmd.Flags().String("price", "", "Limit price (required)")
	placeCmd.Flags().String("quantity", "", "Order quantity (required)")
	placeCmd.MarkFlagRequired("user-id")
	placeCmd.MarkFlagRequired("market")
	placeCmd.MarkFlagRequired("side")
	placeCmd.MarkFlagRequired("price")
	placeCmd.MarkFlagRequired("quantity")

	cancelCmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel an order",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user-id")
			orderID, _ := cmd.Flags().GetString("order-id")
			return deleteJSON(fmt.Sprintf("/orders/%s", orderID), map[string]string{"user_id": userID})
		},
	}
	cancelCmd.Flags().String("user-id", "", "User ID (required)")
	cancelCmd.Flags().String("order-id", "", "Order ID (required)")
	cancelCmd.MarkFlagRequired("user-id")
	cancelCmd.MarkFlagRequired("order-id")

	cmd.AddCommand(placeCmd, cancelCmd)
	return cmd
}

func poolsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "pools", Short: "Pool operations"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all pools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON("/pools/list")
		},
	}

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap",
		RunE: func(cmd *cobra.Command, args []string) error {
			poolID, _ := cmd.Flags().GetString("pool-id")
			tokenIn, _ := cmd.Flags().GetString("token-in")
			amountIn, _ := cmd.Flags().GetString("amount-in")
			return getJSON(fmt.Sprintf("/pools/quote?pool_id=%s&token_in=%s&amount_in=%s", poolID, tokenIn, amountIn))
		},
	}
	quoteCmd.Flags().String("pool-id", "", "Pool ID (required)")
	quoteCmd.Flags().String("token-in", "", "Input token (required)")
	quoteCmd.Flags().String("amount-in", "", "Input amount in base units (required)")
	quoteCmd.MarkFlagRequired("pool-id")
	quoteCmd.MarkFlagRequired("token-in")
	quoteCmd.MarkFlagRequired("amount-in")

	unpauseCmd := &cobra.Command{
		Use:   "unpause",
		Short: "Unpause a pool after operator review",
		RunE: func(cmd *cobra.Command, args []string) error {
			poolID, _ := cmd.Flags().GetString("pool-id")
			return postJSON(fmt.Sprintf("/pools/%s/unpause", poolID), map[string]string{})
		},
	}
	unpauseCmd.Flags().String("pool-id", "", "Pool ID (required)")
	unpauseCmd.MarkFlagRequired("pool-id")

	cmd.AddCommand(listCmd, quoteCmd, unpauseCmd)
	return cmd
}

func withdrawalsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "withdrawals", Short: "Withdrawal operations"}

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Look up a withdrawal's settlement status",
		RunE: func(cmd *cobra.Command, args []string) error {
			requestID, _ := cmd.Flags().GetString("request-id")
			return getJSON(fmt.Sprintf("/withdrawals/%s", requestID))
		},
	}
	getCmd.Flags().String("request-id", "", "Withdrawal request ID (required)")
	getCmd.MarkFlagRequired("request-id")

	cmd.AddCommand(getCmd)
	return cmd
}

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "admin", Short: "Administrative operations"}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check API server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON("/health")
		},
	}

	reconcileNowCmd := &cobra.Command{
		Use:   "reconcile-now",
		Short: "Force an immediate reconciliation sweep of accounts and pools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON("/admin/reconcile-now", map[string]string{})
		},
	}

	verifyIntegrityCmd := &cobra.Command{
		Use:   "verify-integrity",
		Short: "Show the most recent reconciliation reports without forcing a new sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON("/admin/verify-integrity")
		},
	}

	cmd.AddCommand(healthCmd, reconcileNowCmd, verifyIntegrityCmd)
	return cmd
}

// HTTP helpers

var httpClient = &http.Client{Timeout: 10 * time.Second}

func getJSON(path string) error {
	resp, err := httpClient.Get(apiAddr + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func postJSON(path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := httpClient.Post(apiAddr+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func deleteJSON(path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodDelete, apiAddr+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(data))
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
