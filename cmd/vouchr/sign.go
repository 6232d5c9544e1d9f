package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	callbackauthdomain "github.com/smallbiznis/vouchr/internal/callbackauth/domain"
	callbackauthservice "github.com/smallbiznis/vouchr/internal/callbackauth/service"
	"github.com/spf13/cobra"
)

// signCmd prints a signed callback body so provider integrations can be
// checked against a running server.
func signCmd() *cobra.Command {
	var (
		secret    string
		dealID    string
		txID      string
		amount    string
		currency  string
		status    string
		customer  string
		timestamp int64
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Compute a reference payment callback signature",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(secret) == "" {
				return errors.New("--secret is required")
			}
			amt, err := decimal.NewFromString(strings.TrimSpace(amount))
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}
			if timestamp == 0 {
				timestamp = time.Now().Unix()
			}

			signature, err := callbackauthservice.Sign(secret, callbackauthdomain.SignableFields{
				TransactionID:     txID,
				Amount:            amt,
				Currency:          currency,
				Status:            status,
				CustomerReference: customer,
				Timestamp:         timestamp,
			})
			if err != nil {
				return err
			}

			body := map[string]any{
				"dealId":                dealID,
				"externalTransactionId": txID,
				"amountPaid":            json.Number(amt.String()),
				"currency":              currency,
				"paymentStatus":         status,
				"customerReference":     customer,
				"callbackSignature":     signature,
				"callbackTimestamp":     timestamp,
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(body)
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "shared HMAC secret")
	cmd.Flags().StringVar(&dealID, "deal", "", "deal id")
	cmd.Flags().StringVar(&txID, "tx", "", "external transaction id")
	cmd.Flags().StringVar(&amount, "amount", "0", "amount paid")
	cmd.Flags().StringVar(&currency, "currency", "USD", "ISO 4217 currency")
	cmd.Flags().StringVar(&status, "status", "completed", "payment status")
	cmd.Flags().StringVar(&customer, "customer", "", "customer reference")
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "unix seconds, defaults to now")
	return cmd
}
