package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/praxis/praxis-marketplace-gateway/internal/execution"
	"github.com/praxis/praxis-marketplace-gateway/pkg/utils"
)

func newExecuteCommand(opts *rootOptions) *cobra.Command {
	var (
		serverURL  string
		serverID   string
		serviceID  string
		params     string
		privateKey string
	)

	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Pay for and run one service on a tool server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if privateKey == "" {
				privateKey = utils.GetEnv("BUYER_PRIVATE_KEY", "")
			}
			if privateKey == "" {
				return errors.New("a buyer key is required (--private-key or BUYER_PRIVATE_KEY)")
			}

			req := execution.ExecutionRequest{
				ServiceID:  serviceID,
				ServerURL:  serverURL,
				ServerID:   serverID,
				PrivateKey: privateKey,
			}
			if params != "" {
				if err := json.Unmarshal([]byte(params), &req.Params); err != nil {
					return fmt.Errorf("invalid --params: %w", err)
				}
			}

			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			c, err := buildComponents(ctx, opts.cfg, opts.logger, false)
			if err != nil {
				return err
			}
			defer c.close()

			service, err := execution.ResolveService(ctx, c.explorer, req)
			if err != nil {
				return err
			}

			result := c.orchestrator.ExecuteService(ctx, req, *service)
			if err := printJSON(result); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("execution failed: %s", result.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server-url", "", "Tool server URL")
	cmd.Flags().StringVar(&serverID, "server-id", "", "Marketplace id of the server")
	cmd.Flags().StringVar(&serviceID, "service-id", "", "Service to purchase")
	cmd.Flags().StringVar(&params, "params", "", "Service parameters as a JSON object")
	cmd.Flags().StringVar(&privateKey, "private-key", "", "Buyer key in hex (defaults to BUYER_PRIVATE_KEY)")
	_ = cmd.MarkFlagRequired("server-url")
	_ = cmd.MarkFlagRequired("service-id")
	return cmd
}
