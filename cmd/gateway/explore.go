package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/praxis/praxis-marketplace-gateway/internal/discovery"
	"github.com/praxis/praxis-marketplace-gateway/internal/marketplace"
)

func newExploreCommand(opts *rootOptions) *cobra.Command {
	var (
		category   string
		maxServers int
		serverURLs []string
	)

	cmd := &cobra.Command{
		Use:   "explore",
		Short: "Discover and print the enriched service catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			c, err := buildComponents(ctx, opts.cfg, opts.logger, false)
			if err != nil {
				return err
			}
			defer c.close()

			exploreOpts := discovery.ExploreOptions{Category: category, MaxServers: maxServers}
			if exploreOpts.MaxServers <= 0 {
				exploreOpts.MaxServers = opts.cfg.Discovery.MaxServers
			}

			var servers []marketplace.ServerRecord
			if len(serverURLs) > 0 {
				exploreOpts.UnsafeDirectAccess = true
				for _, url := range serverURLs {
					servers = append(servers, marketplace.ServerRecord{Name: url, MCPServerURL: url})
				}
			} else {
				servers = c.marketplace.SearchServers(ctx, marketplace.Filter{})
			}

			registry := c.explorer.ExploreAndEnrichServices(ctx, servers, exploreOpts)
			return printJSON(registry)
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Only keep services in this category")
	cmd.Flags().IntVar(&maxServers, "max-servers", 0, "Maximum number of servers to explore")
	cmd.Flags().StringSliceVar(&serverURLs, "server-url", nil, "Explore these tool servers directly instead of the marketplace")
	return cmd
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
