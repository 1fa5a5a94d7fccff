package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	registryEventType string
	registryJSON      bool
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Show the registered notification configurations",
	Long: `Loads the "notifications" section of the config, validates it the same
way the gateway does, and prints a summary followed by every configuration.`,
	RunE: runRegistry,
}

func init() {
	registryCmd.Flags().StringVar(&registryEventType, "event-type", "", "only list configs for this event type")
	registryCmd.Flags().BoolVar(&registryJSON, "json", false, "print as JSON")
}

func runRegistry(cmd *cobra.Command, args []string) error {
	svc, err := loadServices(context.Background(), false)
	if err != nil {
		return err
	}
	defer svc.Close()

	summary := svc.registry.Summary()
	configs := svc.registry.Configurations(registryEventType)

	if registryJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"summary":        summary,
			"configurations": configs,
		})
	}

	fmt.Println(headerStyle.Render("Notification registry"))
	if _, err := summary.WriteTo(os.Stdout); err != nil {
		return err
	}
	if len(configs) == 0 {
		return nil
	}

	fmt.Println()
	fmt.Printf("%-24s %-9s %-26s %-18s %s\n", "EVENT TYPE", "CHANNEL", "TEMPLATE", "RECIPIENT FIELD", "DEDUP")
	for _, c := range configs {
		policy := c.DeduplicationPolicy
		if policy == "" {
			policy = "-"
		}
		fmt.Printf("%-24s %-9s %-26s %-18s %s\n", c.EventType, c.Channel, c.Template, c.RecipientField, policy)
	}
	return nil
}
