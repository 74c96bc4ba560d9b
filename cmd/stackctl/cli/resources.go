package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RegisterResourceCommands adds the stack resource commands.
func RegisterResourceCommands(root *cobra.Command) {
	resourcesCmd := &cobra.Command{
		Use:   "resources",
		Short: "Inspect stack resources",
	}

	resourcesCmd.AddCommand(newResourcesListCmd())
	resourcesCmd.AddCommand(newResourcesDescribeCmd())
	resourcesCmd.AddCommand(newResourcesShowCmd())

	root.AddCommand(resourcesCmd)
}

func newResourcesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <stack>",
		Short: "List a stack's resources",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := apiClient()
			if err != nil {
				return err
			}
			result, err := client.Call(cmd.Context(), "ListStackResources",
				map[string]string{"StackName": args[0]})
			if err != nil {
				return err
			}

			doc, _ := result.(map[string]any)
			summaries := docList(doc, "StackResourceSummaries")
			if len(summaries) == 0 {
				fmt.Println("No resources.")
				return nil
			}

			fmt.Printf("%-24s %-28s %-22s %s\n", "LOGICAL ID", "TYPE", "STATUS", "PHYSICAL ID")
			for _, r := range summaries {
				fmt.Printf("%-24s %-28s %-22s %s\n",
					docString(r, "LogicalResourceId"),
					docString(r, "ResourceType"),
					docString(r, "ResourceStatus"),
					docString(r, "PhysicalResourceId"))
			}
			return nil
		},
	}
}

func newResourcesDescribeCmd() *cobra.Command {
	var (
		physicalID string
		logicalID  string
	)

	cmd := &cobra.Command{
		Use:   "describe [stack]",
		Short: "Show detail records for a stack's resources",
		Long: `Show detail records for the resources of one stack. The stack is addressed
either by name or, with --physical-id, through any physical resource id it
owns. Exactly one of the two forms must be used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]string{}
			if len(args) == 1 {
				params["StackName"] = args[0]
			}
			if physicalID != "" {
				params["PhysicalResourceId"] = physicalID
			}
			if logicalID != "" {
				params["LogicalResourceId"] = logicalID
			}

			client, err := apiClient()
			if err != nil {
				return err
			}
			result, err := client.Call(cmd.Context(), "DescribeStackResources", params)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	cmd.Flags().StringVar(&physicalID, "physical-id", "", "Address the stack through a physical resource id")
	cmd.Flags().StringVar(&logicalID, "logical-id", "", "Only the resource with this logical id")

	return cmd
}

func newResourcesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <stack> <logical-id>",
		Short: "Show one resource in full detail",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := apiClient()
			if err != nil {
				return err
			}
			result, err := client.Call(cmd.Context(), "DescribeStackResource", map[string]string{
				"StackName":         args[0],
				"LogicalResourceId": args[1],
			})
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}
