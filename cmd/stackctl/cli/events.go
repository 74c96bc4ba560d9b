package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RegisterEventCommands adds the stack event commands.
func RegisterEventCommands(root *cobra.Command) {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "events [stack]",
		Short: "Show stack events",
		Long: `Show the event history for one stack, newest first as the engine reports
them. With no argument, events for every stack visible to the caller.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := apiClient()
			if err != nil {
				return err
			}
			params := map[string]string{}
			if len(args) == 1 {
				params["StackName"] = args[0]
			}
			result, err := client.Call(cmd.Context(), "DescribeStackEvents", params)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(result)
			}

			doc, _ := result.(map[string]any)
			events := docList(doc, "StackEvents")
			if len(events) == 0 {
				fmt.Println("No events.")
				return nil
			}

			fmt.Printf("%-22s %-24s %-24s %s\n", "TIMESTAMP", "RESOURCE", "STATUS", "REASON")
			for _, e := range events {
				fmt.Printf("%-22s %-24s %-24s %s\n",
					docString(e, "Timestamp"),
					docString(e, "LogicalResourceId"),
					docString(e, "ResourceStatus"),
					docString(e, "ResourceStatusReason"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full event records as JSON")

	root.AddCommand(cmd)
}
