package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/stackgate/stackgate/internal/cfn"
)

// RegisterStackCommands adds the stack lifecycle commands.
func RegisterStackCommands(root *cobra.Command) {
	stacksCmd := &cobra.Command{
		Use:   "stacks",
		Short: "Manage stacks",
	}

	stacksCmd.AddCommand(newStacksListCmd())
	stacksCmd.AddCommand(newStacksDescribeCmd())
	stacksCmd.AddCommand(newStacksCreateCmd(false))
	stacksCmd.AddCommand(newStacksCreateCmd(true))
	stacksCmd.AddCommand(newStacksDeleteCmd())
	stacksCmd.AddCommand(newStacksTemplateCmd())
	stacksCmd.AddCommand(newStacksValidateCmd())
	stacksCmd.AddCommand(newStacksEstimateCostCmd())

	root.AddCommand(stacksCmd)
}

func newStacksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stacks",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := apiClient()
			if err != nil {
				return err
			}
			result, err := client.Call(cmd.Context(), "ListStacks", nil)
			if err != nil {
				return err
			}

			doc, _ := result.(map[string]any)
			summaries := docList(doc, "StackSummaries")
			if len(summaries) == 0 {
				fmt.Println("No stacks.")
				return nil
			}

			fmt.Printf("%-24s %-22s %-22s %s\n", "NAME", "STATUS", "CREATED", "STACK ID")
			for _, s := range summaries {
				fmt.Printf("%-24s %-22s %-22s %s\n",
					docString(s, "StackName"),
					docString(s, "StackStatus"),
					docString(s, "CreationTime"),
					docString(s, "StackId"))
			}
			return nil
		},
	}
}

func newStacksDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe [stack]",
		Short: "Show stack detail",
		Long: `Show the full detail records for one stack, addressed by name or stack id.
With no argument, every stack visible to the caller is described.`,
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
			result, err := client.Call(cmd.Context(), "DescribeStacks", params)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

// newStacksCreateCmd builds the create and update commands; the two differ
// only in action name and verb.
func newStacksCreateCmd(update bool) *cobra.Command {
	use, short, action := "create <name>", "Create a stack", "CreateStack"
	if update {
		use, short, action = "update <name>", "Update a stack with a new template", "UpdateStack"
	}

	var (
		tmpl            templateFlags
		parameters      []string
		timeoutMinutes  int
		disableRollback bool
		onFailure       string
	)

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]string{"StackName": args[0]}
			if err := tmpl.apply(params); err != nil {
				return err
			}

			pairs, err := parsePairs(parameters)
			if err != nil {
				return fmt.Errorf("parsing --parameter: %w", err)
			}
			for k, v := range cfn.FlattenPairs("Parameters", "ParameterKey", "ParameterValue", pairs) {
				params[k] = v
			}

			if timeoutMinutes > 0 {
				params["TimeoutInMinutes"] = strconv.Itoa(timeoutMinutes)
			}
			if disableRollback {
				params["DisableRollback"] = "true"
			}
			if onFailure != "" {
				params["OnFailure"] = onFailure
			}

			client, err := apiClient()
			if err != nil {
				return err
			}
			result, err := client.Call(cmd.Context(), action, params)
			if err != nil {
				return err
			}

			if doc, ok := result.(map[string]any); ok {
				if id := docString(doc, "StackId"); id != "" {
					fmt.Println(id)
					return nil
				}
			}
			return printJSON(result)
		},
	}

	tmpl.register(cmd)
	cmd.Flags().StringArrayVar(&parameters, "parameter", nil, "Template parameter as Key=Value (repeatable)")
	cmd.Flags().IntVar(&timeoutMinutes, "timeout", 0, "Stack operation timeout in minutes")
	cmd.Flags().BoolVar(&disableRollback, "disable-rollback", false, "Keep partially created resources on failure")
	cmd.Flags().StringVar(&onFailure, "on-failure", "", "Failure behavior: DO_NOTHING, ROLLBACK, or DELETE")

	return cmd
}

func newStacksDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <stack>",
		Short: "Delete a stack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := apiClient()
			if err != nil {
				return err
			}
			result, err := client.Call(cmd.Context(), "DeleteStack", map[string]string{"StackName": args[0]})
			if err != nil {
				return err
			}
			// A non-empty result is an engine-reported soft failure.
			if msg, ok := result.(string); ok && msg != "" {
				return fmt.Errorf("delete not accepted: %s", msg)
			}
			fmt.Printf("Delete initiated for %s\n", args[0])
			return nil
		},
	}
}

func newStacksTemplateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "template <stack>",
		Short: "Print a stack's template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := apiClient()
			if err != nil {
				return err
			}
			result, err := client.Call(cmd.Context(), "GetTemplate", map[string]string{"StackName": args[0]})
			if err != nil {
				return err
			}
			if doc, ok := result.(map[string]any); ok {
				return printJSON(doc["TemplateBody"])
			}
			return printJSON(result)
		},
	}
}

func newStacksValidateCmd() *cobra.Command {
	var tmpl templateFlags

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a template",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]string{}
			if err := tmpl.apply(params); err != nil {
				return err
			}
			client, err := apiClient()
			if err != nil {
				return err
			}
			result, err := client.Call(cmd.Context(), "ValidateTemplate", params)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	tmpl.register(cmd)
	return cmd
}

func newStacksEstimateCostCmd() *cobra.Command {
	var tmpl templateFlags

	cmd := &cobra.Command{
		Use:   "estimate-cost",
		Short: "Estimate the cost of running a template",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]string{}
			if err := tmpl.apply(params); err != nil {
				return err
			}
			client, err := apiClient()
			if err != nil {
				return err
			}
			result, err := client.Call(cmd.Context(), "EstimateTemplateCost", params)
			if err != nil {
				return err
			}
			if doc, ok := result.(map[string]any); ok {
				if url := docString(doc, "Url"); url != "" {
					fmt.Println(url)
					return nil
				}
			}
			return printJSON(result)
		},
	}

	tmpl.register(cmd)
	return cmd
}
