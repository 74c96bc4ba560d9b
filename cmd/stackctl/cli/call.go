package cli

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

// RegisterCallCommand adds the raw action escape hatch.
func RegisterCallCommand(root *cobra.Command) {
	var raw bool

	cmd := &cobra.Command{
		Use:   "call <action> [Key=Value ...]",
		Short: "Invoke an API action directly",
		Long: `Send one signed API request with the given action and parameters. This is
the escape hatch for actions or parameters the higher level commands do not
cover.

Examples:
  stackctl call ListStacks
  stackctl call DescribeStacks StackName=wordpress
  stackctl call CreateStack StackName=db TemplateUrl=https://example.com/db.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := args[0]
			params, err := parsePairs(args[1:])
			if err != nil {
				return err
			}

			client, err := apiClient()
			if err != nil {
				return err
			}

			if raw {
				resp, err := client.Do(cmd.Context(), action, params)
				if err != nil {
					return err
				}
				fmt.Println(strings.TrimSpace(string(resp.Body)))
				if resp.StatusCode != http.StatusOK {
					return fmt.Errorf("HTTP %d", resp.StatusCode)
				}
				return nil
			}

			result, err := client.Call(cmd.Context(), action, params)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print the raw response body (XML unless ContentType=JSON is among the parameters)")

	root.AddCommand(cmd)
}
