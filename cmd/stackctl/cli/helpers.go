package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stackgate/stackgate/internal/config"
	"github.com/stackgate/stackgate/pkg/cfnclient"
)

// apiClient builds a signed API client from the stored profile.
func apiClient() (*cfnclient.Client, error) {
	profile, err := config.LoadProfile()
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	if profile.AccessKeyID == "" || profile.SecretAccessKey == "" {
		return nil, fmt.Errorf("no credentials configured; run 'stackctl configure' first")
	}
	return &cfnclient.Client{
		Endpoint: profile.Endpoint,
		Creds: cfnclient.Credentials{
			AccessKeyID:     profile.AccessKeyID,
			SecretAccessKey: profile.SecretAccessKey,
		},
		Region: profile.Region,
	}, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// docString reads a string field from a decoded response document.
func docString(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}

// docList reads a list field from a decoded response document.
func docList(doc map[string]any, key string) []map[string]any {
	items, _ := doc[key].([]any)
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// parsePairs turns key=value arguments into a map.
func parsePairs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		out[k] = v
	}
	return out, nil
}

// templateFlags holds the two ways a command can supply a template.
type templateFlags struct {
	file string
	url  string
}

func (f *templateFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.file, "template-file", "", "Read the template from a local file")
	cmd.Flags().StringVar(&f.url, "template-url", "", "Fetch the template from a URL (http, https, or s3)")
}

func (f *templateFlags) apply(params map[string]string) error {
	switch {
	case f.file != "" && f.url != "":
		return fmt.Errorf("--template-file and --template-url are mutually exclusive")
	case f.file != "":
		body, err := os.ReadFile(f.file)
		if err != nil {
			return fmt.Errorf("reading template: %w", err)
		}
		params["TemplateBody"] = string(body)
	case f.url != "":
		params["TemplateUrl"] = f.url
	}
	return nil
}
