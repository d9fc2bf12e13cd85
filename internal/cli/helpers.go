package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"sigs.k8s.io/yaml"
)

const (
	jsonFormat = "json"
	yamlFormat = "yaml"
)

var legalOutputTypes = []string{jsonFormat, yamlFormat}

const jobsKind = "jobs"

// parseAndValidateKindId splits a TYPE or TYPE/ID argument. The only
// resource kind is jobs.
func parseAndValidateKindId(arg string) (string, string, error) {
	kind, id, _ := strings.Cut(arg, "/")
	if kind != jobsKind {
		return "", "", fmt.Errorf("invalid resource kind %q, expected %q", kind, jobsKind)
	}
	return kind, id, nil
}

func printEncoded(v any, format string) error {
	switch format {
	case yamlFormat:
		raw, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Print(string(raw))
	default:
		raw, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(raw))
	}
	return nil
}
