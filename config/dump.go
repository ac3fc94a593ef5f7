package config

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// redacted replaces secret values in dumps.
const redacted = "<redacted>"

// secretKeys are never printed.
var secretKeys = map[string]bool{
	KeyGitHubToken:           true,
	KeyNotifyWebhookURL:      true,
	KeyNotifySlackWebhookURL: true,
}

// WriteYAML writes the effective settings as nested YAML. Each value carries
// a line comment naming its source. Secrets are redacted when set.
func (s *Settings) WriteYAML(w io.Writer) error {
	if s.resolved == nil {
		return fmt.Errorf("settings have no resolved sources")
	}

	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, key := range s.resolved.Keys() {
		value, source := s.resolved.GetWithSource(key)
		if secretKeys[key] && value != "" {
			value = redacted
		}
		insert(root, strings.Split(key, "."), &yaml.Node{
			Kind:        yaml.ScalarNode,
			Value:       value,
			LineComment: string(source),
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}); err != nil {
		return err
	}
	return enc.Close()
}

// insert places value under the mapping path, creating nested mappings.
func insert(mapping *yaml.Node, path []string, value *yaml.Node) {
	if len(path) == 1 {
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: path[0]}, value)
		return
	}

	for i := 0; i < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == path[0] && mapping.Content[i+1].Kind == yaml.MappingNode {
			insert(mapping.Content[i+1], path[1:], value)
			return
		}
	}
	child := &yaml.Node{Kind: yaml.MappingNode}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: path[0]}, child)
	insert(child, path[1:], value)
}
