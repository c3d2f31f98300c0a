package spec

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Suite maps test names to their specifications, as loaded from a YAML file:
//
//	usage:
//	  setup: true
//	  router: newRouter
//	  containers: [valkey, 'generic("nginx", "1.27")']
type Suite map[string]TestSpecification

// Names returns the test names in the suite in sorted order.
func (s Suite) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseSuite decodes a YAML suite document.
func ParseSuite(data []byte) (Suite, error) {
	var suite Suite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, err
	}
	if suite == nil {
		suite = Suite{}
	}
	return suite, nil
}

// LoadSuiteFile reads and decodes a YAML suite file.
func LoadSuiteFile(path string) (Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	suite, err := ParseSuite(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return suite, nil
}

// UnmarshalYAML decodes a specification from a YAML mapping. The keys and their meaning are the
// same as in the clause syntax; a hook set to true is the bare form of the clause.
func (s *TestSpecification) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return yamlErrorf(value, "a test specification must be a mapping")
	}
	var out TestSpecification
	seen := make(map[string]bool)
	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode, valueNode := value.Content[i], value.Content[i+1]
		key := keyNode.Value
		if seen[key] {
			if key == KeyContainers {
				return yamlErrorf(keyNode, "containers are already defined")
			}
			return yamlErrorf(keyNode, "%s", duplicateHookMessage(key))
		}
		seen[key] = true

		var err error
		switch key {
		case KeyContainers:
			out.Containers, err = decodeContainers(valueNode)
		case KeySetup:
			out.Setup, err = decodeHook(valueNode, key)
		case KeyTeardown:
			out.Teardown, err = decodeHook(valueNode, key)
		case KeyRouter:
			out.Router, err = decodeHook(valueNode, key)
		default:
			err = yamlErrorf(keyNode, "unexpected token %q, expected one of %s, %s, %s, %s",
				key, KeyContainers, KeyTeardown, KeySetup, KeyRouter)
		}
		if err != nil {
			return err
		}
	}
	*s = out
	return nil
}

func decodeContainers(node *yaml.Node) ([]ContainerProvider, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, yamlErrorf(node, "%s must be a list", KeyContainers)
	}
	providers := make([]ContainerProvider, 0, len(node.Content))
	for _, elem := range node.Content {
		if elem.Kind != yaml.ScalarNode {
			return nil, yamlErrorf(elem, "expected a literal string, a path to a function, or a call expression")
		}
		p, err := ParseElement(elem.Value)
		if err != nil {
			return nil, yamlErrorf(elem, "%s", err)
		}
		providers = append(providers, p)
	}
	return providers, nil
}

func decodeHook(node *yaml.Node, key string) (*HookRef, error) {
	if node.Kind == yaml.ScalarNode && node.ShortTag() == "!!bool" {
		var enabled bool
		if err := node.Decode(&enabled); err != nil {
			return nil, err
		}
		if !enabled {
			return nil, nil
		}
		return &HookRef{Name: key, Implicit: true}, nil
	}
	if node.Kind != yaml.ScalarNode {
		return nil, yamlErrorf(node, "expected a literal string or valid path to a function for a %s function", key)
	}
	src := node.Value
	if isPath(src) {
		return &HookRef{Name: src}, nil
	}
	name, err := parseHookExpr(src, key)
	if err != nil {
		return nil, yamlErrorf(node, "%s", err)
	}
	return &HookRef{Name: name}, nil
}

func yamlErrorf(node *yaml.Node, format string, args ...interface{}) error {
	return fmt.Errorf("line %d: %s", node.Line, fmt.Sprintf(format, args...))
}
