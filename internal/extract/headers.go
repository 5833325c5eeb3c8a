package extract

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultHeaders lists section headers recognized as the start of a
// references region, already lowercased and whitespace-collapsed.
var DefaultHeaders = []string{
	"references",
	"reference list",
	"bibliography",
	"works cited",
	"literature cited",
	"cited literature",
	"références",
	"bibliographie",
	"literatur",
	"literaturverzeichnis",
	"referencias",
	"bibliografía",
	"referências",
	"riferimenti bibliografici",
	"参考文献",
	"引用文献",
	"참고문헌",
}

// headersFile is the YAML shape for header list overrides.
type headersFile struct {
	Headers []string `yaml:"headers"`
}

// LoadHeaders reads a YAML header list. The file replaces the default list
// entirely so deployments can trim as well as extend it.
func LoadHeaders(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading headers file: %w", err)
	}

	var f headersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing headers file: %w", err)
	}
	if len(f.Headers) == 0 {
		return nil, fmt.Errorf("headers file %s lists no headers", path)
	}
	return f.Headers, nil
}
