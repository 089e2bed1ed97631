// Command validate checks render requests on disk against the same rules the
// HTTP API applies, so a bad composition is caught before it is submitted.
//
// Usage:
//
//	validate [dir]
//
// dir defaults to ./requests. JSON and YAML files are accepted.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/cinevideo/api/internal/model"
	"github.com/cinevideo/api/internal/timeline"
)

func main() {
	dir := "requests"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}
	os.Exit(run(dir, os.Stdout, os.Stderr))
}

func run(dir string, stdout, stderr io.Writer) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(stdout, "%s does not exist, nothing to validate\n", dir)
			return 0
		}
		fmt.Fprintf(stderr, "failed to read %s: %v\n", dir, err)
		return 1
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml":
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		fmt.Fprintf(stdout, "no request files found in %s\n", dir)
		return 0
	}
	sort.Strings(files)

	v := model.NewValidator()
	failed := 0
	for _, name := range files {
		frames, err := validateFile(v, filepath.Join(dir, name))
		if err != nil {
			failed++
			fmt.Fprintf(stderr, "FAIL %s\n", name)
			var verr *model.ValidationError
			if errors.As(err, &verr) {
				keys := make([]string, 0, len(verr.Fields))
				for k := range verr.Fields {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(stderr, "  - %s: %s\n", k, verr.Fields[k])
				}
			} else {
				fmt.Fprintf(stderr, "  - %v\n", err)
			}
			continue
		}
		fmt.Fprintf(stdout, "ok   %s (%d frames)\n", name, frames)
	}

	if failed > 0 {
		fmt.Fprintf(stderr, "\n%d of %d request files are invalid\n", failed, len(files))
		return 1
	}
	fmt.Fprintf(stdout, "\nall %d request files are valid\n", len(files))
	return 0
}

func validateFile(v *validator.Validate, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		data, err = yamlToJSON(data)
		if err != nil {
			return 0, err
		}
	}

	var c model.Composition
	if err := json.Unmarshal(data, &c); err != nil {
		return 0, fmt.Errorf("invalid json: %w", err)
	}
	if err := c.Validate(v); err != nil {
		return 0, err
	}
	return timeline.TotalFrames(&c), nil
}

// yamlToJSON routes YAML through the JSON decoder so both formats share the
// same field names and transition parsing.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}
	return json.Marshal(doc)
}
