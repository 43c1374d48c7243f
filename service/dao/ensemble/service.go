package ensemble

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ensemblehq/conductor/model"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/viant/afs"
	"gopkg.in/yaml.v3"
)

// Service parses ensemble definitions from YAML or JSON documents and
// validates them against the embedded document schema before mapping them
// onto the model.
type Service struct {
	fs     afs.Service
	schema *jsonschema.Schema
}

// New creates a parser service with the document schema pre-compiled.
func New() (*Service, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat()
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal ensemble schema: %w", err)
	}
	const schemaURL = "https://conductor.dev/schemas/ensemble.json"
	if err := compiler.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add ensemble schema resource: %w", err)
	}
	compiled, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile ensemble schema: %w", err)
	}
	return &Service{fs: afs.New(), schema: compiled}, nil
}

// Load loads an ensemble definition from YAML at the specified URL.
func (s *Service) Load(ctx context.Context, URL string) (*model.Ensemble, error) {
	if filepath.Ext(URL) == "" {
		URL += ".yaml"
	}
	data, err := s.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load ensemble from %s: %w", URL, err)
	}
	return s.Parse(URL, data)
}

// DecodeYAML decodes an ensemble definition from YAML.
func (s *Service) DecodeYAML(encoded []byte) (*model.Ensemble, error) {
	return s.Parse("", encoded)
}

// Parse decodes, schema-validates and maps an ensemble document. Malformed
// documents fail with a *ParseError carrying field-level violations.
func (s *Service) Parse(URL string, encoded []byte) (*model.Ensemble, error) {
	var document interface{}
	if err := yaml.Unmarshal(encoded, &document); err != nil {
		return nil, &ParseError{URL: URL, Violations: []string{err.Error()}}
	}
	if violations := s.validate(document); len(violations) > 0 {
		return nil, &ParseError{URL: URL, Violations: violations}
	}

	ensemble := &model.Ensemble{}
	if err := yaml.Unmarshal(encoded, ensemble); err != nil {
		return nil, &ParseError{URL: URL, Violations: []string{err.Error()}}
	}
	if URL != "" {
		ensemble.Source = &model.Source{URL: URL}
	}
	if ensemble.Name == "" {
		ensemble.Name = nameFromURL(URL)
	}
	if issues := ensemble.Validate(); len(issues) > 0 {
		violations := make([]string, 0, len(issues))
		for _, issue := range issues {
			violations = append(violations, issue.Error())
		}
		return nil, &ParseError{URL: URL, Violations: violations}
	}
	return ensemble, nil
}

// validate runs the document through the JSON Schema, collecting leaf
// violations with their instance locations.
func (s *Service) validate(document interface{}) []string {
	// Round-trip through JSON so numbers arrive as json.Number, the form
	// the schema library expects.
	data, err := json.Marshal(document)
	if err != nil {
		return []string{err.Error()}
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(data)))
	if err != nil {
		return []string{err.Error()}
	}
	if err := s.schema.Validate(doc); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			return collectViolations(verr)
		}
		return []string{err.Error()}
	}
	return nil
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		location := "/"
		if len(verr.InstanceLocation) > 0 {
			location = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", location, verr.Error())}
	}
	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}

func nameFromURL(URL string) string {
	base := filepath.Base(URL)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ParseError reports why an ensemble document was rejected, one violation
// per offending field.
type ParseError struct {
	URL        string
	Violations []string
}

func (e *ParseError) Error() string {
	source := e.URL
	if source == "" {
		source = "ensemble document"
	}
	return fmt.Sprintf("failed to parse %s: %s", source, strings.Join(e.Violations, "; "))
}
