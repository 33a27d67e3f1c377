// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package schema

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/goccy/go-json"

	"github.com/xeipuuv/gojsonschema"
)

// Validator validates JSON documents against a set of compiled schemas,
// addressed by their $id.
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// NewValidatorFromFS creates a new Validator using schemas from schemaFS.
// Json files at the root of the file system become top level schemas,
// json files in refs/ become references. The refs directory is optional.
func NewValidatorFromFS(schemaFS fs.FS) (*Validator, error) {
	schemas, err := readSchemaDir(schemaFS, ".")
	if err != nil {
		return nil, err
	}
	refs, err := readSchemaDir(schemaFS, "refs")
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return NewValidator(schemas, refs)
}

func readSchemaDir(schemaFS fs.FS, dir string) ([]string, error) {
	files, err := fs.ReadDir(schemaFS, dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read dir %w", err)
	}
	var schemas []string
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		path := f.Name()
		if dir != "." {
			path = dir + "/" + f.Name()
		}
		data, err := fs.ReadFile(schemaFS, path)
		if err != nil {
			return nil, fmt.Errorf("cannot read file '%s' %w", path, err)
		}
		schemas = append(schemas, string(data))
	}
	return schemas, nil
}

// NewValidator creates a new Validator from top level schemas and refs.
// Top level schemas cannot reference each other, only schemas from refs.
// Every top level schema must carry an $id.
func NewValidator(schemas []string, refs []string) (*Validator, error) {
	validator := Validator{schemas: make(map[string]*gojsonschema.Schema)}
	for _, schemaJSON := range schemas {
		id, compiled, err := compileSchema(schemaJSON, refs)
		if err != nil {
			return nil, err
		}
		validator.schemas[id] = compiled
	}
	return &validator, nil
}

func compileSchema(schemaJSON string, refs []string) (string, *gojsonschema.Schema, error) {
	var s struct {
		ID string `json:"$id"`
	}
	if err := json.Unmarshal([]byte(schemaJSON), &s); err != nil {
		return "", nil, fmt.Errorf("parse error '%v' in schema: '%s'", err, schemaJSON)
	}
	if s.ID == "" {
		return "", nil, fmt.Errorf("schema does not contain $id: '%s'", schemaJSON)
	}

	sl := gojsonschema.NewSchemaLoader()
	for _, ref := range refs {
		if err := sl.AddSchemas(gojsonschema.NewStringLoader(ref)); err != nil {
			return "", nil, fmt.Errorf("cannot add ref %s %s", ref, err)
		}
	}
	compiled, err := sl.Compile(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return "", nil, fmt.Errorf("cannot compile schema %s %s", s.ID, err)
	}
	return s.ID, compiled, nil
}

// HasSchema returns true if schemaID is known
func (v *Validator) HasSchema(schemaID string) bool {
	_, ok := v.schemas[schemaID]
	return ok
}

// ValidateStruct validates the given object against schemaID. If no error
// is returned, the object is valid.
func (v *Validator) ValidateStruct(json interface{}, schemaID string) error {
	return v.validate(gojsonschema.NewGoLoader(json), schemaID)
}

// ValidateString validates the given json document against schemaID. If no
// error is returned, the document is valid.
func (v *Validator) ValidateString(json, schemaID string) error {
	return v.validate(gojsonschema.NewStringLoader(json), schemaID)
}

// ValidateBytes validates the given json document against schemaID. If no
// error is returned, the document is valid.
func (v *Validator) ValidateBytes(json []byte, schemaID string) error {
	return v.validate(gojsonschema.NewBytesLoader(json), schemaID)
}

func (v *Validator) validate(loader gojsonschema.JSONLoader, schemaID string) error {
	schema, ok := v.schemas[schemaID]
	if !ok {
		return fmt.Errorf("there is no schema %s ", schemaID)
	}

	result, err := schema.Validate(loader)
	if err != nil {
		return fmt.Errorf("cannot validate with schema %s %s", schemaID, err)
	}
	if result.Valid() {
		return nil
	}

	var failures strings.Builder
	failures.WriteString("the document is not valid :\n")
	for _, e := range result.Errors() {
		fmt.Fprintf(&failures, "- %s\n", e)
	}
	return errors.New(failures.String())
}
