// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"

	"github.com/holomush/sessionauth/internal/auth"
)

// SchemaBaseURL prefixes the $id of every request schema.
const SchemaBaseURL = "https://holomush.dev/schemas/sessionauth/"

// SignupRequest is the body of POST /auth/signup.
type SignupRequest struct {
	FirstName string `json:"firstName" jsonschema:"maxLength=100"`
	LastName  string `json:"lastName" jsonschema:"maxLength=100"`
	Username  string `json:"username" jsonschema:"maxLength=30"`
	Email     string `json:"email" jsonschema:"maxLength=254"`
	Password  string `json:"password" jsonschema:"maxLength=1024"`
}

// Fields converts the request into signup fields.
func (r SignupRequest) Fields() auth.SignupFields {
	return auth.SignupFields{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Username:  r.Username,
		Email:     r.Email,
		Password:  r.Password,
	}
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" jsonschema:"maxLength=254"`
	Password string `json:"password" jsonschema:"maxLength=1024"`
}

// Submission converts the request into a credential submission.
func (r LoginRequest) Submission() auth.Submission {
	return auth.Submission{Email: r.Email, Password: r.Password}
}

// Schema names.
const (
	SchemaSignup = "signup"
	SchemaLogin  = "login"
)

var schemaTypes = map[string]struct {
	value       any
	title       string
	description string
}{
	SchemaSignup: {&SignupRequest{}, "Signup request", "Body of POST /auth/signup"},
	SchemaLogin:  {&LoginRequest{}, "Login request", "Body of POST /auth/login"},
}

// SchemaNames lists the generated request schemas.
func SchemaNames() []string {
	return []string{SchemaSignup, SchemaLogin}
}

// SchemaID returns the $id of the named schema.
func SchemaID(name string) string {
	return SchemaBaseURL + name + ".schema.json"
}

// GenerateSchema reflects the named request type into a JSON Schema.
// Fields are structurally typed but not required: missing fields are
// reported by signup validation together with every other violation.
func GenerateSchema(name string) ([]byte, error) {
	t, ok := schemaTypes[name]
	if !ok {
		return nil, oops.Code("SCHEMA_UNKNOWN").With("schema", name).Errorf("unknown schema %q", name)
	}

	r := jsonschema.Reflector{
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
		AllowAdditionalProperties:  true,
	}
	schema := r.Reflect(t.value)
	schema.ID = jsonschema.ID(SchemaID(name))
	schema.Title = t.title
	schema.Description = t.description

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_GENERATE_FAILED").With("schema", name).Wrap(err)
	}
	return data, nil
}

var (
	compileOnce sync.Once
	compiled    map[string]*jschema.Schema
	compileErr  error
)

// compiledSchema returns the named schema, compiling every schema once.
func compiledSchema(name string) (*jschema.Schema, error) {
	compileOnce.Do(func() {
		c := jschema.NewCompiler()
		for _, n := range SchemaNames() {
			data, err := GenerateSchema(n)
			if err != nil {
				compileErr = err
				return
			}
			doc, err := jschema.UnmarshalJSON(strings.NewReader(string(data)))
			if err != nil {
				compileErr = oops.Code("SCHEMA_COMPILE_FAILED").With("schema", n).Wrap(err)
				return
			}
			if err := c.AddResource(SchemaID(n), doc); err != nil {
				compileErr = oops.Code("SCHEMA_COMPILE_FAILED").With("schema", n).Wrap(err)
				return
			}
		}
		compiled = make(map[string]*jschema.Schema, len(schemaTypes))
		for _, n := range SchemaNames() {
			sch, err := c.Compile(SchemaID(n))
			if err != nil {
				compileErr = oops.Code("SCHEMA_COMPILE_FAILED").With("schema", n).Wrap(err)
				return
			}
			compiled[n] = sch
		}
	})
	if compileErr != nil {
		return nil, compileErr
	}
	sch, ok := compiled[name]
	if !ok {
		return nil, oops.Code("SCHEMA_UNKNOWN").With("schema", name).Errorf("unknown schema %q", name)
	}
	return sch, nil
}

// validateDocument checks a decoded body against the named schema and
// returns its violations, or nil when the body conforms.
func validateDocument(name string, doc any) ([]auth.FieldViolation, error) {
	sch, err := compiledSchema(name)
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(doc); err != nil {
		return violationsFrom(err), nil
	}
	return nil, nil
}

// violationsFrom flattens a schema validation error into field violations.
func violationsFrom(err error) []auth.FieldViolation {
	var ve *jschema.ValidationError
	if !errors.As(err, &ve) {
		return []auth.FieldViolation{{Field: "body", Message: "is not a valid request"}}
	}

	var out []auth.FieldViolation
	var walk func(*jschema.ValidationError)
	walk = func(e *jschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, c := range e.Causes {
				walk(c)
			}
			return
		}
		field := strings.Join(e.InstanceLocation, "/")
		if field == "" {
			field = "body"
		}
		out = append(out, auth.FieldViolation{Field: field, Message: kindMessage(e.ErrorKind)})
	}
	walk(ve)
	return out
}

func kindMessage(k jschema.ErrorKind) string {
	switch k := k.(type) {
	case *kind.Type:
		return "must be of type " + strings.Join(k.Want, " or ")
	case *kind.MaxLength:
		return fmt.Sprintf("must be at most %d characters", k.Want)
	default:
		return "is invalid"
	}
}
