// SPDX-License-Identifier: MPL-2.0

package runenv

import (
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/caarlos0/env/v11"

	"github.com/rmgprov/rmgprov/internal/pipeline"
)

// ErrMissingVariable is the sentinel error wrapped by MissingVariableError.
var ErrMissingVariable = errors.New("required runtime variable missing")

type (
	// ScriptEnv is the host configuration an entry script reads.
	ScriptEnv interface {
		// Forward returns the variables to pass into the container.
		Forward() map[string]string
	}

	// ModelsEnv is read by the model download script. PAT is an optional
	// access token for the model repository.
	ModelsEnv struct {
		PAT string `env:"PAT"`
	}

	// SchemasEnv is read by the schema generation script.
	SchemasEnv struct {
		SchemaEndpoint string `env:"SCHEMA_ENDPOINT,required,notEmpty"`
	}

	// MissingVariableError is returned when a script's required variables are absent.
	MissingVariableError struct {
		Script string
		Err    error
	}

	noEnv struct{}
)

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("entry script %s cannot start: %v", e.Script, e.Err)
}

func (e *MissingVariableError) Unwrap() []error { return []error{ErrMissingVariable, e.Err} }

func (e ModelsEnv) Forward() map[string]string {
	out := map[string]string{}
	if e.PAT != "" {
		out["PAT"] = e.PAT
	}
	return out
}

func (e SchemasEnv) Forward() map[string]string {
	return map[string]string{"SCHEMA_ENDPOINT": e.SchemaEndpoint}
}

func (noEnv) Forward() map[string]string { return map[string]string{} }

// HostEnviron returns the process environment as a map.
func HostEnviron() map[string]string {
	return env.ToMap(os.Environ())
}

// ResolveScriptEnv decodes the variables the entry script needs from environ.
// Scripts without declared variables get nothing forwarded.
func ResolveScriptEnv(script string, environ map[string]string) (ScriptEnv, error) {
	name := path.Base(script)
	var target ScriptEnv
	switch name {
	case pipeline.ModelsScript:
		var e ModelsEnv
		if err := env.ParseWithOptions(&e, env.Options{Environment: environ}); err != nil {
			return nil, &MissingVariableError{Script: name, Err: err}
		}
		target = e
	case pipeline.SchemasScript:
		var e SchemasEnv
		if err := env.ParseWithOptions(&e, env.Options{Environment: environ}); err != nil {
			return nil, &MissingVariableError{Script: name, Err: err}
		}
		target = e
	default:
		target = noEnv{}
	}
	return target, nil
}
