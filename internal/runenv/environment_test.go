// SPDX-License-Identifier: MPL-2.0

package runenv

import (
	"testing"

	"github.com/rmgprov/rmgprov/internal/pipeline"
)

func TestFromSettings(t *testing.T) {
	t.Parallel()

	env := FromSettings(pipeline.DefaultSettings())

	got := env.Dockerfile()
	want := `ENV PYTHONUNBUFFERED="1" PYTHONPATH="/rmg/RMG-Py:$PYTHONPATH"`
	if got != want {
		t.Errorf("Dockerfile() = %s, want %s", got, want)
	}

	v, ok := env.Lookup(ModulePathKey)
	if !ok || !v.Prepend || v.Value != "/rmg/RMG-Py" {
		t.Errorf("Lookup(PYTHONPATH) = %+v, %v", v, ok)
	}
}

func TestEnvironment_VarsIsACopy(t *testing.T) {
	t.Parallel()

	env := FromSettings(pipeline.DefaultSettings())
	vars := env.Vars()
	vars[0].Value = "0"

	if v, _ := env.Lookup(UnbufferedKey); v.Value != "1" {
		t.Errorf("environment was mutated through Vars(): %s=%s", v.Key, v.Value)
	}
}

func TestEnvironment_Mismatches(t *testing.T) {
	t.Parallel()

	env := FromSettings(pipeline.DefaultSettings())

	tests := []struct {
		name  string
		image map[string]string
		want  int
	}{
		{"satisfied with empty previous path", map[string]string{"PYTHONUNBUFFERED": "1", "PYTHONPATH": "/rmg/RMG-Py:"}, 0},
		{"satisfied with previous path", map[string]string{"PYTHONUNBUFFERED": "1", "PYTHONPATH": "/rmg/RMG-Py:/opt/lib"}, 0},
		{"exact path", map[string]string{"PYTHONUNBUFFERED": "1", "PYTHONPATH": "/rmg/RMG-Py"}, 0},
		{"path appended instead of prepended", map[string]string{"PYTHONUNBUFFERED": "1", "PYTHONPATH": "/opt/lib:/rmg/RMG-Py"}, 1},
		{"buffered output", map[string]string{"PYTHONUNBUFFERED": "0", "PYTHONPATH": "/rmg/RMG-Py"}, 1},
		{"nothing set", map[string]string{}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := env.Mismatches(func(k string) (string, bool) {
				v, ok := tt.image[k]
				return v, ok
			})
			if len(got) != tt.want {
				t.Errorf("Mismatches() = %v, want %d entries", got, tt.want)
			}
		})
	}
}
