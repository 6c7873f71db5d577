// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ImageConfig is the subset of an image's runtime configuration that
// provisioning inspects.
type ImageConfig struct {
	Env        []string          `json:"Env"`
	Cmd        []string          `json:"Cmd"`
	Entrypoint []string          `json:"Entrypoint"`
	WorkingDir string            `json:"WorkingDir"`
	User       string            `json:"User"`
	Labels     map[string]string `json:"Labels"`
}

// ParseImageConfig decodes the JSON printed by `image inspect --format '{{json .Config}}'`.
func ParseImageConfig(data []byte) (*ImageConfig, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return &ImageConfig{}, nil
	}
	var cfg ImageConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode image config: %w", err)
	}
	return &cfg, nil
}

// EnvValue returns the value of an environment variable recorded in the image.
func (c *ImageConfig) EnvValue(key string) (string, bool) {
	prefix := key + "="
	for _, kv := range c.Env {
		if v, ok := strings.CutPrefix(kv, prefix); ok {
			return v, true
		}
	}
	return "", false
}
