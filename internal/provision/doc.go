// SPDX-License-Identifier: MPL-2.0

// Package provision turns a pipeline plan into container images.
//
// Renderer produces the Dockerfile instructions for each step; shell bodies
// are parsed and re-printed with mvdan.cc/sh so malformed scripts are caught
// before any build starts. RenderDockerfile emits one complete Dockerfile for
// a plan. LayeredExecutor implements pipeline.StepExecutor by building one
// stage image per step on top of the previous one, so a failing step leaves
// the earlier stages untouched and the pipeline can report exactly which step
// failed.
package provision
