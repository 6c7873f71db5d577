// SPDX-License-Identifier: MPL-2.0

// Package pipeline defines the provisioning pipeline: the eight ordered steps
// that turn a base image into a runtime image for the RMG toolkit, the
// variant records that select which optional steps run, and the runner that
// drives a StepExecutor through a plan.
//
// A plan is a total order. Each step declares the capabilities it needs from
// earlier steps and the capabilities it leaves behind, and BuildPlan rejects
// any plan in which a step would run before its providers. The runner is
// fail-fast: the first failing step ends the run, later steps never start,
// and the executor is told to discard everything it built.
//
//	plan, err := pipeline.BuildPlan(settings, variant)
//	result, err := pipeline.NewRunner(executor).Run(ctx, plan)
package pipeline
