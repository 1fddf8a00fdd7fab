// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package tool maps typed job parameters onto the command line of a
// hydra-compatible login cracker.
package tool

import (
	"fmt"
	"strconv"

	"github.com/vulntor/attackq/pkg/job"
	"github.com/vulntor/attackq/pkg/procexec"
)

// DefaultPath is looked up in PATH when no tool path is configured.
const DefaultPath = "hydra"

// Builder renders commands. The zero value runs DefaultPath.
type Builder struct {
	// Path of the tool binary.
	Path string
	// ExtraArgs are inserted before the target, after the generated flags.
	ExtraArgs []string
	// Env is appended to the child environment; nil inherits ours.
	Env []string
	// Dir is the working directory; relative wordlists resolve against it.
	Dir string
}

// Build returns the command for one attempt of j.
func (b Builder) Build(j job.Job, p job.Params) (procexec.Command, error) {
	if p == nil {
		return procexec.Command{}, fmt.Errorf("job %s: no parameters", j.ID)
	}
	if p.JobType() != j.Spec.Type {
		return procexec.Command{}, fmt.Errorf("job %s: parameters are %s, job is %s", j.ID, p.JobType(), j.Spec.Type)
	}

	// -I skips the restore-file prompt left behind by an interrupted run.
	args := []string{"-I"}
	var common job.Common
	switch v := p.(type) {
	case job.BruteforceParams:
		args = append(args, "-L", v.UserList, "-P", v.PassList)
		common = v.Common
	case job.SprayParams:
		args = append(args, "-L", v.UserList, "-p", v.Password)
		common = v.Common
	case job.ComboParams:
		args = append(args, "-C", v.ComboList)
		common = v.Common
	case job.HTTPFormParams:
		args = append(args, "-L", v.UserList, "-P", v.PassList)
		common = v.Common
	default:
		return procexec.Command{}, fmt.Errorf("job %s: unsupported parameters %T", j.ID, p)
	}

	if common.Port > 0 {
		args = append(args, "-s", strconv.Itoa(common.Port))
	}
	if common.Tasks > 0 {
		args = append(args, "-t", strconv.Itoa(common.Tasks))
	}
	if common.StopOnFirst {
		args = append(args, "-f")
	}
	args = append(args, b.ExtraArgs...)
	args = append(args, j.Spec.Target, job.ServiceOf(p))
	if form, ok := p.(job.HTTPFormParams); ok {
		args = append(args, form.FormArg())
	}

	return procexec.Command{
		Path:    b.path(),
		Args:    args,
		Env:     b.env(),
		Dir:     b.Dir,
		Timeout: j.Spec.Timeout,
	}, nil
}

func (b Builder) path() string {
	if b.Path == "" {
		return DefaultPath
	}
	return b.Path
}

func (b Builder) env() []string {
	if len(b.Env) == 0 {
		return nil
	}
	return append(environ(), b.Env...)
}
