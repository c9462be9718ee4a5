// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"os/exec"
)

// ExecutableChecker checks that a program resolves through PATH (or is an
// executable path).
type ExecutableChecker struct {
	name string
	bin  string
}

// NewExecutableChecker creates a checker for bin.
func NewExecutableChecker(name, bin string) *ExecutableChecker {
	return &ExecutableChecker{name: name, bin: bin}
}

func (c *ExecutableChecker) Name() string {
	return c.name
}

func (c *ExecutableChecker) Check(_ context.Context) CheckResult {
	if c.bin == "" {
		return CheckResult{Status: StatusUnhealthy, Error: "no executable configured"}
	}
	path, err := exec.LookPath(c.bin)
	if err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Error:   err.Error(),
			Message: c.bin,
		}
	}
	return CheckResult{Status: StatusHealthy, Message: path}
}

// FuncChecker adapts a function to Checker.
type FuncChecker struct {
	name  string
	check func(ctx context.Context) CheckResult
}

// NewFuncChecker wraps check under name.
func NewFuncChecker(name string, check func(ctx context.Context) CheckResult) *FuncChecker {
	return &FuncChecker{name: name, check: check}
}

func (c *FuncChecker) Name() string {
	return c.name
}

func (c *FuncChecker) Check(ctx context.Context) CheckResult {
	return c.check(ctx)
}
