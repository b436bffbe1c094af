// Copyright 2025 StackVM Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	stderrors "errors"
)

const InterruptExitCode = 130

var ErrInterrupted = stderrors.New("interrupt received")

func IsInterrupted(err error) bool {
	return stderrors.Is(err, ErrInterrupted)
}
