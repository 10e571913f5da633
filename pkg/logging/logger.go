/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package logging

import (
	"go.uber.org/zap"
)

// Logger is the subset of the *zap.Logger which the engine utilizes.
// It has been abstracted as an interface to allow easier mocking and to
// make it possible to write a shim to support other loggers if necessary.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

// The nil logger drops all messages.
type nilLogger struct{}

func (nl *nilLogger) Debug(msg string, fields ...zap.Field) {}
func (nl *nilLogger) Info(msg string, fields ...zap.Field)  {}
func (nl *nilLogger) Warn(msg string, fields ...zap.Field)  {}
func (nl *nilLogger) Error(msg string, fields ...zap.Field) {}

// NilLogger drops all log messages.
var NilLogger Logger = &nilLogger{}

// Console returns a zap development logger suitable for interactive runs.
// It panics if the logger cannot be constructed, which can only happen
// with an invalid custom configuration.
func Console() Logger {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return logger
}
