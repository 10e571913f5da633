/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package logging

import (
	"go.uber.org/zap"
)

type decoratedLogger struct {
	logger Logger
	fields []zap.Field
}

func (dl *decoratedLogger) Debug(msg string, fields ...zap.Field) {
	dl.logger.Debug(msg, append(dl.fields, fields...)...)
}

func (dl *decoratedLogger) Info(msg string, fields ...zap.Field) {
	dl.logger.Info(msg, append(dl.fields, fields...)...)
}

func (dl *decoratedLogger) Warn(msg string, fields ...zap.Field) {
	dl.logger.Warn(msg, append(dl.fields, fields...)...)
}

func (dl *decoratedLogger) Error(msg string, fields ...zap.Field) {
	dl.logger.Error(msg, append(dl.fields, fields...)...)
}

// Decorate returns a Logger that attaches the given fields to every message.
// Components use it to stamp their identity onto their log output.
func Decorate(logger Logger, fields ...zap.Field) Logger {
	return &decoratedLogger{
		logger: logger,
		fields: fields,
	}
}

// Named is shorthand for decorating a logger with a component name.
func Named(logger Logger, name string) Logger {
	return Decorate(logger, zap.String("component", name))
}
