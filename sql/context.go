// Copyright 2024 The aggexec Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sql

import (
	"context"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
)

// Context carries the standard library context, a query-scoped logger, and
// the tracer used to annotate the orchestrator's suspension points. It plays
// the same role the teacher's *sql.Context does for every call in and out of
// the executor: every evaluator, sorter and iterator takes one as its first
// argument.
type Context struct {
	context.Context

	log    *logrus.Entry
	tracer opentracing.Tracer
	pid    uint64
}

// ContextOption configures a Context at construction time.
type ContextOption func(*Context)

// WithLogger attaches a logger to the context.
func WithLogger(l *logrus.Entry) ContextOption {
	return func(c *Context) { c.log = l }
}

// WithTracer attaches an opentracing.Tracer to the context.
func WithTracer(t opentracing.Tracer) ContextOption {
	return func(c *Context) { c.tracer = t }
}

// WithPid sets a process/worker id on the context, readable through Pid.
// sql/rowexec/parallel.go does not read it: a Redistributor identifies
// itself to peers by its own uuid.
func WithPid(pid uint64) ContextOption {
	return func(c *Context) { c.pid = pid }
}

// NewContext wraps a standard library context into a Context.
func NewContext(ctx context.Context, opts ...ContextOption) *Context {
	c := &Context{
		Context: ctx,
		log:     logrus.NewEntry(logrus.StandardLogger()),
		tracer:  opentracing.NoopTracer{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewEmptyContext returns a Context suitable for tests and standalone use.
func NewEmptyContext() *Context {
	return NewContext(context.Background())
}

// GetLogger returns the logger attached to this context.
func (c *Context) GetLogger() *logrus.Entry {
	return c.log
}

// Tracer returns the tracer attached to this context.
func (c *Context) Tracer() opentracing.Tracer {
	return c.tracer
}

// Pid returns the worker id this context belongs to.
func (c *Context) Pid() uint64 {
	return c.pid
}

// CheckInterrupt is the cooperative cancellation point named in spec §5: the
// orchestrator calls it on every input fetch and on every record read while
// reloading a spilled hash batch.
func (c *Context) CheckInterrupt() error {
	select {
	case <-c.Done():
		return ErrInterrupted.New()
	default:
		return nil
	}
}
