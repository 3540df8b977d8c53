// cmd/assistant/loggers.go
package main

import (
	"hdb-assistant/internal/common/logger"
	"hdb-assistant/internal/orchestrator"
	"hdb-assistant/internal/stages/classifyintent"
	"hdb-assistant/internal/stages/generatesql"
	"hdb-assistant/internal/stages/predictprice"
	"hdb-assistant/internal/stages/resolvefeatures"
	"hdb-assistant/internal/stages/synthesize"
)

// Each stage declares its own Logger interface, so With cannot be satisfied
// by logger.Logger directly. These wrappers bridge the shared logger into
// every stage's local interface.

type stageLogger struct {
	l logger.Logger
}

func (s stageLogger) Info(msg string, fields map[string]interface{})  { s.l.Info(msg, fields) }
func (s stageLogger) Warn(msg string, fields map[string]interface{})  { s.l.Warn(msg, fields) }
func (s stageLogger) Error(msg string, fields map[string]interface{}) { s.l.Error(msg, fields) }

type classifyLogger struct{ stageLogger }

func (c classifyLogger) With(fields map[string]interface{}) classifyintent.Logger {
	return classifyLogger{stageLogger{c.l.With(fields)}}
}

type resolveLogger struct{ stageLogger }

func (r resolveLogger) With(fields map[string]interface{}) resolvefeatures.Logger {
	return resolveLogger{stageLogger{r.l.With(fields)}}
}

type analysisLogger struct{ stageLogger }

func (a analysisLogger) With(fields map[string]interface{}) generatesql.Logger {
	return analysisLogger{stageLogger{a.l.With(fields)}}
}

type predictLogger struct{ stageLogger }

func (p predictLogger) With(fields map[string]interface{}) predictprice.Logger {
	return predictLogger{stageLogger{p.l.With(fields)}}
}

type synthesisLogger struct{ stageLogger }

func (s synthesisLogger) With(fields map[string]interface{}) synthesize.Logger {
	return synthesisLogger{stageLogger{s.l.With(fields)}}
}

type pipelineLogger struct{ stageLogger }

func (p pipelineLogger) With(fields map[string]interface{}) orchestrator.Logger {
	return pipelineLogger{stageLogger{p.l.With(fields)}}
}
