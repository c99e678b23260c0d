package telemetry

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
)

// SlogAPI implements API using the log/slog package.
type SlogAPI struct {
	logger *slog.Logger
}

type SlogOptions struct {
	// enables debug records
	Verbose bool
	// colors the output, only wanted on terminals
	Color bool
}

// NewSlogAPI creates a SlogAPI writing tinted text records to `out`, every record carries
// a freshly generated `run_id` so that the lines of one scrape can be told apart.
func NewSlogAPI(out io.Writer, opts SlogOptions) SlogAPI {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handler := tint.NewHandler(out, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    !opts.Color,
	})
	logger := slog.New(handler).With("run_id", uuid.NewString())
	return SlogAPI{logger: logger}
}

// Logger returns the underlying logger.
func (s SlogAPI) Logger() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

func (SlogAPI) formatParams(out *[]any, params []any) {
	for i, p := range params {
		*out = append(
			*out,
			fmt.Sprintf("params.%d", i),
			p,
		)
	}
}

func (s SlogAPI) ReportBroken(id string, params ...any) {
	remainingPairs := []any{"id", id}
	s.formatParams(&remainingPairs, params)
	s.Logger().Error("broken component", remainingPairs...)
}

func (s SlogAPI) ReportWarning(id string, params ...any) {
	remainingPairs := []any{"id", id}
	s.formatParams(&remainingPairs, params)
	s.Logger().Warn("warning", remainingPairs...)
}

func (s SlogAPI) ReportDebug(message string, params ...any) {
	remainingPairs := []any{}
	s.formatParams(&remainingPairs, params)
	s.Logger().Debug(message, remainingPairs...)
}

// ReportInfo takes key/value pairs like slog does, progress lines are meant to be read.
func (s SlogAPI) ReportInfo(message string, params ...any) {
	s.Logger().Info(message, params...)
}

func (s SlogAPI) ReportCount(id string, count int64) {
	s.Logger().Info("count", "id", id, "n", count)
}
