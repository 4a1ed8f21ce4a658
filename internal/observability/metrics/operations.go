// Package metrics holds the shared metric emitters used by services.
package metrics

import (
	"time"

	apperrors "github.com/kaamsathi/kaamsathi-api/internal/errors"
	obserrors "github.com/kaamsathi/kaamsathi-api/internal/observability/errors"
	"github.com/kaamsathi/kaamsathi-api/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Operation captures one service call for metric emission.
type Operation struct {
	// Name is the dotted metric stem, e.g. "application.submit".
	Name     string
	Result   string
	Duration time.Duration
	Err      error
	Tags     map[string]string
}

// EmitOperation emits "<name>.count" and, when a duration is known, "<name>.duration".
// Error results are tagged with the error class and, for application errors, the code.
func EmitOperation(sink statsd.Sink, in Operation) {
	if sink == nil || in.Name == "" {
		return
	}

	tags := CloneTags(in.Tags)
	if tags == nil {
		tags = make(map[string]string, 3)
	}
	result := in.Result
	if result == "" {
		result = ResultSuccess
		if in.Err != nil {
			result = ResultError
		}
	}
	tags["result"] = result

	if in.Err != nil && result == ResultError {
		if code := apperrors.GetCode(in.Err); code != "" {
			tags["error_code"] = string(code)
		} else if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count(in.Name+".count", 1, tags)

	if in.Duration > 0 {
		sink.Timing(in.Name+".duration", in.Duration, CloneTags(tags))
	}
}

// ResultFor maps an error to a result tag.
func ResultFor(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultSuccess
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
