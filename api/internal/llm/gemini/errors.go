package gemini

import (
	"errors"

	"google.golang.org/api/googleapi"

	"study-agents/api/internal/llm"
)

type httpCoder interface {
	HTTPCode() int
}

// wrapErr converts an SDK error into *llm.Error, keeping the HTTP status when
// the SDK exposes one.
func wrapErr(op string, err error) error {
	return llm.NewError(op, statusOf(err), err)
}

func statusOf(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	var hc httpCoder
	if errors.As(err, &hc) {
		if code := hc.HTTPCode(); code > 0 {
			return code
		}
	}
	return 0
}
