package bravemoney

import (
	"github.com/bravemoney/bravemoney/internal/apierror"
	"github.com/bravemoney/bravemoney/model"
)

// Result is the uniform outcome of an engine operation. Business-rule
// failures are carried here rather than as errors, so the presentation layer
// can render them inline; the accompanying error return is reserved for
// caller-contract violations such as a missing identity.
type Result struct {
	Ok               bool               `json:"ok"`
	Code             apierror.ErrorCode `json:"code,omitempty"`
	Message          string             `json:"message"`
	State            model.LedgerState  `json:"state"`
	PersistedToCloud bool               `json:"persisted_to_cloud"`
	AccountNumber    string             `json:"account_number,omitempty"`
}

func successResult(message string, state model.LedgerState, persisted bool) *Result {
	return &Result{
		Ok:               true,
		Message:          message,
		State:            state,
		PersistedToCloud: persisted,
	}
}

func failureResult(code apierror.ErrorCode, message string, state model.LedgerState) *Result {
	return &Result{
		Ok:      false,
		Code:    code,
		Message: message,
		State:   state,
	}
}
