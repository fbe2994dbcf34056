package quickbooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Veraticus/tally/internal/common"
)

// APIError is a non-2xx response from the query endpoint. It matches common.ErrProviderAPI,
// and a 401 also matches common.ErrAuthExpired.
type APIError struct {
	EntityType EntityType
	Body       string
	StatusCode int
}

func (e *APIError) Error() string {
	msg := faultMessage(e.Body)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("quickbooks %s query failed with status %d: %s", e.EntityType, e.StatusCode, msg)
}

// Is reports whether target is one of the sentinel errors this response maps to.
func (e *APIError) Is(target error) bool {
	switch {
	case errors.Is(target, common.ErrProviderAPI):
		return true
	case errors.Is(target, common.ErrAuthExpired):
		return e.StatusCode == http.StatusUnauthorized
	default:
		return false
	}
}

type faultBody struct {
	Fault struct {
		Type  string `json:"type"`
		Error []struct {
			Message string `json:"Message"`
			Detail  string `json:"Detail"`
			Code    string `json:"code"`
		} `json:"Error"`
	} `json:"Fault"`
}

// faultMessage extracts the first error of a provider Fault payload, if the body is one.
func faultMessage(body string) string {
	var fb faultBody
	if err := json.Unmarshal([]byte(body), &fb); err != nil || len(fb.Fault.Error) == 0 {
		return ""
	}
	first := fb.Fault.Error[0]
	if first.Detail != "" {
		return fmt.Sprintf("%s (%s)", first.Message, first.Detail)
	}
	return first.Message
}
