package pypi

import (
	"errors"
	"fmt"

	"github.com/kolo/xmlrpc"
)

// FaultError is an XML-RPC fault returned by the index.
type FaultError struct {
	Code   int
	String string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("xmlrpc fault %d: %s", e.Code, e.String)
}

// searchHit is one entry of a search result. Members without a field here,
// summary included, are skipped; the index sends some of them as nil.
type searchHit struct {
	Name    string `xmlrpc:"name"`
	Version string `xmlrpc:"version"`
}

func encodeCall(method string, params ...any) ([]byte, error) {
	body, err := xmlrpc.EncodeMethodCall(method, params...)
	if err != nil {
		return nil, fmt.Errorf("encoding %s call: %w", method, err)
	}
	return body, nil
}

// decodeResponse unmarshals the first return value of an XML-RPC response
// into v. A fault is returned as a *FaultError.
func decodeResponse(data []byte, v any) error {
	resp := xmlrpc.Response(data)
	if err := resp.Err(); err != nil {
		var fault xmlrpc.FaultError
		if errors.As(err, &fault) {
			return &FaultError{Code: fault.Code, String: fault.String}
		}
		return fmt.Errorf("parsing xmlrpc fault: %w", err)
	}
	if err := resp.Unmarshal(v); err != nil {
		return fmt.Errorf("parsing xmlrpc response: %w", err)
	}
	return nil
}
