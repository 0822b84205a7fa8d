package report

import (
	"encoding/json"

	"github.com/goliatone/go-errors"
)

// DecodeRequest parses a queued report request.
func DecodeRequest(body []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return Request{}, errors.Wrap(err, errors.CategoryBadInput, "decode report request").
			WithTextCode("MALFORMED_REPORT_REQUEST")
	}
	return req, nil
}
