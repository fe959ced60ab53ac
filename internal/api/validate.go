package api

import (
	"net/http"

	"github.com/buger/jsonparser"
	"github.com/kat-co/vala"

	"github.com/Europeia/eurocore/internal/apierr"
)

// requireJSONKeys does a reflection-free pass over the raw request body to
// confirm every named top-level key is present before the full decode, so a
// malformed request is rejected without allocating the destination struct.
func requireJSONKeys(body []byte, keys ...string) error {
	for _, key := range keys {
		if _, _, _, err := jsonparser.Get(body, key); err != nil {
			return apierr.ErrInvalidUsername
		}
	}
	return nil
}

// requireNonEmpty checks that every named string field is non-blank and
// maps a failure onto the InvalidUsername sentinel — the closest of the
// input error taxonomy to "a required string field was left blank".
func requireNonEmpty(fields map[string]string) error {
	checks := make([]vala.Checker, 0, len(fields))
	for name, value := range fields {
		checks = append(checks, vala.StringNotEmpty(value, name))
	}
	if err := vala.BeginValidation().Validate(checks...).Check(); err != nil {
		return apierr.ErrInvalidUsername
	}
	return nil
}

// nationsHeader writes the comma-separated known-nation list onto a
// response.
func nationsHeader(w http.ResponseWriter, headerName string, names []string) {
	joined := ""
	for i, n := range names {
		if i > 0 {
			joined += ","
		}
		joined += n
	}
	w.Header().Set(headerName, joined)
}
