package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	nethttp "net/http"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func respondJSON(w nethttp.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// decodeBody reads a JSON body into dst and runs its validate tags. An empty
// body leaves dst at its zero value.
func decodeBody(r *nethttp.Request, dst any) error {
	dec := json.NewDecoder(nethttp.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("bad json: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return err
	}
	return nil
}
