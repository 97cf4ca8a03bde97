// Package request parses inbound HTTP parameters.
package request

import (
	"fmt"
	"net/http"
	"strconv"
)

// RequesterID reads the {id} path value as a requester id.
func RequesterID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid requester id %q", raw)
	}

	return id, nil
}
