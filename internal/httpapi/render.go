package httpapi

import (
	"net/http"

	"codeberg.org/mutker/speedctl/internal/errors"
	"github.com/go-chi/render"
)

// ErrResponse is the JSON body of a failed request.
type ErrResponse struct {
	HTTPStatusCode int    `json:"-"`
	Code           string `json:"code,omitempty"`
	Error          string `json:"error"`
}

func (e *ErrResponse) Render(_ http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func errResponse(status int, err error) render.Renderer {
	return &ErrResponse{
		HTTPStatusCode: status,
		Code:           errors.CodeOf(err).String(),
		Error:          err.Error(),
	}
}
