package httpx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// RespondInvalid renders validator field errors as a 400 problem with an invalid list.
func RespondInvalid(w http.ResponseWriter, err error) {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	invalid := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		invalid = append(invalid, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
	}
	ProblemWith(w, ProblemDetail{
		Title:   "Validation Failed",
		Status:  http.StatusBadRequest,
		Detail:  "request body failed validation",
		Invalid: invalid,
	})
}
