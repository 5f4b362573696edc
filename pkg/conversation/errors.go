package conversation

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

// ErrInvalidTransition matches every rejected edge through errors.Is.
var ErrInvalidTransition = errors.New("invalid conversation state transition")

// TransitionError describes a rejected edge. The stored state is left unchanged.
type TransitionError struct {
	From    State
	To      State
	Allowed []State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition conversation from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ToHTTPError renders the rejection as a 409 carrying the allowed targets.
func (e *TransitionError) ToHTTPError() *httperror.HTTPError {
	allowed := make([]string, 0, len(e.Allowed))
	for _, s := range e.Allowed {
		allowed = append(allowed, string(s))
	}
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).
		AddMetaValue("from", string(e.From)).
		AddMetaValue("to", string(e.To)).
		AddMetaValue("allowed", strings.Join(allowed, ","))
}
