package core

import (
	"context"

	"github.com/eskrenkovic/mediator-go"
)

// Validator marks a request as self-validating. Validation runs in the
// mediator pipeline before the handler, so a failing request never touches
// the store.
type Validator interface {
	Validate() error
}

type RequestValidationBehavior struct{}

func (b *RequestValidationBehavior) Handle(
	ctx context.Context,
	request interface{},
	next mediator.RequestHandlerFunc,
) (interface{}, error) {
	if request, ok := request.(Validator); ok {
		if err := request.Validate(); err != nil {
			if commandErr, ok := err.(CommandError); ok {
				return nil, commandErr
			}

			return nil, NewCommandError(400, ErrorBody{
				Message: err.Error(),
				Code:    CodeValidationError,
			}, WithReason("request validation failed"))
		}
	}

	return next(ctx, request)
}
