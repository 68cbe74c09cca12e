package core

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

func RequestBody[TRequest any](r *http.Request) (TRequest, error) {
	var request TRequest
	err := json.NewDecoder(r.Body).Decode(&request)
	return request, err
}

type JSONWriter struct {
	logger *zap.Logger
}

func NewJSONWriter(logger *zap.Logger) *JSONWriter {
	return &JSONWriter{logger: logger.Named("http")}
}

func (j *JSONWriter) WriteOK(w http.ResponseWriter, r *http.Request, body interface{}) {
	j.WriteResponse(w, r, 200, body)
}

func (j *JSONWriter) WriteCreated(w http.ResponseWriter, r *http.Request, body interface{}) {
	j.WriteResponse(w, r, 201, body)
}

func (j *JSONWriter) WriteNoContent(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(204)
}

func (j *JSONWriter) WriteBadRequest(w http.ResponseWriter, r *http.Request, body interface{}) {
	j.WriteResponse(w, r, 400, body)
}

// WriteCommandError maps a handler error to the wire. Validation and
// not-found payloads pass through unchanged; anything unrecognized is
// normalized to a generic server error while the original is logged.
func (j *JSONWriter) WriteCommandError(w http.ResponseWriter, r *http.Request, err error) {
	commandErr, ok := err.(CommandError)
	if !ok {
		j.logger.Error("unstructured handler error", zap.Error(err))
		j.WriteResponse(w, r, 500, ErrorBody{
			Message: "internal server error",
			Code:    CodeServerError,
		})
		return
	}

	payload := commandErr.Payload
	if payload == nil {
		payload = ErrorBody{Message: "internal server error", Code: CodeServerError}
	}

	if inner, ok := payload.(error); ok {
		if body, ok := inner.(ErrorBody); ok {
			payload = body
		} else {
			payload = ErrorBody{Message: inner.Error(), Code: codeForStatus(commandErr.StatusCode)}
		}
	}

	j.WriteResponse(w, r, commandErr.StatusCode, payload)
}

func (j *JSONWriter) WriteResponse(
	w http.ResponseWriter,
	r *http.Request,
	statusCode int,
	body interface{},
) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if body == nil {
		return
	}

	responseBytes, err := json.Marshal(body)
	if err != nil {
		j.logger.Error("failed to serialize response body", zap.Error(err))
		return
	}

	if _, err := w.Write(responseBytes); err != nil {
		j.logger.Error("failed to write response", zap.Error(err))
	}
}

func codeForStatus(status int) string {
	switch status {
	case 400:
		return CodeValidationError
	case 404:
		return CodeNotFound
	default:
		return CodeServerError
	}
}
