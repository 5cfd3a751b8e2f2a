package apimodel

import (
	"encoding/json"
	"github.com/sirupsen/logrus"
	"net/http"
	"strconv"
)

type ErrorMessage struct {
	ErrStatusCode int    `json:"status_code"`
	ErrMessage    string `json:"message"`
}

func (e *ErrorMessage) StatusCode() int {
	return e.ErrStatusCode
}

func (e *ErrorMessage) Title() string {
	return e.ErrMessage
}

func (e *ErrorMessage) Error() string {
	if e.ErrMessage != "" {
		return strconv.Itoa(e.ErrStatusCode) + ":" + e.ErrMessage
	} else {
		return strconv.Itoa(e.ErrStatusCode)
	}
}

// DefaultMessage returns the human readable message used when none was provided
func DefaultMessage(statusCode int) string {
	switch statusCode {
	case http.StatusOK:
		return "Ok"
	case http.StatusNotFound:
		return "Page not found"
	case http.StatusMethodNotAllowed:
		return "Method not allowed"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusConflict:
		return "Conflict"
	case http.StatusServiceUnavailable:
		return "Service unavailable"
	case http.StatusBadRequest:
		return "Bad request"
	default:
		return "Internal error"
	}
}

func (v ErrorMessage) SendError(w http.ResponseWriter) {
	if v.ErrMessage == "" {
		v.ErrMessage = DefaultMessage(v.ErrStatusCode)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(v.ErrStatusCode)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		logrus.Warnf("error when encoding error: %v", err)
	}
}

//errors message
var WrongParametersErrorMessage = ErrorMessage{
	ErrStatusCode: http.StatusBadRequest,
	ErrMessage:    "unable to parse parameters",
}

var UnknownSongErrorMessage = ErrorMessage{
	ErrStatusCode: http.StatusNotFound,
	ErrMessage:    "unknown song",
}
