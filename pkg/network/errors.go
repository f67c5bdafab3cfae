package network

import (
	"github.com/pkg/errors"
)

// RetrievalError reports that a network document could not be fetched, or
// that the fetched body was empty.
type RetrievalError struct {
	URL string
	Err error
}

func (e *RetrievalError) Error() string {
	return "retrieve " + e.URL + ": " + e.Err.Error()
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// InvalidFormatError reports a document that is not a well-formed network.
type InvalidFormatError struct {
	Err error
}

func (e *InvalidFormatError) Error() string {
	return "invalid network document: " + e.Err.Error()
}

func (e *InvalidFormatError) Unwrap() error { return e.Err }

func retrievalError(url string, err error, msg string) error {
	return &RetrievalError{URL: url, Err: errors.Wrap(err, msg)}
}

func invalidFormat(err error, msg string) error {
	return &InvalidFormatError{Err: errors.Wrap(err, msg)}
}

// ErrEmptyBody is the cause of a RetrievalError for a zero-length document.
var ErrEmptyBody = errors.New("empty body")
