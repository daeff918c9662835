package model

import (
	"errors"

	"github.com/FranksOps/vetter/pkg/httpclient"
)

// Error classes. Concrete errors wrap one of these so callers can branch with
// errors.Is without caring which backend produced them.
var (
	// ErrTransport is a network or HTTP failure talking to an upstream backend.
	ErrTransport = errors.New("transport error")
	// ErrParse means an expected field or script tag was missing from a response.
	ErrParse = errors.New("parse error")
	// ErrNotFound means a search produced no usable review or company page.
	ErrNotFound = errors.New("not found")
	// ErrConfiguration is a missing or invalid setting; fatal before any call.
	ErrConfiguration = errors.New("configuration error")
)

type classified struct {
	class error
	err   error
}

func (c *classified) Error() string   { return c.err.Error() }
func (c *classified) Unwrap() []error { return []error{c.class, c.err} }

// Classify tags an upstream call failure with ErrParse when the response body
// could not be decoded and ErrTransport otherwise. The message is unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransport) || errors.Is(err, ErrParse) {
		return err
	}
	if errors.Is(err, httpclient.ErrDecode) {
		return &classified{class: ErrParse, err: err}
	}
	return &classified{class: ErrTransport, err: err}
}

// WithClass tags err with class while keeping its message.
func WithClass(class, err error) error {
	if err == nil {
		return nil
	}
	return &classified{class: class, err: err}
}
