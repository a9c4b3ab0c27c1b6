package transport

import (
	goerrors "github.com/goliatone/go-errors"
)

// Transport text codes stay outside the SCA taxonomy; core translates them
// before anything reaches a PSU.
const (
	TextCodeBadRequest  = "TRANSPORT_BAD_REQUEST"
	TextCodeUnavailable = "TRANSPORT_UNAVAILABLE"
	TextCodeInternal    = "TRANSPORT_INTERNAL"
)

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return TextCodeBadRequest
	case goerrors.CategoryExternal:
		return TextCodeUnavailable
	default:
		return TextCodeInternal
	}
}
