package handler

import "errors"

var (
	ErrValidation           = errors.New("invalid input")
	ErrNoDatabase           = errors.New("no database selected")
	ErrMissingTable         = errors.New("table name is required")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrUnauthorized         = errors.New("not authorized by pgpass file")
	ErrTransport            = errors.New("transport failure")
	ErrArtifactMissing      = errors.New("backup artifact is missing")
)
