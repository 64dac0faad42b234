package rpcserver

import "errors"

var (
	errNoBearerToken           = errors.New("rpcserver: no bearer token")
	errUnexpectedSigningMethod = errors.New("rpcserver: unexpected signing method")
)
