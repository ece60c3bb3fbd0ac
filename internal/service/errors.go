package service

import "errors"

var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrUserNotFound         = errors.New("user not found")
	ErrNoActiveInstance     = errors.New("no active instance")
	ErrInstanceNotConnected = errors.New("instance not connected")
	ErrUpstream             = errors.New("provider unavailable")
	ErrUploadNotFound       = errors.New("upload not found")
)
