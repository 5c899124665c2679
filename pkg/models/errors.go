package models

import "errors"

// Common errors for knowledge hub domain operations.
var (
	// User errors
	ErrUserNotFound  = errors.New("user not found")
	ErrDuplicateUser = errors.New("user already exists")

	// Organization tag errors
	ErrTagNotFound    = errors.New("organization tag not found")
	ErrDuplicateTag   = errors.New("organization tag already exists")
	ErrTagInUse       = errors.New("organization tag is referenced by users")
	ErrTagHasChildren = errors.New("organization tag has child tags")
	ErrTagCycle       = errors.New("organization tag parent would form a cycle")

	// File and chunk errors
	ErrFileNotFound     = errors.New("file not found")
	ErrDuplicateFile    = errors.New("file already exists")
	ErrChunkNotFound    = errors.New("chunk not found")
	ErrIncompleteChunks = errors.New("incomplete chunks")

	// Passage errors
	ErrPassageNotFound = errors.New("passage not found")
)
