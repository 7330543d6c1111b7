// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// Adapted from upspin.io/errors.

// Package errors defines the error values returned by the storage engine.
//
// Every error produced by the engine is an *Error carrying the operation
// that failed and a Kind that classifies it. Callers test the class with Is:
//
//	v, err := db.Get(key)
//	if errors.Is(errors.NotExist, err) {
//	    // key absent
//	}
package errors

import (
	"bytes"
	stderrors "errors"
	"fmt"
)

// Error is the type that implements the error interface.
// An Error value may leave some fields unset.
type Error struct {
	// Op is the operation being performed, such as "Get" or "segment.Append".
	Op string
	// Kind is the class of error.
	Kind Kind
	// Err is the underlying error that triggered this one, if any.
	Err error
}

var zeroErr Error

// Separator is the string used to separate nested errors.
var Separator = ": "

// Kind defines the kind of error this is.
type Kind uint8

// Kinds of errors.
const (
	Other     Kind = iota // Unclassified error. This value is not printed in the error message.
	Invalid               // Invalid argument or configuration.
	IO                    // Underlying storage failure.
	NotExist              // Key or file does not exist.
	Corrupt               // Stored data failed an integrity check.
	Truncated             // Record shorter than its declared lengths.
	Sealed                // Append attempted on a sealed segment.
	Closed                // Operation on a closed engine.
	Locked                // Directory held by another engine instance.
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other error"
	case Invalid:
		return "invalid argument"
	case IO:
		return "I/O error"
	case NotExist:
		return "not found"
	case Corrupt:
		return "data corruption"
	case Truncated:
		return "truncated record"
	case Sealed:
		return "segment is sealed"
	case Closed:
		return "engine is closed"
	case Locked:
		return "directory is locked"
	}
	return "unknown error kind"
}

// E builds an error value from its arguments.
// The type of each argument determines its meaning:
//
//	string
//		The operation being performed.
//	errors.Kind
//		The class of error.
//	error
//		The underlying error that triggered this one.
//
// If Kind is not specified or Other, it is taken from the underlying
// error when that error is also an *Error.
func E(args ...interface{}) error {
	if len(args) == 0 {
		return nil
	}
	e := &Error{}
	for _, arg := range args {
		switch arg := arg.(type) {
		case string:
			e.Op = arg
		case Kind:
			e.Kind = arg
		case *Error:
			cp := *arg
			e.Err = &cp
		case error:
			e.Err = arg
		default:
			return Errorf("errors.E: unknown type %T, value %v", arg, arg)
		}
	}
	prev, ok := e.Err.(*Error)
	if !ok {
		return e
	}
	if prev.Kind == e.Kind {
		prev.Kind = Other
	}
	if e.Kind == Other {
		e.Kind = prev.Kind
		prev.Kind = Other
	}
	return e
}

func pad(b *bytes.Buffer, str string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(str)
}

func (e *Error) Error() string {
	b := new(bytes.Buffer)
	if e.Op != "" {
		b.WriteString(e.Op)
	}
	if e.Kind != Other {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		if prev, ok := e.Err.(*Error); ok {
			if *prev != zeroErr {
				pad(b, Separator)
				b.WriteString(prev.Error())
			}
		} else {
			pad(b, ": ")
			b.WriteString(e.Err.Error())
		}
	}
	if b.Len() == 0 {
		return "no error"
	}
	return b.String()
}

// Unwrap returns the underlying error so the standard library's
// errors.Is and errors.As can see through an *Error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether err, or any *Error it wraps, is of the given Kind.
// If err is nil then Is returns false.
func Is(kind Kind, err error) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	if e.Kind == kind && kind != Other {
		return true
	}
	if e.Err != nil {
		return Is(kind, e.Err)
	}
	return false
}

// Str returns an error that formats as the given text. It is intended to
// be used as the error-typed argument to the E function.
func Str(text string) error {
	return &errorString{text}
}

type errorString struct {
	s string
}

func (e *errorString) Error() string {
	return e.s
}

// Errorf is equivalent to fmt.Errorf, but allows clients to import only this
// package for all error handling.
func Errorf(format string, args ...interface{}) error {
	return &errorString{fmt.Sprintf(format, args...)}
}
