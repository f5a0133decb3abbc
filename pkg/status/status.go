// Copyright 2023 Ant Group Co., Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package status

import (
	"errors"
	"fmt"
)

// Code classifies failures so the HTTP layer can answer each one differently.
type Code int32

const (
	Code_OK Code = iota
	Code_BAD_REQUEST
	// the plan document is missing, unreadable or lacks the top-level "Plan" key
	Code_PLAN_UNAVAILABLE
	// no scan node of the plan reads the requested relation
	Code_SCAN_NOT_FOUND
	// the strict scan policy found several scans of the same relation
	Code_MULTIPLE_SCANS_AMBIGUOUS
	// the database rejected an EXPLAIN or a generated statement
	Code_QUERY_EXECUTION_FAILED
	// missing, unknown or expired session token
	Code_AUTHORIZATION_FAILED
	Code_STATISTICS_UNAVAILABLE
	Code_CONNECTION_FAILED
	Code_INTERNAL
)

var Code_name = map[Code]string{
	Code_OK:                       "OK",
	Code_BAD_REQUEST:              "BAD_REQUEST",
	Code_PLAN_UNAVAILABLE:         "PLAN_UNAVAILABLE",
	Code_SCAN_NOT_FOUND:           "SCAN_NOT_FOUND",
	Code_MULTIPLE_SCANS_AMBIGUOUS: "MULTIPLE_SCANS_AMBIGUOUS",
	Code_QUERY_EXECUTION_FAILED:   "QUERY_EXECUTION_FAILED",
	Code_AUTHORIZATION_FAILED:     "AUTHORIZATION_FAILED",
	Code_STATISTICS_UNAVAILABLE:   "STATISTICS_UNAVAILABLE",
	Code_CONNECTION_FAILED:        "CONNECTION_FAILED",
	Code_INTERNAL:                 "INTERNAL",
}

func (c Code) String() string {
	if name, ok := Code_name[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", int32(c))
}

var _ error = &Status{}

type Status struct {
	code Code
	err  error
}

func (s *Status) Error() string {
	return fmt.Sprintf("Error: code=%v, msg=\"%v\"", s.code, s.err)
}

func (s *Status) Unwrap() error {
	return s.err
}

func (s *Status) Code() Code {
	return s.code
}

func (s *Status) Message() string {
	return s.err.Error()
}

func New(code Code, msg string) *Status {
	return &Status{code: code, err: errors.New(msg)}
}

func Newf(code Code, format string, args ...any) *Status {
	return &Status{code: code, err: fmt.Errorf(format, args...)}
}

func Wrap(code Code, err error) *Status {
	return &Status{code: code, err: err}
}

// CodeOf returns the code of the first Status in err's chain, Code_INTERNAL
// for any other non-nil error.
func CodeOf(err error) Code {
	if err == nil {
		return Code_OK
	}
	var s *Status
	if errors.As(err, &s) {
		return s.code
	}
	return Code_INTERNAL
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var s *Status
	return errors.As(err, &s) && s.code == code
}
