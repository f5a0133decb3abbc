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

package stringutil

import (
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// CompactWhitespace turns a possibly multi-line statement into a single line,
// collapsing every run of whitespace to one space.
func CompactWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

var (
	keywordPassword = regexp.MustCompile(`(?i)(password\s*=\s*)('[^']*'|\S+)`)
	urlPassword     = regexp.MustCompile(`(://[^:/@\s]+:)[^@\s]*@`)
)

// RemoveSensitiveInfo hides passwords in a connection string, in both the
// keyword/value and the URL form.
func RemoveSensitiveInfo(dsn string) string {
	dsn = keywordPassword.ReplaceAllString(dsn, "${1}***")
	return urlPassword.ReplaceAllString(dsn, "${1}***@")
}
