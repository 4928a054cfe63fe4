// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sentry

import (
	"fmt"

	"github.com/getsentry/sentry-go"
	"github.com/united-manufacturing-hub/lifecycle-harness/pkg/standarderrors"
	"go.uber.org/zap"
)

type IssueType string

const (
	IssueTypeWarning IssueType = "warning"
	IssueTypeError   IssueType = "error"
	IssueTypeFatal   IssueType = "fatal"
)

// IssueTypeFor maps the category of err to a severity: fatal errors abort the suite,
// best effort errors are warnings.
func IssueTypeFor(err error) IssueType {
	if standarderrors.IsBestEffort(err) {
		return IssueTypeWarning
	}

	return IssueTypeFatal
}

// ReportIssue logs err and, when sentry is initialized, captures it.
func ReportIssue(err error, issueType IssueType, log *zap.SugaredLogger) {
	ReportIssueWithContext(err, issueType, log, nil)
}

func ReportIssuef(issueType IssueType, log *zap.SugaredLogger, template string, args ...interface{}) {
	ReportIssue(fmt.Errorf(template, args...), issueType, log)
}

// ReportIssueWithContext reports an issue with additional tags.
// Fatal issues are logged at error level; the process is never exited from here.
func ReportIssueWithContext(err error, issueType IssueType, log *zap.SugaredLogger, context map[string]interface{}) {
	if err == nil {
		return
	}

	if log == nil {
		log = zap.NewNop().Sugar()
	}

	fields := make([]interface{}, 0, 2*len(context)+2)
	fields = append(fields, "error", err)

	for key, value := range context {
		fields = append(fields, key, value)
	}

	var level sentry.Level

	switch issueType {
	case IssueTypeFatal:
		level = sentry.LevelFatal

		log.Errorw("Fatal issue", fields...)
	case IssueTypeError:
		level = sentry.LevelError

		log.Errorw("Error issue", fields...)
	default:
		level = sentry.LevelWarning

		log.Warnw("Warning issue", fields...)
	}

	sendSentryEvent(createSentryEvent(level, err, context))
}

// ReportPhaseError reports an error of one lifecycle phase.
func ReportPhaseError(log *zap.SugaredLogger, phase string, issueType IssueType, err error) {
	ReportIssueWithContext(err, issueType, log, map[string]interface{}{"phase": phase})
}
