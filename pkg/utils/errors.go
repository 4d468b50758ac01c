// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package utils

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"knative.dev/pkg/apis"

	"github.com/kaito-project/fitcheck/pkg/utils/consts"
)

// NewNotFound reports that name does not exist among the objects of the given kind.
// When valid is not empty the message enumerates the accepted names.
func NewNotFound(kind, name string, valid []string, hints ...string) error {
	err := apierrors.NewNotFound(schema.GroupResource{Group: consts.GroupName, Resource: kind}, name)
	if hints = lo.Compact(hints); len(hints) > 0 {
		err.ErrStatus.Message += "; " + strings.Join(hints, "; ")
	}
	if len(valid) > 0 {
		err.ErrStatus.Message += fmt.Sprintf("; valid %s: %s", kind, strings.Join(valid, ", "))
	}
	return err
}

// NewInvalidArgument converts a validation failure into a BadRequest status error.
// A nil field error yields nil.
func NewInvalidArgument(fe *apis.FieldError) error {
	if fe == nil {
		return nil
	}
	return apierrors.NewBadRequest(fe.Error())
}

// IsNotFound reports whether err, or any error it wraps, is a NotFound failure.
func IsNotFound(err error) bool {
	return apierrors.IsNotFound(err)
}

// IsInvalidArgument reports whether err, or any error it wraps, is an invalid-argument failure.
func IsInvalidArgument(err error) bool {
	return apierrors.IsBadRequest(err)
}
