// SPDX-License-Identifier: Apache-2.0

package domain

import "errors"

var ErrUnauthenticated = errors.New("unauthenticated")
var ErrForbidden = errors.New("forbidden")
var ErrInstanceNotFound = errors.New("journey instance not found")
var ErrJourneyNotActive = errors.New("journey instance is not active")
