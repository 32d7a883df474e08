// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import "errors"

// Errors returned by the engine. Transport and register errors never
// surface here; they become dropped frames or exception responses.
var (
	ErrIllegalState          = errors.New("slave: illegal state")
	ErrInvalidArgument       = errors.New("slave: invalid argument")
	ErrPortError             = errors.New("slave: port error")
	ErrInsufficientResources = errors.New("slave: insufficient resources")
)
