/*-
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */


package core

import "errors"

var (
	ErrNotRunning       = errors.New("core not running")
	ErrAlreadyRunning   = errors.New("core already running")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidSlot      = errors.New("invalid monitor slot")
	ErrNoSamples        = errors.New("no vitals received")
	ErrUnsupported      = errors.New("operation not supported by source")
)
