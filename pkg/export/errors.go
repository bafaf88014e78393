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

package export

import "errors"

var (
	ErrConnect     = errors.New("export: broker connect failed")
	ErrPublish     = errors.New("export: publish failed")
	ErrNotAck      = errors.New("export: publish not acknowledged")
	ErrEmptyBroker = errors.New("export: broker address required")
)
