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

package audit

//go:generate mockgen -destination=mock_audit.go -package=audit github.com/mfreeman451/vitalmon/pkg/audit Recorder

// Recorder appends audit entries. Auth and the core depend on this rather
// than on the sqlite-backed Log.
type Recorder interface {
	Record(ev Event, username, message string) error
	Recordf(ev Event, username, format string, args ...any) error
}
