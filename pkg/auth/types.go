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

package auth

import (
	"errors"
	"fmt"
)

// Role is a user's clinical role.
type Role int

const (
	RoleNone Role = iota
	RoleNurse
	RoleDoctor
	RoleAdmin
	RoleTechnician

	roleCount
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "NONE"
	case RoleNurse:
		return "NURSE"
	case RoleDoctor:
		return "DOCTOR"
	case RoleAdmin:
		return "ADMIN"
	case RoleTechnician:
		return "TECHNICIAN"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether r may be assigned to a user.
func (r Role) Valid() bool {
	return r > RoleNone && r < roleCount
}

// Permission is a gated action.
type Permission int

const (
	PermViewVitals Permission = iota
	PermAckAlarms
	PermChangeAlarmLimits
	PermManagePatients
	PermChangeSettings
	PermViewAuditLog
	PermManageUsers
	PermSilenceAlarms
	PermDischargePatient

	permCount
)

var permNames = [permCount]string{
	"VIEW_VITALS", "ACK_ALARMS", "CHANGE_ALARM_LIMITS", "MANAGE_PATIENTS", "CHANGE_SETTINGS",
	"VIEW_AUDIT_LOG", "MANAGE_USERS", "SILENCE_ALARMS", "DISCHARGE_PATIENT",
}

func (p Permission) String() string {
	if p < 0 || p >= permCount {
		return "UNKNOWN"
	}

	return permNames[p]
}

// permissions is the role x permission matrix.
var permissions = [roleCount][permCount]bool{
	RoleNone: {
		PermViewVitals: true,
	},
	RoleNurse: {
		PermViewVitals:     true,
		PermAckAlarms:      true,
		PermManagePatients: true,
		PermSilenceAlarms:  true,
	},
	RoleDoctor: {
		PermViewVitals:        true,
		PermAckAlarms:         true,
		PermChangeAlarmLimits: true,
		PermManagePatients:    true,
		PermSilenceAlarms:     true,
		PermDischargePatient:  true,
	},
	RoleAdmin: {
		PermViewVitals:        true,
		PermAckAlarms:         true,
		PermChangeAlarmLimits: true,
		PermManagePatients:    true,
		PermChangeSettings:    true,
		PermViewAuditLog:      true,
		PermManageUsers:       true,
		PermSilenceAlarms:     true,
		PermDischargePatient:  true,
	},
	RoleTechnician: {
		PermViewVitals:     true,
		PermChangeSettings: true,
		PermViewAuditLog:   true,
	},
}

// RoleAllows reports whether role grants perm.
func RoleAllows(role Role, perm Permission) bool {
	if role < 0 || role >= roleCount || perm < 0 || perm >= permCount {
		return false
	}

	return permissions[role][perm]
}

// User is a stored account. The PIN itself is never kept.
type User struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Username    string `json:"username"`
	Role        Role   `json:"role"`
	PINHash     string `json:"-"`
	Active      bool   `json:"active"`
	LastLogin   int64  `json:"last_login"`
}

// Session is the single process-wide login slot.
type Session struct {
	LoggedIn     bool  `json:"logged_in"`
	User         User  `json:"user"`
	LoginTime    int64 `json:"login_time"`
	LastActivity int64 `json:"last_activity"`
	Timeout      int64 `json:"timeout"`
}

const (
	// DefaultTimeout is the inactivity timeout in seconds.
	DefaultTimeout int64 = 300

	// MaxUsers caps ListUsers.
	MaxUsers = 32

	minPINLen = 4
	maxPINLen = 8
)

var (
	ErrAuthFailed      = errors.New("authentication failed")
	ErrUserInactive    = fmt.Errorf("%w: user inactive", ErrAuthFailed)
	ErrNotFound        = errors.New("user not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidPIN      = errors.New("PIN must be 4 to 8 digits")
	ErrDuplicateUser   = errors.New("username already exists")
	ErrCurrentUser     = errors.New("cannot delete the logged-in user")
	ErrFailedToQuery   = errors.New("failed to query users")
	ErrFailedToSave    = errors.New("failed to save user")
	ErrFailedToHash    = errors.New("failed to hash PIN")
)
