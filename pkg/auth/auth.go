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

// Package auth implements PIN login, the single-slot session with
// inactivity timeout, the role permission matrix and user administration.
package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/mfreeman451/vitalmon/pkg/audit"
	"github.com/mfreeman451/vitalmon/pkg/store"
	"go.uber.org/zap"
)

// Service owns the user table and the session.
type Service struct {
	db       *store.DB
	recorder audit.Recorder
	hasher   PinHasher
	logger   *zap.Logger
	now      func() time.Time

	session      Session
	pendingTouch bool
}

// Option configures a Service.
type Option func(*Service)

// WithHasher replaces the default LegacyHasher.
func WithHasher(h PinHasher) Option {
	return func(s *Service) {
		if h != nil {
			s.hasher = h
		}
	}
}

// WithClock overrides the wall clock used for last-login stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

type seedUser struct {
	username, display, pin string
	role                   Role
}

var defaultUsers = []seedUser{
	{"admin", "Administrator", "1234", RoleAdmin},
	{"doctor", "Doctor", "1111", RoleDoctor},
	{"nurse", "Nurse", "0000", RoleNurse},
	{"tech", "Technician", "2222", RoleTechnician},
}

// Open returns the auth service, seeding the default users into an empty
// user table. A nil recorder disables auditing.
func Open(db *store.DB, recorder audit.Recorder, logger *zap.Logger, opts ...Option) (*Service, error) {
	if err := db.Ready(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:       db,
		recorder: recorder,
		hasher:   LegacyHasher{},
		logger:   logger.With(zap.String("component", "auth")),
		now:      time.Now,
		session:  Session{Timeout: DefaultTimeout},
	}

	for _, o := range opts {
		o(s)
	}

	if err := s.seed(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) seed() error {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}

	if n > 0 {
		return nil
	}

	return s.db.WithTx(func(tx *sql.Tx) error {
		for _, u := range defaultUsers {
			hash, err := s.hasher.Hash(u.pin)
			if err != nil {
				return err
			}

			if _, err := tx.Exec(`INSERT INTO users (display_name, username, role, pin_hash, active)
				VALUES (?, ?, ?, ?, 1)`, u.display, u.username, int(u.role), hash); err != nil {
				return fmt.Errorf("%w %s: %w", ErrFailedToSave, u.username, err)
			}
		}

		s.logger.Info("seeded default users", zap.Int("count", len(defaultUsers)))

		return nil
	})
}

func (s *Service) record(ev audit.Event, username, format string, args ...any) {
	if s.recorder == nil {
		return
	}

	if err := s.recorder.Recordf(ev, username, format, args...); err != nil {
		s.logger.Warn("audit record failed", zap.Stringer("event", ev), zap.Error(err))
	}
}

// actor is the username attributed to administrative actions.
func (s *Service) actor() string {
	if s.session.LoggedIn {
		return s.session.User.Username
	}

	return ""
}

const userColumns = `id, display_name, username, role, pin_hash, active, last_login`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var (
		u    User
		role int
	)

	if err := row.Scan(&u.ID, &u.DisplayName, &u.Username, &role, &u.PINHash, &u.Active, &u.LastLogin); err != nil {
		return nil, err
	}

	u.Role = Role(role)

	return &u, nil
}

// GetUser loads a user by username.
func (s *Service) GetUser(username string) (*User, error) {
	if username == "" {
		return nil, ErrInvalidArgument
	}

	if err := s.db.Ready(); err != nil {
		return nil, err
	}

	u, err := scanUser(s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}

	return u, nil
}

// Login establishes the session. On any failure the session is unchanged.
func (s *Service) Login(username, pin string) error {
	u, err := s.GetUser(username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.record(audit.EventLoginFailed, username, "unknown user")
		}

		return err
	}

	if !u.Active {
		s.record(audit.EventLoginFailed, username, "inactive user")
		return ErrUserInactive
	}

	if !s.hasher.Verify(pin, u.PINHash) {
		s.record(audit.EventLoginFailed, username, "wrong PIN")
		return ErrAuthFailed
	}

	if s.session.LoggedIn {
		s.Logout()
	}

	now := s.now().Unix()
	if _, err := s.db.Exec(`UPDATE users SET last_login = ? WHERE id = ?`, now, u.ID); err != nil {
		s.logger.Warn("failed to stamp last login", zap.String("user", username), zap.Error(err))
	}

	u.LastLogin = now
	u.PINHash = ""

	// LoginTime stays zero until the first CheckTimeout.
	s.session = Session{
		LoggedIn: true,
		User:     *u,
		Timeout:  s.session.Timeout,
	}
	s.pendingTouch = false

	s.record(audit.EventLogin, username, "login as %s", u.Role)
	s.logger.Info("user logged in", zap.String("user", username), zap.Stringer("role", u.Role))

	return nil
}

// Logout clears the session.
func (s *Service) Logout() {
	if !s.session.LoggedIn {
		return
	}

	username := s.session.User.Username
	s.clear()
	s.record(audit.EventLogout, username, "logout")
}

func (s *Service) clear() {
	s.session = Session{Timeout: s.session.Timeout}
	s.pendingTouch = false
}

// IsLoggedIn reports the session state.
func (s *Service) IsLoggedIn() bool {
	return s.session.LoggedIn
}

// CurrentUser returns a copy of the logged-in user.
func (s *Service) CurrentUser() (User, bool) {
	return s.session.User, s.session.LoggedIn
}

// Session returns a copy of the session.
func (s *Service) Session() Session {
	return s.session
}

// Touch records user activity. The next CheckTimeout refreshes the
// activity time to its now.
func (s *Service) Touch() {
	if s.session.LoggedIn {
		s.pendingTouch = true
	}
}

// CheckTimeout enforces the inactivity timeout. It returns true when the
// session was ended by this call.
func (s *Service) CheckTimeout(now int64) bool {
	if !s.session.LoggedIn {
		return false
	}

	if s.session.LoginTime == 0 {
		s.session.LoginTime = now
		s.session.LastActivity = now
		s.pendingTouch = false

		return false
	}

	if s.pendingTouch {
		s.session.LastActivity = now
		s.pendingTouch = false
	}

	if now-s.session.LastActivity >= s.session.Timeout {
		username := s.session.User.Username
		idle := now - s.session.LastActivity

		s.clear()
		s.record(audit.EventSessionTimeout, username, "idle %ds", idle)
		s.logger.Info("session timed out", zap.String("user", username))

		return true
	}

	return false
}

// SetTimeout changes the inactivity timeout in seconds.
func (s *Service) SetTimeout(seconds int64) error {
	if seconds <= 0 {
		return ErrInvalidArgument
	}

	s.session.Timeout = seconds

	return nil
}

// Timeout returns the inactivity timeout in seconds.
func (s *Service) Timeout() int64 {
	return s.session.Timeout
}

// HasPermission checks perm against the session's role. Without a
// session only PermViewVitals is granted.
func (s *Service) HasPermission(perm Permission) bool {
	if !s.session.LoggedIn {
		return perm == PermViewVitals
	}

	return RoleAllows(s.session.User.Role, perm)
}

func validPIN(pin string) bool {
	if len(pin) < minPINLen || len(pin) > maxPINLen {
		return false
	}

	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}

	return true
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique
	}

	return false
}

// AddUser creates an active account.
func (s *Service) AddUser(username, displayName, pin string, role Role) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" || !role.Valid() {
		return 0, ErrInvalidArgument
	}

	if !validPIN(pin) {
		return 0, ErrInvalidPIN
	}

	if err := s.db.Ready(); err != nil {
		return 0, err
	}

	hash, err := s.hasher.Hash(pin)
	if err != nil {
		return 0, err
	}

	res, err := s.db.Exec(`INSERT INTO users (display_name, username, role, pin_hash, active) VALUES (?, ?, ?, ?, 1)`,
		displayName, username, int(role), hash)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateUser
		}

		return 0, fmt.Errorf("%w: %w", ErrFailedToSave, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrFailedToSave, err)
	}

	s.record(audit.EventUserAdded, s.actor(), "added %s as %s", username, role)

	return id, nil
}

// DeleteUser removes an account. The logged-in user cannot be deleted.
func (s *Service) DeleteUser(username string) error {
	if username == "" {
		return ErrInvalidArgument
	}

	if s.session.LoggedIn && s.session.User.Username == username {
		return ErrCurrentUser
	}

	if err := s.db.Ready(); err != nil {
		return err
	}

	res, err := s.db.Exec(`DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToSave, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	s.record(audit.EventUserDeleted, s.actor(), "deleted %s", username)

	return nil
}

// ChangePIN replaces a user's PIN hash.
func (s *Service) ChangePIN(username, newPIN string) error {
	if username == "" {
		return ErrInvalidArgument
	}

	if !validPIN(newPIN) {
		return ErrInvalidPIN
	}

	if err := s.db.Ready(); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPIN)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`UPDATE users SET pin_hash = ? WHERE username = ?`, hash, username)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToSave, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	s.record(audit.EventPINChanged, s.actor(), "PIN changed for %s", username)

	return nil
}

// SetActive enables or disables an account.
func (s *Service) SetActive(username string, active bool) error {
	if username == "" {
		return ErrInvalidArgument
	}

	if err := s.db.Ready(); err != nil {
		return err
	}

	res, err := s.db.Exec(`UPDATE users SET active = ? WHERE username = ?`, active, username)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToSave, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return nil
}

// ListUsers returns up to MaxUsers accounts ordered by id, without hashes.
func (s *Service) ListUsers() ([]User, error) {
	if err := s.db.Ready(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT `+userColumns+` FROM users ORDER BY id LIMIT ?`, MaxUsers)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
	}
	defer s.db.CloseRows(rows)

	var out []User

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFailedToQuery, err)
		}

		u.PINHash = ""
		out = append(out, *u)
	}

	return out, rows.Err()
}
