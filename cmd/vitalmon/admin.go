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


package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mfreeman451/vitalmon/pkg/audit"
	"github.com/mfreeman451/vitalmon/pkg/auth"
	"github.com/mfreeman451/vitalmon/pkg/logger"
	"github.com/mfreeman451/vitalmon/pkg/store"
)

// openStore loads the config and opens its database for a one-shot
// admin command.
func openStore(flags *rootFlags) (*store.DB, *zap.Logger, error) {
	cfg, err := flags.load()
	if err != nil {
		return nil, nil, err
	}

	log := logger.New(cfg.Logging, "vitalmon-admin")

	db, err := store.Open(cfg.DBPath, store.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}

	return db, log, nil
}

func usersCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage monitor users",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, log, err := openStore(flags)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			svc, err := auth.Open(db, audit.New(db, log), log)
			if err != nil {
				return err
			}

			users, err := svc.ListUsers()
			if err != nil {
				return err
			}

			return printUsers(cmd.OutOrStdout(), users)
		},
	})

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			username, _ := cmd.Flags().GetString("username")
			name, _ := cmd.Flags().GetString("name")
			pin, _ := cmd.Flags().GetString("pin")
			roleName, _ := cmd.Flags().GetString("role")

			role, err := parseRole(roleName)
			if err != nil {
				return err
			}

			db, log, err := openStore(flags)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			svc, err := auth.Open(db, audit.New(db, log), log)
			if err != nil {
				return err
			}

			id, err := svc.AddUser(username, name, pin, role)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "added user %s (id %d)\n", username, id)

			return nil
		},
	}

	addCmd.Flags().String("username", "", "Login name")
	addCmd.Flags().String("name", "", "Display name")
	addCmd.Flags().String("pin", "", "4 to 8 digit PIN")
	addCmd.Flags().String("role", "nurse", "nurse, doctor, admin or technician")
	_ = addCmd.MarkFlagRequired("username")
	_ = addCmd.MarkFlagRequired("pin")
	cmd.AddCommand(addCmd)

	return cmd
}

func parseRole(s string) (auth.Role, error) {
	switch strings.ToLower(s) {
	case "nurse":
		return auth.RoleNurse, nil
	case "doctor":
		return auth.RoleDoctor, nil
	case "admin":
		return auth.RoleAdmin, nil
	case "technician", "tech":
		return auth.RoleTechnician, nil
	default:
		return auth.RoleNone, fmt.Errorf("%w: unknown role %q", auth.ErrInvalidArgument, s)
	}
}

func printUsers(w io.Writer, users []auth.User) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tNAME\tROLE\tACTIVE\tLAST LOGIN")

	for _, u := range users {
		last := "-"
		if u.LastLogin > 0 {
			last = time.Unix(u.LastLogin, 0).Format(time.RFC3339)
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", u.Username, u.DisplayName, u.Role, u.Active, last)
	}

	return tw.Flush()
}

func auditCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit log",
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export audit entries to an XLSX workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, _ := cmd.Flags().GetString("out")
			since, _ := cmd.Flags().GetDuration("since")

			db, log, err := openStore(flags)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			entries, err := auditEntries(audit.New(db, log), since, time.Now())
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}

			if err := audit.ExportXLSX(f, entries); err != nil {
				_ = f.Close()
				return err
			}

			if err := f.Close(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d entries to %s\n", len(entries), out)

			return nil
		},
	}

	exportCmd.Flags().String("out", "audit.xlsx", "Output workbook path")
	exportCmd.Flags().Duration("since", 0, "Only entries newer than this, e.g. 24h; 0 exports the newest entries")
	cmd.AddCommand(exportCmd)

	return cmd
}

func auditEntries(l *audit.Log, since time.Duration, now time.Time) ([]audit.Entry, error) {
	if since <= 0 {
		return l.Recent(audit.MaxResults)
	}

	return l.Range(now.Add(-since).Unix(), now.Unix())
}
