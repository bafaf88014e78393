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

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Audit Log"

var exportHeader = []string{"ID", "Time (UTC)", "Event", "User", "Message"}

// ExportXLSX writes entries as a single-sheet workbook.
func ExportXLSX(w io.Writer, entries []Entry) (err error) {
	f := excelize.NewFile()

	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: %w", ErrFailedToExport, cerr)
		}
	}()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToExport, err)
	}

	if err = f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToExport, err)
	}

	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToExport, err)
	}

	for col, h := range exportHeader {
		if err = setCell(f, col+1, 1, h); err != nil {
			return err
		}
	}

	if err = f.SetRowStyle(exportSheet, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToExport, err)
	}

	for i, e := range entries {
		row := i + 2
		values := []any{
			e.ID,
			time.Unix(e.Timestamp, 0).UTC().Format(time.RFC3339),
			e.Event.String(),
			e.Username,
			e.Message,
		}

		for col, v := range values {
			if err = setCell(f, col+1, row, v); err != nil {
				return err
			}
		}
	}

	if err = f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToExport, err)
	}

	if _, err = f.WriteTo(w); err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToExport, err)
	}

	return nil
}

func setCell(f *excelize.File, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToExport, err)
	}

	if err := f.SetCellValue(exportSheet, cell, value); err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToExport, err)
	}

	return nil
}
