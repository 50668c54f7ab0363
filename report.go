// SPDX-License-Identifier: Apache-2.0
/*
 * recstrap: install a root filesystem image onto a prepared target
 * Copyright (C) 2026 The recstrap Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package recstrap

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/docker/go-units"

	"github.com/levitateos/recstrap/pkg/guard"
)

// skippedByForce is reported for target properties that --force kept from
// being checked.
const skippedByForce = "skipped (--force)"

func quote(s string, quoteEmpty bool) string {
	quoted := strconv.Quote(s)
	// Only return quoted string if it actually required escaping or is empty.
	if quoted != `"`+s+`"` || (quoteEmpty && s == "") {
		return quoted
	}
	return s
}

func pprint(w io.Writer, prefix, key string, values ...string) (err error) {
	if len(values) > 0 {
		quoted := make([]string, len(values))
		for idx, value := range values {
			if strings.Contains(value, ",") {
				// Make sure "," leads to quoting.
				quoted[idx] = strconv.Quote(value)
			} else {
				quoted[idx] = quote(value, true)
			}
		}
		_, err = fmt.Fprintf(w, "%s%s: %s\n", prefix, key, strings.Join(quoted, ", "))
	} else {
		_, err = fmt.Fprintf(w, "%s%s:\n", prefix, key)
	}
	return err
}

func pprintSlice(w io.Writer, prefix, name string, data []string) error {
	if err := pprint(w, prefix, name); err != nil {
		return err
	}
	prefix += "\t"
	for _, line := range data {
		if _, err := fmt.Fprintf(w, "%s%s\n", prefix, line); err != nil {
			return err
		}
	}
	return nil
}

// Format writes a human-readable report of the outcome.
func (o *Outcome) Format(w io.Writer) error {
	status := "PASSED"
	if o.Err != nil {
		status = "FAILED"
	}
	title := "INSTALL " + status
	if o.CheckOnly {
		title = "PRE-FLIGHT CHECK " + status
	}
	if _, err := fmt.Fprintf(w, "%s\n", title); err != nil {
		return err
	}
	if err := pprint(w, "", "Phase", o.Phase.String()); err != nil {
		return err
	}

	if tgt := o.Target; tgt != nil && tgt.Path != "" {
		if err := pprint(w, "", "Target"); err != nil {
			return err
		}
		if err := pprint(w, "\t", "Path", tgt.Path); err != nil {
			return err
		}
		if tgt.Raw != tgt.Path {
			if err := pprint(w, "\t", "Given As", tgt.Raw); err != nil {
				return err
			}
		}
		mounted, empty := strconv.FormatBool(tgt.Mounted), strconv.FormatBool(tgt.Empty)
		if tgt.Forced {
			mounted, empty = skippedByForce, skippedByForce
		}
		if err := pprint(w, "\t", "Mount Point", mounted); err != nil {
			return err
		}
		if err := pprint(w, "\t", "Empty", empty); err != nil {
			return err
		}
		if tgt.FreeBytes > 0 {
			if err := pprint(w, "\t", "Free Space", units.BytesSize(float64(tgt.FreeBytes))); err != nil {
				return err
			}
		}
	}

	if image := o.Rootfs; image != nil && image.Path != "" {
		if err := pprint(w, "", "Rootfs"); err != nil {
			return err
		}
		if err := pprint(w, "\t", "Path", image.Path); err != nil {
			return err
		}
		if err := pprint(w, "\t", "Auto Detected", strconv.FormatBool(image.AutoDetected)); err != nil {
			return err
		}
		if err := pprint(w, "\t", "Size", units.BytesSize(float64(image.Size))); err != nil {
			return err
		}
		if err := pprint(w, "\t", "Format", image.Format.String()); err != nil {
			return err
		}
	}

	if o.Err != nil {
		return FormatError(w, o.Err)
	}
	if o.Phase == PhaseCheckOnlyExit {
		_, err := fmt.Fprintln(w, "Ready to extract. Run without --check to proceed.")
		return err
	}
	return nil
}

// FormatError writes the failure code and message of err, followed by the
// documentation of the check that failed (if any).
func FormatError(w io.Writer, runErr error) error {
	code := guard.CodeOf(runErr)
	if err := pprint(w, "", "Error", code.String()); err != nil {
		return err
	}
	if err := pprint(w, "\t", "Kind", code.Description()); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\tMessage: %v\n", runErr); err != nil {
		return err
	}

	var gerr *guard.Error
	if !errors.As(runErr, &gerr) || gerr.Guard == nil {
		return nil
	}
	g := gerr.Guard
	if err := pprint(w, "", "Check"); err != nil {
		return err
	}
	if err := pprint(w, "\t", "Protects", g.Protects); err != nil {
		return err
	}
	if err := pprint(w, "\t", "Severity", string(g.Severity)); err != nil {
		return err
	}
	if err := pprintSlice(w, "\t", "Cheat Vectors", g.Cheats); err != nil {
		return err
	}
	return pprint(w, "\t", "Consequence If Cheated", g.Consequence)
}

// jsonOutcome is the machine-readable form of an Outcome.
type jsonOutcome struct {
	*Outcome
	Code    string `json:"code"`
	Status  int    `json:"exit_status"`
	Message string `json:"message,omitempty"`
}

// WriteJSON writes the outcome as a single JSON object.
func (o *Outcome) WriteJSON(w io.Writer) error {
	code := o.Code()
	report := jsonOutcome{
		Outcome: o,
		Code:    code.String(),
		Status:  code.ExitStatus(),
	}
	if o.Err != nil {
		report.Message = o.Err.Error()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	return nil
}
