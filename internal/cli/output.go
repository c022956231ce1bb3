package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/remedian/remedian/internal/evidence"
	"github.com/remedian/remedian/internal/service"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Verification failure (broken chain, corrupt store)
	ExitCommandError = 2 // Command error (invalid paths, database not found, etc.)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// writeJSON encodes v to w with indentation, for --format json.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// RenderReport renders a chain verification report as text.
func RenderReport(r evidence.Report) string {
	var b strings.Builder
	if r.Valid {
		fmt.Fprintf(&b, "Chain valid: %d entries verified\n", r.Checked)
		return b.String()
	}
	fmt.Fprintf(&b, "Chain BROKEN at entry %d (%d entries checked)\n", *r.BrokenAtID, r.Checked)
	b.WriteString("The entry and every later entry can no longer be trusted.\n")
	return b.String()
}

// RenderStats renders service statistics as text.
func RenderStats(s service.ServiceStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Evidence chain: %d entries", s.ChainLength)
	if s.ChainHeadID != 0 {
		fmt.Fprintf(&b, ", head #%d %s", s.ChainHeadID, shortHash(s.ChainHeadHash))
	}
	b.WriteByte('\n')
	fmt.Fprintf(&b, "Rule cache: %d rule sets (%d expired)\n", s.CRC.TotalCount, s.CRC.ExpiredCount)
	for _, site := range sortedSites(s.CRC.BySite) {
		fmt.Fprintf(&b, "  %-30s %d\n", site, s.CRC.BySite[site])
	}
	fmt.Fprintf(&b, "Public key: %s\n", s.PublicKey)
	return b.String()
}

// RenderEntries renders an evidence export as text, one entry per line.
func RenderEntries(entries []evidence.Entry) string {
	var b strings.Builder
	if len(entries) == 0 {
		b.WriteString("No matching evidence entries\n")
		return b.String()
	}
	for _, e := range entries {
		fmt.Fprintf(&b, "#%-6d %s  %-16s %-24s cred=%s hash=%s\n",
			e.ID,
			e.Timestamp.Format("2006-01-02T15:04:05Z"),
			e.EventType,
			e.Site,
			shortHash(e.CredentialIDHash),
			shortHash(e.ChainHash),
		)
	}
	fmt.Fprintf(&b, "%d entries\n", len(entries))
	return b.String()
}

// RenderHealth renders a health check as text.
func RenderHealth(h service.Health) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Status: %s\n", h.Status)
	if h.Warning != "" {
		fmt.Fprintf(&b, "Warning: %s\n", h.Warning)
	}
	fmt.Fprintf(&b, "Database: %s (schema v%d)\n", h.DBPath, h.SchemaVersion)
	fmt.Fprintf(&b, "Chain length: %d\n", h.ChainLength)
	fmt.Fprintf(&b, "Integrity: %s\n", h.Integrity)
	return b.String()
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12]
}

func sortedSites(bySite map[string]int) []string {
	sites := make([]string, 0, len(bySite))
	for site := range bySite {
		sites = append(sites, site)
	}
	// Deterministic rendering for humans and golden files alike.
	sort.Strings(sites)
	return sites
}
