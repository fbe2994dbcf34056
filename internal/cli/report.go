package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Veraticus/tally/internal/backfill"
	"github.com/Veraticus/tally/internal/classify"
	"github.com/Veraticus/tally/internal/importer"
	"github.com/Veraticus/tally/internal/quickbooks"
)

// listLimit caps each detail list unless the caller asks for everything.
const listLimit = 15

// RenderImportReport writes an import report as a summary box followed by the advisory
// lists that have entries.
func RenderImportReport(w io.Writer, r *importer.Report, verbose bool) error {
	title := "Import complete"
	if r.DryRun {
		title = "Import preview (dry run, nothing written)"
	}

	summary := []string{
		SummaryLine("Rows read", r.TotalRows),
		SummaryLine("Parsed", r.Parsed),
		SummaryLine("Duplicates", r.Duplicates),
		SummaryLine("Expenses", fmt.Sprintf("%d imported, %d failed", r.Expenses.Imported, r.Expenses.Failed)),
		SummaryLine("Revenues", fmt.Sprintf("%d imported, %d failed", r.Revenues.Imported, r.Revenues.Failed)),
		SummaryLine("Payees created", len(r.CreatedPayees)),
	}

	var tiers []string
	for _, tier := range classify.Tiers() {
		if n := r.ClassificationTiers[tier]; n > 0 {
			tiers = append(tiers, fmt.Sprintf("%s %d", tier, n))
		}
	}
	if len(tiers) > 0 {
		summary = append(summary, SummaryLine("Categories by", strings.Join(tiers, ", ")))
	}
	summary = append(summary, SummaryLine("Took", r.Duration.Round(time.Millisecond)))

	var out strings.Builder
	out.WriteString(RenderBox(LedgerIcon+" "+title, strings.Join(summary, "\n")))
	out.WriteString("\n")

	if len(r.Errors) > 0 {
		lines := make([]string, len(r.Errors))
		for i, e := range r.Errors {
			lines[i] = e.Error()
		}
		writeSection(&out, FormatError(fmt.Sprintf("%d row errors", len(r.Errors))), lines, verbose)
	}
	if r.DuplicateHeuristicWarning {
		out.WriteString(FormatWarning("Duplicates are matched on date, amount and name only; review the skipped rows below.") + "\n")
	}
	if len(r.DuplicateRows) > 0 {
		lines := make([]string, len(r.DuplicateRows))
		for i, d := range r.DuplicateRows {
			lines[i] = fmt.Sprintf("row %d duplicates row %d (%s)", d.Transaction.Row, d.Original.Row, d.Reason)
		}
		writeSection(&out, SubtleStyle.Render("Skipped duplicates"), lines, verbose)
	}
	writeUnmatched(&out, "Unmatched projects", r.UnmatchedProjects, verbose)
	writeUnmatched(&out, "Unmatched payees", r.UnmatchedPayees, verbose)
	writeUnmatched(&out, "Unmatched clients", r.UnmatchedClients, verbose)

	if len(r.Suggestions) > 0 {
		lines := make([]string, len(r.Suggestions))
		for i, s := range r.Suggestions {
			candidates := make([]string, len(s.Candidates))
			for j, c := range s.Candidates {
				candidates[j] = fmt.Sprintf("%s (%d)", c.CandidateName, c.Confidence)
			}
			lines[i] = fmt.Sprintf("row %d %s %q: %s", s.Row, s.Party, s.Name, strings.Join(candidates, ", "))
		}
		writeSection(&out, InfoStyle.Render("Needs review"), lines, verbose)
	}
	if len(r.CreatedPayees) > 0 {
		lines := make([]string, len(r.CreatedPayees))
		for i, p := range r.CreatedPayees {
			lines[i] = fmt.Sprintf("%s (%s)", p.Name, p.Type)
		}
		writeSection(&out, SuccessStyle.Render("New payees"), lines, verbose)
	}
	if len(r.FlaggedDates) > 0 {
		lines := make([]string, len(r.FlaggedDates))
		for i, f := range r.FlaggedDates {
			lines[i] = fmt.Sprintf("row %d: %q", f.Row, f.Raw)
		}
		writeSection(&out, FormatWarning("Unparseable dates, stamped with the import date"), lines, verbose)
	}

	_, err := io.WriteString(w, out.String())
	return err
}

// RenderBackfillReport writes a backfill report.
func RenderBackfillReport(w io.Writer, r *backfill.Report, verbose bool) error {
	title := "Backfill complete"
	if r.DryRun {
		title = "Backfill preview (dry run, nothing written)"
	}

	var fetched []string
	for _, entity := range []quickbooks.EntityType{quickbooks.EntityBill, quickbooks.EntityPurchase, quickbooks.EntityInvoice} {
		fetched = append(fetched, fmt.Sprintf("%s %d", entity, r.Fetched[entity]))
	}
	summary := []string{
		SummaryLine("Environment", r.Environment),
		SummaryLine("Fetched", strings.Join(fetched, ", ")),
		SummaryLine("Examined", fmt.Sprintf("%d unlinked records", r.Examined)),
		SummaryLine("Links found", len(r.Links)),
		SummaryLine("Updated", fmt.Sprintf("%d expenses, %d revenues", r.UpdatedExpenses, r.UpdatedRevenues)),
		SummaryLine("No match", r.NoKey),
		SummaryLine("Rejected", len(r.Rejected)),
		SummaryLine("Already linked", r.AlreadyLinked),
		SummaryLine("Key collisions", r.KeyCollisions),
		SummaryLine("Took", r.Duration.Round(time.Millisecond)),
	}

	var out strings.Builder
	out.WriteString(RenderBox(LinkIcon+" "+title, strings.Join(summary, "\n")))
	out.WriteString("\n")

	if len(r.Errors) > 0 {
		lines := make([]string, len(r.Errors))
		for i, e := range r.Errors {
			lines[i] = e.Error()
		}
		writeSection(&out, FormatError(fmt.Sprintf("%d write errors", len(r.Errors))), lines, verbose)
	}
	if len(r.Links) > 0 {
		lines := make([]string, len(r.Links))
		for i, l := range r.Links {
			lines[i] = fmt.Sprintf("%s %s -> %s %s  %q ~ %q (%s %.2f)",
				l.Stream, l.RecordID, l.ProviderEntity, l.ProviderID,
				l.InternalName, l.ProviderName, l.MatchType, l.Confidence)
		}
		writeSection(&out, SuccessStyle.Render("Links"), lines, verbose)
	}
	if len(r.Rejected) > 0 {
		lines := make([]string, len(r.Rejected))
		for i, rej := range r.Rejected {
			lines[i] = fmt.Sprintf("%s %s vs %s  %q ~ %q (%.2f)",
				rej.Stream, rej.RecordID, rej.ProviderID, rej.InternalName, rej.ProviderName, rej.Confidence)
		}
		writeSection(&out, WarningStyle.Render("Rejected (same date and amount, different name)"), lines, verbose)
	}
	if r.DryRun && len(r.Links) > 0 {
		out.WriteString(FormatInfo("Re-run with --commit to write these links.") + "\n")
	}

	_, err := io.WriteString(w, out.String())
	return err
}

func writeUnmatched(out *strings.Builder, title string, items []importer.Unmatched, verbose bool) {
	if len(items) == 0 {
		return
	}
	lines := make([]string, len(items))
	for i, u := range items {
		lines[i] = fmt.Sprintf("%q (first seen row %d)", u.Value, u.Row)
	}
	writeSection(out, WarningStyle.Render(title), lines, verbose)
}

func writeSection(out *strings.Builder, heading string, lines []string, verbose bool) {
	out.WriteString("\n" + BoldStyle.Render(heading) + "\n")
	shown := lines
	if !verbose && len(shown) > listLimit {
		shown = shown[:listLimit]
	}
	for _, l := range shown {
		out.WriteString("  " + l + "\n")
	}
	if hidden := len(lines) - len(shown); hidden > 0 {
		out.WriteString(SubtleStyle.Render(fmt.Sprintf("  ... and %d more (use --verbose)", hidden)) + "\n")
	}
}
