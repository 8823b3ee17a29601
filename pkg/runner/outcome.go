package runner

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/packagehub/hubsync/pkg/catalog"
)

// Kind tags the per-repository result of a run. A failure is terminal for
// that repository for this run only; the next run starts fresh.
type Kind string

const (
	// Updated: new versions were committed (and proposed, when pushing).
	Updated Kind = "updated"
	// NoChange: upstream has nothing the hub does not already have.
	NoChange Kind = "no-change"
	// Skipped: the repository cannot be processed as-is (no descriptor,
	// no publishable version); not an error of the run.
	Skipped Kind = "skipped"
	// Failed: a transient or git error; retried by the next run.
	Failed Kind = "failed"
)

// Outcome is the tagged result for one tracked repository. Aggregating
// values instead of unwinding on error keeps one repository's failure from
// masking another's report.
type Outcome struct {
	Entry    catalog.Entry
	Kind     Kind
	Versions []string
	Reason   string
}

func updated(entry catalog.Entry, versions []string) Outcome {
	return Outcome{Entry: entry, Kind: Updated, Versions: versions}
}

func noChange(entry catalog.Entry) Outcome {
	return Outcome{Entry: entry, Kind: NoChange}
}

func skipped(entry catalog.Entry, reason string) Outcome {
	return Outcome{Entry: entry, Kind: Skipped, Reason: reason}
}

func failed(entry catalog.Entry, err error) Outcome {
	return Outcome{Entry: entry, Kind: Failed, Reason: err.Error()}
}

// Summary renders one line per repository.
func Summary(outcomes []Outcome) string {
	var b strings.Builder
	for _, o := range outcomes {
		switch o.Kind {
		case Updated:
			fmt.Fprintf(&b, "%s %s: %d new version(s): %s\n",
				color.GreenString("ok  "), o.Entry.Slug(), len(o.Versions), strings.Join(o.Versions, ", "))
		case NoChange:
			fmt.Fprintf(&b, "%s %s: no new versions\n", "--  ", o.Entry.Slug())
		case Skipped:
			fmt.Fprintf(&b, "%s %s: %s\n", color.YellowString("skip"), o.Entry.Slug(), o.Reason)
		case Failed:
			fmt.Fprintf(&b, "%s %s: %s\n", color.RedString("fail"), o.Entry.Slug(), o.Reason)
		}
	}
	return b.String()
}
