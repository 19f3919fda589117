package archive

import "strings"

// Milestone maps a textual marker in the tool's output to a progress
// percentage on the adapter's [0,100] scale.
type Milestone struct {
	Marker  string
	Percent int
	Stage   string
}

// ProgressParser turns the accumulated output of the external tool into a
// progress estimate. Implementations are expected to be monotonic: once a
// percentage has been reported, later calls never report less.
type ProgressParser interface {
	// Parse inspects the accumulated output and reports the current progress
	// estimate. ok is false when the estimate has not advanced.
	Parse(output string) (percent int, stage string, ok bool)
}

// MilestoneParser infers progress from an ordered set of textual milestones.
// Marker matching is case-insensitive substring search over the accumulated
// output, so a milestone is still recognized when the tool interleaves other
// lines around it.
type MilestoneParser struct {
	milestones []Milestone
	last       int
}

// NewMilestoneParser creates a parser over the given ordered milestones.
func NewMilestoneParser(milestones []Milestone) *MilestoneParser {
	return &MilestoneParser{milestones: milestones, last: -1}
}

// Parse implements ProgressParser.
func (p *MilestoneParser) Parse(output string) (int, string, bool) {
	lower := strings.ToLower(output)
	best := -1
	for i, m := range p.milestones {
		if strings.Contains(lower, strings.ToLower(m.Marker)) {
			if best < 0 || m.Percent > p.milestones[best].Percent {
				best = i
			}
		}
	}
	if best < 0 || p.milestones[best].Percent <= p.last {
		return 0, "", false
	}
	p.last = p.milestones[best].Percent
	return p.milestones[best].Percent, p.milestones[best].Stage, true
}

// DefaultExportMilestones matches the output of sqlpackage /a:Export. The
// marker strings are version-fragile by nature, which is why they live in a
// swappable parser instead of the adapter itself.
func DefaultExportMilestones() []Milestone {
	return []Milestone{
		{Marker: "Connecting to database", Percent: 10, Stage: "Connecting to source database"},
		{Marker: "Extracting schema", Percent: 25, Stage: "Extracting schema"},
		{Marker: "Processing Table", Percent: 60, Stage: "Extracting data"},
		{Marker: "Writing package", Percent: 90, Stage: "Writing archive"},
	}
}

// DefaultImportMilestones matches the output of sqlpackage /a:Import.
func DefaultImportMilestones() []Milestone {
	return []Milestone{
		{Marker: "Creating deployment plan", Percent: 20, Stage: "Planning import"},
		{Marker: "Updating database", Percent: 40, Stage: "Applying schema"},
		{Marker: "Importing data", Percent: 70, Stage: "Importing data"},
		{Marker: "Successfully imported", Percent: 100, Stage: "Import finished"},
	}
}
