package output

import (
	"fmt"
	"os"
	"time"

	"github.com/netfabric/fabsync/pkg/fabrics"
	"github.com/netfabric/fabsync/pkg/reconcile"
	syncop "github.com/netfabric/fabsync/pkg/sync"
)

// FabricsToTableData converts fabric definitions to table format.
func FabricsToTableData(fabs []*fabrics.Fabric) Data {
	headers := []string{"ID", "Name", "Repository", "Cluster", "Work Dir"}

	rows := make([][]string, 0, len(fabs))
	for _, f := range fabs {
		name := f.Name
		if name == "" {
			name = "-"
		}
		rows = append(rows, []string{f.ID, name, f.RepoURL, f.ClusterURL, f.WorkDir})
	}

	return Data{Headers: headers, Rows: rows}
}

// OperationsToTableData converts operation snapshots to table format.
func OperationsToTableData(ops []syncop.Snapshot) Data {
	headers := []string{"ID", "Fabric", "Direction", "Phase", "Started", "Duration", "Changed", "Conflicts", "Errors"}

	rows := make([][]string, 0, len(ops))
	for _, op := range ops {
		changed := op.Counts.Created + op.Counts.Updated + op.Counts.Deleted
		rows = append(rows, []string{
			op.ID,
			op.FabricID,
			string(op.Direction),
			string(op.Phase),
			op.StartedAt.Format(time.RFC3339),
			formatDuration(op),
			fmt.Sprintf("%d", changed),
			fmt.Sprintf("%d", op.Counts.Conflicted),
			fmt.Sprintf("%d", op.Counts.Errored),
		})
	}

	return Data{
		Headers: headers,
		Rows:    rows,
		ColumnAlignment: []Align{
			AlignLeft, AlignLeft, AlignLeft, AlignLeft, AlignLeft,
			AlignRight, AlignRight, AlignRight, AlignRight,
		},
	}
}

// ConflictsToTableData converts conflicts to table format.
func ConflictsToTableData(conflicts []*reconcile.Conflict) Data {
	headers := []string{"ID", "Fabric", "Resource", "Type", "Severity", "Detected", "Status"}

	rows := make([][]string, 0, len(conflicts))
	for _, c := range conflicts {
		status := "unresolved"
		if c.Resolved() {
			status = fmt.Sprintf("resolved (%s)", c.Resolution.Strategy)
		}
		rows = append(rows, []string{
			c.ID,
			c.FabricID,
			c.Resource.String(),
			string(c.Type),
			string(c.Severity),
			c.DetectedAt.Format(time.RFC3339),
			status,
		})
	}

	return Data{Headers: headers, Rows: rows}
}

func formatDuration(op syncop.Snapshot) string {
	if op.FinishedAt == nil {
		return "-"
	}
	return op.FinishedAt.Sub(op.StartedAt).Round(time.Millisecond).String()
}

// Print formats data to stdout. Table-oriented values go through their
// table builders; everything else renders per the requested format.
func Print(format Format, data any) error {
	return NewFormatter(format).Format(os.Stdout, data)
}

// PrintTableOr renders tableData for table formats, raw for json/yaml.
func PrintTableOr(format Format, tableData Data, raw any) error {
	switch format {
	case FormatJSON, FormatYAML:
		return Print(format, raw)
	default:
		return Print(format, tableData)
	}
}
