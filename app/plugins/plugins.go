// Package plugins links every built-in source, oracle, classifier and sink
// into the binary. Importing it for side effects fills the registries.
package plugins

import (
	"github.com/kilianp07/bmsctl/core/classifier"
	"github.com/kilianp07/bmsctl/core/prediction"
	"github.com/kilianp07/bmsctl/core/sink"
	"github.com/kilianp07/bmsctl/core/source"

	_ "github.com/kilianp07/bmsctl/infra/auditlog"
	_ "github.com/kilianp07/bmsctl/infra/csvsource"
	_ "github.com/kilianp07/bmsctl/infra/inference"
	_ "github.com/kilianp07/bmsctl/infra/kafka"
	_ "github.com/kilianp07/bmsctl/infra/metrics"
	_ "github.com/kilianp07/bmsctl/infra/mqtt"
	_ "github.com/kilianp07/bmsctl/infra/serial"
	_ "github.com/kilianp07/bmsctl/infra/simulator"
)

// Catalog lists the registered module types by kind.
func Catalog() map[string][]string {
	return map[string][]string{
		"source":     source.Types(),
		"oracle":     prediction.Types(),
		"classifier": classifier.Types(),
		"sink":       sink.Types(),
	}
}
