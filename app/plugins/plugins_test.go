package plugins

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCatalogListsBuiltins(t *testing.T) {
	cat := Catalog()
	assert.Subset(t, cat["source"], []string{"slice", "csv", "mqtt", "kafka", "serial", "sim"})
	assert.Subset(t, cat["oracle"], []string{"static", "persistence", "linear", "http"})
	assert.Subset(t, cat["classifier"], []string{"rule", "static", "http"})
	assert.Subset(t, cat["sink"], []string{"nop", "memory", "log", "console", "prometheus", "influx", "mqtt", "kafka", "jsonl", "sqlite"})
}
