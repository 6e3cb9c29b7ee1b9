package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVRenderKeepsColumnOrder(t *testing.T) {
	dataset := Dataset{Headers: []string{"Code", "Title", "Status"}}
	dataset.AddRow("SP26-SE001", "Campus Event Platform", "PUBLISHED")
	dataset.AddRow("SP26-SE002", "Library Companion")

	payload, err := NewCSVExporter().Render(dataset)
	require.NoError(t, err)

	body := string(payload)
	assert.Contains(t, body, "Code,Title,Status\n")
	assert.Contains(t, body, "SP26-SE001,Campus Event Platform,PUBLISHED\n")
	// Short rows are padded to the header width.
	assert.Contains(t, body, "SP26-SE002,Library Companion,\n")
}

func TestCSVRenderRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
}
