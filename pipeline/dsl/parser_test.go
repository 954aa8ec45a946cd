package dsl

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/auditflow/pipeline"
)

const referencePipeline = `
name: gdpr-scan
description: Scan source and database for personal data
contact: compliance@example.com
config:
  max_concurrency: 8
  timeout: 300s
artifacts:
  source_files:
    source:
      type: file
      properties: {path: ./src}
  customer_db:
    source:
      type: database
      properties: {dialect: sqlite, dsn: ./crm.db, table: customers}
  file_findings:
    inputs: source_files
    transform:
      type: patterns
      properties: {ruleset: personal_data}
  db_findings:
    inputs: customer_db
    transform:
      type: patterns
      properties: {ruleset: personal_data}
  report:
    inputs: [file_findings, db_findings]
    transform:
      type: report
    output: true
`

func TestParseReferencePipeline(t *testing.T) {
	t.Parallel()

	def, err := Parse([]byte(referencePipeline))
	require.NoError(t, err)

	assert.Equal(t, "gdpr-scan", def.Name)
	assert.Equal(t, "compliance@example.com", def.Contact)
	assert.Equal(t, 8, def.Config.MaxConcurrency)
	assert.Equal(t, 5*time.Minute, def.Config.Timeout)
	assert.Len(t, def.Artifacts, 5)

	files := def.Artifacts["source_files"]
	require.NotNil(t, files.Source)
	assert.Equal(t, "file", files.Source.Type)
	assert.Equal(t, "./src", files.Source.Properties["path"])
	assert.True(t, files.IsSource())

	// Scalar and list inputs both decode.
	assert.Equal(t, []string{"source_files"}, def.Artifacts["file_findings"].Inputs)
	report := def.Artifacts["report"]
	assert.Equal(t, []string{"file_findings", "db_findings"}, report.Inputs)
	assert.True(t, report.Output)
	require.NotNil(t, report.Transform)
	assert.Equal(t, "report", report.Transform.Type)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte(`
name: typo
artifacts:
  a:
    trasform:
      type: patterns
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trasform")
}

func TestParseRejectsInvalidStructure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "both source and transform",
			yaml: `
name: p
artifacts:
  a:
    source: {type: file}
    inputs: [b]
    transform: {type: patterns}
  b:
    source: {type: file}
`,
		},
		{
			name: "derived without inputs",
			yaml: `
name: p
artifacts:
  a:
    transform: {type: patterns}
`,
		},
		{
			name: "missing name",
			yaml: `
artifacts:
  a:
    source: {type: file}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)

			var planErr *pipeline.PlanError
			require.True(t, errors.As(err, &planErr))
			assert.Equal(t, pipeline.PlanErrInvalidDefinition, planErr.Kind)
		})
	}
}

func TestParseRejectsBadTimeout(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte(`
name: p
config:
  timeout: five minutes
artifacts:
  a:
    source: {type: file}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestParseRejectsMappingInputs(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte(`
name: p
artifacts:
  a:
    inputs: {b: true}
    transform: {type: patterns}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inputs must be a string or a list")
}
