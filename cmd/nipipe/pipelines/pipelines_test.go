// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pipelines

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/matt-FFFFFF/nipipe/internal/pipeline"
	"github.com/prashantv/gostub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteList(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeList(&buf))

	out := buf.String()
	assert.Contains(t, out, "dl-segmentation")
	assert.Contains(t, out, "patient-pipeline")
	assert.Contains(t, out, "workspace")
}

func TestPipelinesCmd_Print(t *testing.T) {
	buf := new(bytes.Buffer)

	defer gostub.Stub(&PipelinesCmd.Writer, io.Writer(buf)).Reset()

	require.NoError(t, PipelinesCmd.Run(context.Background(), []string{"pipelines", "dl-segmentation"}))

	def, err := pipeline.DecodeYAML(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "dl-segmentation", def.Name)
	assert.Len(t, def.Phases, 6)
}
