package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	in := strings.NewReader("; part\nG91\nG1 X1 F1200\nM107 S1\nG28 X10\n")
	var out bytes.Buffer

	bad, err := check(in, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, bad)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "2: G91", lines[0])
	assert.Equal(t, "3: G1 X1 F1200", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "4: ERROR: M107"), lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "5: ERROR: G28"), lines[3])
}
