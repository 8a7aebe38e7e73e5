package gcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCode_String(t *testing.T) {
	assert.Equal(t, "G1", G(1).String())
	assert.Equal(t, "M104", M(104).String())
	assert.Equal(t, "?", Code{}.String())
}

func TestMotionCommand_String(t *testing.T) {
	cmds := MustParse(`
		G1 X10 Y20.5 F1200 ; move
		G28
		G28 X
		M104 S200
		G92 E0
		M84
	`)
	require.Len(t, cmds, 6)

	assert.Equal(t, "G1 X10 Y20.5 F1200", cmds[0].String())
	assert.Equal(t, "G28 X Y Z", cmds[1].String())
	assert.Equal(t, "G28 X", cmds[2].String())
	assert.Equal(t, "M104 S200", cmds[3].String())
	assert.Equal(t, "G92 E0", cmds[4].String())
	assert.Equal(t, "M84", cmds[5].String())
}

func TestMotionCommand_StringReparses(t *testing.T) {
	in := MustParse("G1 X1.25 Y-3 Z0.3 E0.05 F2400\nG2 X5 Y5 F90")
	for _, cmd := range in {
		out, err := NewParser().Parse(cmd.String())
		require.NoError(t, err)
		assert.Equal(t, cmd.Code, out.Code)
		assert.InDelta(t, cmd.F, out.F, 1e-9)
		assert.Equal(t, cmd.X, out.X)
	}
}

func TestParseAll_Error(t *testing.T) {
	_, err := ParseAll("G28\n\nM107 S1\n")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForbiddenPresent)
	assert.Contains(t, err.Error(), "line 3")
}
