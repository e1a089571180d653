package bcilog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureCommands(t *testing.T) {
	cmds, err := ConfigureCommands(2000, DefaultGains())
	require.NoError(t, err)
	require.Len(t, cmds, 2+16)
	assert.Equal(t, "~3", cmds[0])
	assert.Equal(t, "/4", cmds[1])
	assert.Equal(t, "x1060110X", cmds[2])
	assert.Equal(t, "x8060110X", cmds[9])
	assert.Equal(t, "xQ060110X", cmds[10])
	assert.Equal(t, "xI060110X", cmds[17])

	gains := DefaultGains()
	gains[0] = 1
	gains[15] = 8
	cmds, err = ConfigureCommands(2000, gains)
	require.NoError(t, err)
	assert.Equal(t, "x1000110X", cmds[2])
	assert.Equal(t, "xI040110X", cmds[17])
}

func TestValidateProfile(t *testing.T) {
	assert.NoError(t, ValidateProfile(2000, DefaultGains()))
	assert.Error(t, ValidateProfile(250, DefaultGains()), "only 2000 Hz is supported")
	assert.Error(t, ValidateProfile(2000, DefaultGains()[:8]))
	gains := DefaultGains()
	gains[3] = 3
	err := ValidateProfile(2000, gains)
	assert.ErrorContains(t, err, "channel 4")

	_, err = GainCode(24)
	assert.NoError(t, err)
	_, err = SampleRateCode(16000)
	assert.Error(t, err)
}

func TestControlError(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(NewControlError(Unreachable, "configure", cause))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "board configure unreachable: connection refused", err.Error())
	var ce *ControlError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, Unreachable, ce.Kind)
	assert.Equal(t, "rejected", Rejected.String())
}

func TestSimulatedBoardControl(t *testing.T) {
	sb := new(SimulatedBoard)
	ctx := context.Background()
	err := sb.StartStream(ctx, 9)
	var ce *ControlError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, Rejected, ce.Kind)

	err = sb.Configure(ctx, 2000, []int{24})
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, Rejected, ce.Kind)

	assert.NoError(t, sb.StopStream(ctx), "stopping an idle board is harmless")
	assert.Nil(t, sb.Done())
}

func TestSimulatedValue(t *testing.T) {
	seen := make(map[int32]bool)
	for pair := 0; pair < 100; pair++ {
		for ch := 0; ch < 16; ch++ {
			v := SimulatedValue(pair, ch)
			assert.GreaterOrEqual(t, v, int32(-8388608))
			assert.LessOrEqual(t, v, int32(8388607))
			seen[v] = true
		}
	}
	assert.Len(t, seen, 1600, "values should identify pair and channel")
}
