package bcilog

import (
	"fmt"

	"github.com/bcilog/bcilog/bcifile"
)

// sampleRateCodes maps the board's sample rates (Hz) to the digit of its "~N" command.
var sampleRateCodes = map[int]byte{
	16000: '0',
	8000:  '1',
	4000:  '2',
	2000:  '3',
	1000:  '4',
	500:   '5',
	250:   '6',
}

// gainCodes maps programmable gains to the digit used in channel settings commands.
var gainCodes = map[int]byte{
	1:  '0',
	2:  '1',
	4:  '2',
	6:  '3',
	8:  '4',
	12: '5',
	24: '6',
}

// ChannelIDs are the characters naming channels 1-16 in board commands.
const ChannelIDs = "12345678QWERTYUI"

// SampleRateCode returns the "~N" digit for a sample rate. Only the fixed
// profile rate is accepted.
func SampleRateCode(rate int) (byte, error) {
	if rate != bcifile.SAMPLERATE {
		return 0, fmt.Errorf("sample rate %d Hz is not supported, want %d Hz", rate, bcifile.SAMPLERATE)
	}
	return sampleRateCodes[rate], nil
}

// GainCode returns the channel-settings digit for a gain.
func GainCode(gain int) (byte, error) {
	code, ok := gainCodes[gain]
	if !ok {
		return 0, fmt.Errorf("gain x%d is not one of 1, 2, 4, 6, 8, 12, 24", gain)
	}
	return code, nil
}

// ValidateProfile checks a sample rate and gain table against the fixed
// hardware profile.
func ValidateProfile(sampleRate int, gains []int) error {
	if _, err := SampleRateCode(sampleRate); err != nil {
		return err
	}
	if len(gains) != bcifile.NCHAN {
		return fmt.Errorf("gain table has %d entries, want %d", len(gains), bcifile.NCHAN)
	}
	for i, g := range gains {
		if _, err := GainCode(g); err != nil {
			return fmt.Errorf("channel %d: %w", i+1, err)
		}
	}
	return nil
}

// ConfigureCommands returns the board commands that select sampleRate and the
// per-channel gains: the sample rate, marker mode, then one channel settings
// command per channel (powered on, normal input, in bias, SRB2 connected).
func ConfigureCommands(sampleRate int, gains []int) ([]string, error) {
	if err := ValidateProfile(sampleRate, gains); err != nil {
		return nil, err
	}
	rcode, _ := SampleRateCode(sampleRate)
	cmds := []string{"~" + string(rcode), "/4"}
	for i, g := range gains {
		gcode, _ := GainCode(g)
		cmds = append(cmds, fmt.Sprintf("x%c0%c0110X", ChannelIDs[i], gcode))
	}
	return cmds, nil
}
