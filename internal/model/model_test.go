package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Amount
		wantErr bool
	}{
		{name: "integer", in: "100", want: 100_000_000},
		{name: "fraction", in: "10.5", want: 10_500_000},
		{name: "six decimals", in: "0.000001", want: 1},
		{name: "zero", in: "0", want: 0},
		{name: "too many decimals", in: "0.0000001", wantErr: true},
		{name: "garbage", in: "ten", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAmountString(t *testing.T) {
	assert.Equal(t, "100.000000", Units(100).String())
	assert.Equal(t, "10.500000", Amount(10_500_000).String())
	assert.Equal(t, "0.000001", Amount(1).String())
}

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("0xCaC524BcA292aaade2DF8A05cC58F0a65B1B3bB9")
	require.NoError(t, err)
	assert.Equal(t, Address("0xcac524bca292aaade2df8a05cc58f0a65b1b3bb9"), a)

	_, err = ParseAddress("0x1234")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = ParseAddress("0xZZc524bca292aaade2df8a05cc58f0a65b1b3bb9")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	assert.True(t, ZeroAddress.IsZero())
	assert.True(t, Address("").IsZero())
	assert.False(t, a.IsZero())
}

func TestPolicyQualifiesForPayout(t *testing.T) {
	tests := []struct {
		name   string
		status FlightStatus
		delay  int64
		want   bool
	}{
		{name: "on time", status: FlightStatusOnTime, want: false},
		{name: "delayed below threshold", status: FlightStatusDelayed, delay: 60, want: false},
		{name: "delayed at threshold", status: FlightStatusDelayed, delay: 120, want: true},
		{name: "delayed above threshold", status: FlightStatusDelayed, delay: 150, want: true},
		{name: "cancelled", status: FlightStatusCancelled, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Policy{DelayThreshold: 120, FlightStatus: tt.status, ActualDelayMinutes: tt.delay}
			assert.Equal(t, tt.want, p.QualifiesForPayout())
		})
	}
}

func TestPolicyDeparted(t *testing.T) {
	dep := time.Date(2025, 10, 25, 12, 0, 0, 0, time.UTC)
	p := &Policy{DepartureAt: dep}

	assert.False(t, p.Departed(dep.Add(-time.Second)))
	assert.True(t, p.Departed(dep))
	assert.True(t, p.Departed(dep.Add(time.Hour)))
}
