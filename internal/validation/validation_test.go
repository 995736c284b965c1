package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/flysure/internal/model"
	"github.com/mmeshcher/flysure/pkg/api"
)

func TestStruct(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		wantErr []string
	}{
		{
			name: "valid transfer",
			in:   api.TransferRequest{To: "0x2000000000000000000000000000000000000002", Amount: "12.5"},
		},
		{
			name:    "missing fields",
			in:      api.TransferRequest{},
			wantErr: []string{"to is required", "amount is required"},
		},
		{
			name:    "bad address",
			in:      api.ApproveRequest{Spender: "0x123", Amount: "1"},
			wantErr: []string{"spender must be a 0x-prefixed 20-byte hex address"},
		},
		{
			name:    "too many decimals",
			in:      api.FaucetRequest{Amount: "0.0000001"},
			wantErr: []string{"amount must be a decimal amount with at most 6 decimals"},
		},
		{
			name:    "not a number",
			in:      api.CreatePolicyRequest{FlightID: "TK1", Premium: "ten", Payout: "100"},
			wantErr: []string{"premium must be a decimal amount"},
		},
		{
			name: "delayed status",
			in:   api.FlightStatusRequest{Status: "DELAYED", DelayMinutes: 150},
		},
		{
			name:    "unknown status",
			in:      api.FlightStatusRequest{Status: "LANDED"},
			wantErr: []string{"status must be one of ON_TIME, DELAYED, CANCELLED"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.in)
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, msg := range tt.wantErr {
				assert.Contains(t, err.Error(), msg)
			}
		})
	}
}

func TestAddress(t *testing.T) {
	addr, err := Address("0xABCDEF0000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, model.Address("0xabcdef0000000000000000000000000000000001"), addr)

	for _, s := range []string{"", "abcdef0000000000000000000000000000000001", "0x12", "0xZZ00000000000000000000000000000000000001"} {
		_, err := Address(s)
		assert.ErrorIs(t, err, model.ErrInvalidAddress, s)
	}
}
