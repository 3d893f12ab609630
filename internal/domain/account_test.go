package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBookingLimit(t *testing.T) {
	tests := []struct {
		status TierStatus
		want   int64
	}{
		{TierFree, FreeTierBookingLimit},
		{TierActive, UnlimitedBookings},
		{TierPastDue, UnlimitedBookings},
		{TierGraceCancelled, UnlimitedBookings},
		{TierStatus("bogus"), FreeTierBookingLimit},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, BookingLimit(tt.status))
		})
	}
}

func TestTierStatus_IsPaid(t *testing.T) {
	assert.False(t, TierFree.IsPaid())
	assert.True(t, TierActive.IsPaid())
	assert.True(t, TierPastDue.IsPaid())
	assert.True(t, TierGraceCancelled.IsPaid())
	assert.False(t, TierStatus("bogus").IsPaid())
}

func TestTierStatus_Valid(t *testing.T) {
	for _, s := range []TierStatus{TierFree, TierActive, TierPastDue, TierGraceCancelled} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, TierStatus("suspended").Valid())
}
