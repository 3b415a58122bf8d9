package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTenantHasAccess(t *testing.T) {
	now := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)
	later := now.Add(time.Second)
	earlier := now.Add(-time.Second)

	assert.False(t, (*Tenant)(nil).HasAccess(now))
	assert.False(t, (&Tenant{}).HasAccess(now))
	assert.True(t, (&Tenant{Active: true}).HasAccess(now), "active without expiry")
	assert.True(t, (&Tenant{Active: true, SubscriptionExpiresAt: &later}).HasAccess(now))
	assert.False(t, (&Tenant{Active: true, SubscriptionExpiresAt: &now}).HasAccess(now), "expiry must be strictly after now")
	assert.False(t, (&Tenant{Active: true, SubscriptionExpiresAt: &earlier}).HasAccess(now))
	assert.False(t, (&Tenant{Active: false, SubscriptionExpiresAt: &later}).HasAccess(now))
}

func TestTenantDaysRemaining(t *testing.T) {
	now := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)
	in := func(d time.Duration) *time.Time { v := now.Add(d); return &v }

	assert.Equal(t, 0, (&Tenant{}).DaysRemaining(now))
	assert.Equal(t, 0, (&Tenant{SubscriptionExpiresAt: in(-72 * time.Hour)}).DaysRemaining(now))
	assert.Equal(t, 0, (&Tenant{SubscriptionExpiresAt: in(23 * time.Hour)}).DaysRemaining(now))
	assert.Equal(t, 29, (&Tenant{SubscriptionExpiresAt: in(30*24*time.Hour - time.Minute)}).DaysRemaining(now))
	assert.Equal(t, 30, (&Tenant{SubscriptionExpiresAt: in(30 * 24 * time.Hour)}).DaysRemaining(now))
}

func TestLoadNetProfit(t *testing.T) {
	l := &Load{RateCents: 100000, ExpensesCents: 25000}
	assert.NoError(t, l.BeforeSave(nil))
	assert.Equal(t, int64(75000), l.NetProfitCents)

	l.ExpensesCents = 40000
	assert.NoError(t, l.BeforeSave(nil))
	assert.Equal(t, int64(60000), l.NetProfitCents)

	l.DriverPayCents = 10000
	assert.Equal(t, int64(50000), l.NetProfit())
}

func TestLoadTransitions(t *testing.T) {
	allowed := [][2]string{
		{LoadBooked, LoadActive},
		{LoadActive, LoadDelivered},
		{LoadDelivered, LoadPaid},
		{LoadBooked, LoadCancelled},
		{LoadActive, LoadCancelled},
	}
	for _, tr := range allowed {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
	denied := [][2]string{
		{LoadActive, LoadBooked},
		{LoadDelivered, LoadActive},
		{LoadPaid, LoadDelivered},
		{LoadDelivered, LoadCancelled},
		{LoadCancelled, LoadBooked},
		{LoadBooked, LoadPaid},
		{LoadPaid, LoadCancelled},
	}
	for _, tr := range denied {
		assert.False(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
}

func TestNormalizeLoadStatus(t *testing.T) {
	s, ok := NormalizeLoadStatus(" In_Transit ")
	assert.True(t, ok)
	assert.Equal(t, LoadActive, s)

	s, ok = NormalizeLoadStatus("PAID")
	assert.True(t, ok)
	assert.Equal(t, LoadPaid, s)

	_, ok = NormalizeLoadStatus("lost")
	assert.False(t, ok)
}
