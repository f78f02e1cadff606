package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRealProvider_Now(t *testing.T) {
	provider := RealProvider{}
	now := provider.Now()

	assert.InEpsilon(t, time.Now().UTC().Unix(), now.Unix(), 10, "Time should be close to current time")
}

func TestMock_Now(t *testing.T) {
	fixedTime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	provider := Mock{CurrentTime: fixedTime}

	assert.Equal(t, fixedTime, provider.Now(), "Mock provider should return the fixed time")
}

func TestMock_Sleep(t *testing.T) {
	fixedTime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	provider := Mock{CurrentTime: fixedTime}

	provider.Sleep(1 * time.Second)
	assert.Equal(t, fixedTime.Add(1*time.Second), provider.Now(), "Time should be advanced by 1 second")
}

func TestMock_Advance(t *testing.T) {
	initialTime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	duration := 1 * time.Hour

	provider := Mock{CurrentTime: initialTime}
	provider.Advance(duration)

	assert.Equal(t, initialTime.Add(duration), provider.Now(), "Time should be advanced by the specified duration")
}

func TestDefault(t *testing.T) {
	provider := Default()

	_, ok := provider.(RealProvider)
	assert.True(t, ok, "Default provider should be a RealProvider")
}

func TestNewMock(t *testing.T) {
	fixedTime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	provider := NewMock(fixedTime)

	assert.Equal(t, fixedTime, provider.Now(), "Mock provider should have the correct time")
}
