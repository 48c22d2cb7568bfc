package hardware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wfunc/daq-ao/internal/errors"
)

func TestNormalizeDescriptor(t *testing.T) {
	v, err := NormalizeDescriptor("Dev1/ao0:1", "channels")
	assert.NoError(t, err)
	assert.Equal(t, "Dev1/ao0:1", v)

	v, err = NormalizeDescriptor([]byte("PFI5"), "clock")
	assert.NoError(t, err)
	assert.Equal(t, "PFI5", v)

	_, err = NormalizeDescriptor(123, "channels")
	assert.True(t, errors.Is(err, errors.ErrInvalidConfigValue))

	_, err = NormalizeDescriptor(nil, "clock")
	assert.True(t, errors.Is(err, errors.ErrInvalidConfigValue))
}

func TestDeviceName(t *testing.T) {
	assert.Equal(t, "Dev1", DeviceName("Dev1/ao0"))
	assert.Equal(t, "Dev1", DeviceName("Dev1/ao0:3, Dev1/ao5"))
	assert.Equal(t, "Dev2", DeviceName(" Dev2/ao1:ao3"))
	assert.Equal(t, "Dev1", DeviceName("Dev1"))
}
