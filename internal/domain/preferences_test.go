package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPreferences(t *testing.T) {
	p := DefaultPreferences()
	for _, c := range Categories() {
		assert.True(t, p.Enabled(c), c)
	}
	assert.False(t, p.Enabled("Winter Storm Warning"))
}

func TestPreferences_Set(t *testing.T) {
	p := DefaultPreferences()

	require.NoError(t, p.Set(CategoryFlashFloodWarning, false))
	assert.False(t, p.Enabled(CategoryFlashFloodWarning))

	err := p.Set("Winter Storm Warning", true)
	require.ErrorIs(t, err, ErrUnknownCategory)
	assert.False(t, p.Enabled("Winter Storm Warning"))
}

func TestNewPreferences_RejectsUnknownKeys(t *testing.T) {
	_, err := NewPreferences(map[string]bool{"Blizzard Warning": true})
	require.ErrorIs(t, err, ErrUnknownCategory)

	p, err := NewPreferences(map[string]bool{CategoryTornadoWarning: false})
	require.NoError(t, err)
	assert.False(t, p.Enabled(CategoryTornadoWarning))
	assert.True(t, p.Enabled(CategoryHurricaneWarning))
}

func TestPreferences_CloneIsIndependent(t *testing.T) {
	p := DefaultPreferences()
	c := p.Clone()
	require.NoError(t, c.Set(CategoryTornadoWarning, false))

	assert.True(t, p.Enabled(CategoryTornadoWarning))
	assert.False(t, c.Enabled(CategoryTornadoWarning))
}

func TestUserMessage(t *testing.T) {
	assert.Empty(t, UserMessage(nil))
	assert.Contains(t, UserMessage(fmt.Errorf("locate: %w", ErrTimeout)), "in time")
	assert.Contains(t, UserMessage(ErrNoMatch), "Could not find")
	assert.Equal(t, UserMessage(ErrServiceError), UserMessage(ErrNetworkFailure))
	assert.Equal(t, "Something went wrong", UserMessage(errors.New("boom")))
}
