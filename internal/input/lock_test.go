package input

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/stasher/internal/errors"
	"github.com/hpungsan/stasher/internal/stash"
)

type nopController struct{ released int }

func (c *nopController) MoveTo(stash.Point) error { return nil }
func (c *nopController) KeyDown(Key) error        { return nil }
func (c *nopController) KeyUp(Key) error          { return nil }
func (c *nopController) Click(Button) error       { return nil }
func (c *nopController) Delay() time.Duration     { return 0 }
func (c *nopController) Release() error {
	c.released++
	return nil
}

type nopProvider struct {
	ctrl *nopController
	err  error
}

func (p *nopProvider) Acquire(string) (Controller, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.ctrl, nil
}

func TestLockedProvider_ExclusiveInProcess(t *testing.T) {
	inner := &nopProvider{ctrl: &nopController{}}
	p := NewLockedProvider(inner, filepath.Join(t.TempDir(), "input.lock"))

	c, err := p.Acquire("batch-1")
	require.NoError(t, err)

	_, err = p.Acquire("batch-2")
	assert.True(t, errors.Is(err, errors.ErrInputUnavailable))

	require.NoError(t, c.Release())
	require.NoError(t, c.Release(), "second release is a no-op")
	assert.Equal(t, 1, inner.ctrl.released)

	c, err = p.Acquire("batch-2")
	require.NoError(t, err)
	require.NoError(t, c.Release())
}

func TestLockedProvider_ExclusiveAcrossHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.lock")
	a := NewLockedProvider(&nopProvider{ctrl: &nopController{}}, path)
	b := NewLockedProvider(&nopProvider{ctrl: &nopController{}}, path)

	c, err := a.Acquire("a")
	require.NoError(t, err)

	_, err = b.Acquire("b")
	assert.True(t, errors.Is(err, errors.ErrInputUnavailable))

	require.NoError(t, c.Release())
	c, err = b.Acquire("b")
	require.NoError(t, err)
	require.NoError(t, c.Release())
}

func TestLockedProvider_InnerFailureReleasesLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.lock")
	failing := NewLockedProvider(&nopProvider{err: errors.NewInputUnavailable("no service")}, path)

	_, err := failing.Acquire("a")
	require.Error(t, err)

	c, err := NewLockedProvider(&nopProvider{ctrl: &nopController{}}, path).Acquire("b")
	require.NoError(t, err)
	require.NoError(t, c.Release())
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey(" Ctrl ")
	require.NoError(t, err)
	assert.Equal(t, KeyCtrl, k)

	_, err = ParseKey("hyper")
	assert.Error(t, err)
}
