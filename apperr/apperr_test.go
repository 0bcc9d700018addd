package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CarriesKindAndMessage(t *testing.T) {
	err := New(KindBadAudio, "not a wav file")
	require.Error(t, err)
	assert.Equal(t, KindBadAudio, KindOf(err))
	assert.Contains(t, err.Error(), "not a wav file")
	assert.Contains(t, err.Error(), "bad_audio")
}

func TestNewf_Formats(t *testing.T) {
	err := Newf(KindNotFound, "song %d not found", 42)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Contains(t, err.Error(), "song 42 not found")
}

func TestWrap_NilIsNil(t *testing.T) {
	assert.NoError(t, Wrap(KindIOError, nil))
}

func TestWrap_PreservesUnwrap(t *testing.T) {
	base := errors.New("disk full")
	wrapped := Wrap(KindIOError, base)
	require.Error(t, wrapped)
	assert.Equal(t, KindIOError, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, base))
}

func TestWrapf_NilIsNil(t *testing.T) {
	assert.NoError(t, Wrapf(KindIOError, nil, "context %d", 1))
}

func TestWrapf_PrependsMessageAndPreservesUnwrap(t *testing.T) {
	base := errors.New("connection refused")
	wrapped := Wrapf(KindIOError, base, "dialing %s", "mongo")
	require.Error(t, wrapped)
	assert.Contains(t, wrapped.Error(), "dialing mongo")
	assert.Contains(t, wrapped.Error(), "connection refused")
	assert.True(t, errors.Is(wrapped, base))
}

func TestKindOf_UntaggedErrorIsUnknown(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestIs(t *testing.T) {
	err := New(KindDuplicatePath, "already registered")
	assert.True(t, Is(err, KindDuplicatePath))
	assert.False(t, Is(err, KindNotFound))
}
