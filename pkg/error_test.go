package pkg

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostusb/hostusb/host/native"
)

func TestTranslate_KnownCodes(t *testing.T) {
	cases := []struct {
		status native.Status
		want   error
	}{
		{native.ETimeout, ErrTimeout},
		{native.EAborted, ErrAborted},
		{native.EBadArgument, ErrInvalidArgument},
		{native.ENotFound, ErrNotFound},
		{native.EUnsupported, ErrNotCapable},
	}
	for _, tc := range cases {
		err := Translate(tc.status)
		assert.ErrorIs(t, err, tc.want, "status %s", tc.status)
	}
}

func TestTranslate_Success(t *testing.T) {
	assert.NoError(t, Translate(native.OK))
}

func TestTranslate_UnmappedCodeCarriesOriginal(t *testing.T) {
	for _, s := range []native.Status{native.EStall, native.ENoDevice, native.EBusy, native.EIO, native.Status(-1234)} {
		err := Translate(s)
		var ne *NativeError
		require.ErrorAs(t, err, &ne, "status %s", s)
		assert.Equal(t, s, ne.Code)
	}
}

func TestTranslate_TotalOverNamedCodes(t *testing.T) {
	// Every named code must map to exactly one typed error.
	all := []native.Status{
		native.ETimeout, native.EAborted, native.EBadArgument,
		native.ENotFound, native.EUnsupported, native.EStall,
		native.ENoDevice, native.EBusy, native.EIO,
	}
	for _, s := range all {
		require.Error(t, Translate(s), "status %s", s)
	}
}

func TestTranslateErr_PassThrough(t *testing.T) {
	wrapped := fmt.Errorf("resolving interface 3: %w", ErrNotFound)
	assert.Equal(t, wrapped, TranslateErr(wrapped))

	ne := &NativeError{Code: native.EStall}
	assert.ErrorIs(t, TranslateErr(fmt.Errorf("wrapped: %w", ne)), ne)
}

func TestTranslateErr_ContextErrors(t *testing.T) {
	assert.ErrorIs(t, TranslateErr(context.DeadlineExceeded), ErrTimeout)
	assert.ErrorIs(t, TranslateErr(context.Canceled), ErrAborted)
}

func TestTranslateErr_GenericNativeFailure(t *testing.T) {
	cause := errors.New("transport exploded")
	err := TranslateErr(cause)

	var ne *NativeError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, native.EIO, ne.Code)
	assert.ErrorIs(t, err, cause)
}

func TestTranslateErr_Nil(t *testing.T) {
	assert.NoError(t, TranslateErr(nil))
}
