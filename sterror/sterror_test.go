// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sterror

import (
	"errors"
	"fmt"
	"testing"
)

const (
	emptyOp        Op     = ""
	filledOpOne    Op     = "decode header"
	filledOpTwo    Op     = "another operation"
	emptyScope     Scope  = ""
	filledScopeOne Scope  = Patch
	filledScopeTwo Scope  = Host
	emptyInfo      string = ""
	filledInfo     string = "a lot of info"
)

var (
	errEmpty             error
	errFilled            = fmt.Errorf("this is an error")
	errErrorEmpty        = Error{"", "", nil, "unspecified"}
	errErrorPartialOne   = Error{emptyOp, filledScopeOne, errEmpty, filledInfo}
	errErrorPartialTwo   = Error{filledOpTwo, filledScopeTwo, errEmpty, filledInfo}
	errErrorPartialThree = Error{filledOpTwo, emptyScope, errEmpty, emptyInfo}
	errErrorFilledOne    = Error{filledOpOne, filledScopeOne, errFilled, filledInfo}
	errErrorFilledTwo    = Error{filledOpTwo, filledScopeOne, errFilled, filledInfo}
	errErrorFilledThree  = Error{filledOpTwo, filledScopeTwo, errFilled, filledInfo}
	errErrorWrapped      = Error{emptyOp, filledScopeOne, errErrorFilledOne, emptyInfo}
)

func TestNewError(t *testing.T) {
	t.Run("check if generated error is correct", func(t *testing.T) {
		cases := []struct{ got, want error }{
			{E(), errErrorEmpty},
			{E(filledScopeOne, filledInfo), errErrorPartialOne},
			{E(filledOpOne, filledScopeOne, filledInfo, errFilled), errErrorFilledOne},
			{E(filledOpTwo), errErrorPartialThree},
			{E(filledScopeOne, errErrorFilledOne), errErrorWrapped},
		}

		for _, c := range cases {
			assertEqualString(t, c.got.Error(), c.want.Error())
		}
	})
}

func TestErrorString(t *testing.T) {
	got := E(Patch, Op("decode header"), "buffer too small", errFilled).Error()
	want := "Microcode patch: decode header - buffer too small: this is an error"

	assertEqualString(t, got, want)
}

func TestEqual(t *testing.T) {
	t.Run("check if errors match", func(t *testing.T) {
		cases := []struct{ got, want Error }{
			{E(), errErrorEmpty},
			{E(filledScopeOne, filledInfo), errErrorPartialOne},
			{E(filledOpOne, filledScopeOne, filledInfo, errFilled), errErrorFilledOne},
			{E(filledOpTwo), errErrorPartialThree},
			{E(filledScopeOne, errErrorFilledOne), errErrorWrapped},
		}

		for _, c := range cases {
			assertEqual(t, c.got, c.want)
		}
	})
	t.Run("ignore unknown args", func(t *testing.T) {
		cases := []struct{ got, want Error }{
			{E(filledScopeOne, filledInfo, 3.5), errErrorPartialOne},
			{E(filledOpOne, filledInfo, filledScopeOne, filledInfo, errFilled), errErrorFilledOne},
			{E(filledOpTwo, 2), errErrorPartialThree},
		}

		for _, c := range cases {
			assertEqual(t, c.got, c.want)
		}
	})
	t.Run("check if errors do not match", func(t *testing.T) {
		cases := []struct{ got, want Error }{
			{errErrorEmpty, errErrorPartialOne},
			{errErrorPartialOne, errErrorPartialTwo},
			{errErrorPartialTwo, errErrorFilledTwo},
			{errErrorFilledOne, errErrorPartialTwo},
			{errErrorPartialOne, errErrorFilledOne},
			{errErrorFilledOne, errErrorWrapped},
			{errErrorFilledTwo, errErrorFilledThree},
			{errErrorWrapped, errErrorEmpty},
		}

		for _, c := range cases {
			assertNotEqual(t, c.got, c.want)
		}
	})
}

func TestUnwrap(t *testing.T) {
	sentinel := errors.New("sentinel")
	err := E(Update, Op("run"), E(Dispatch, sentinel))

	if !errors.Is(err, sentinel) {
		t.Errorf("errors.Is(%v, sentinel) = false, want true", err)
	}
}

func assertEqualString(tb testing.TB, got, want string) {
	tb.Helper()

	if got != want {
		tb.Errorf("wanted: %v\n but got: %v.", want, got)
	}
}

func assertEqual(tb testing.TB, got, want Error) {
	tb.Helper()

	if !Equal(got, want) {
		tb.Errorf("wanted: %v\n and got: %v\n did not match.", want, got)
	}
}

func assertNotEqual(tb testing.TB, got, want Error) {
	tb.Helper()

	if Equal(got, want) {
		tb.Errorf("wanted: %v\n and got: %v\n did match.", want, got)
	}
}
