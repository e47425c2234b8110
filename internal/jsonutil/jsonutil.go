// Copyright 2021 the System Transparency Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package jsonutil has helpers for the JSON configuration.
package jsonutil

import (
	"reflect"
	"strings"
)

// Tags returns the json key names of struct or struct pointer s.
// Options such as omitempty are stripped and ignored fields skipped.
func Tags(s interface{}) []string {
	tags := make([]string, 0)

	typ := reflect.TypeOf(s)
	if typ == nil {
		return tags
	}

	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}

	if typ.Kind() != reflect.Struct {
		return tags
	}

	for i := 0; i < typ.NumField(); i++ {
		tag := typ.Field(i).Tag.Get("json")

		name, _, _ := strings.Cut(tag, ",")
		if name != "" && name != "-" {
			tags = append(tags, name)
		}
	}

	return tags
}
