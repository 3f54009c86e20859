// Copyright 2018 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux
// +build linux

package color

import "golang.org/x/sys/unix"

const ioctlTermios = unix.TCGETS
