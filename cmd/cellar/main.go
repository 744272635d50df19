// Copyright 2024 The cellar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command cellar builds and installs formulas from source into a local
// cellar.
package main

import "github.com/goplus/cellar/cmd/cellar/internal"

func main() {
	internal.Execute()
}
