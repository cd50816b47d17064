// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command votegatectl is the operator CLI of the votegate gateway.
package main

import "github.com/taibuivan/votegate/cmd/votegatectl/cmd"

func main() {
	cmd.Execute()
}
