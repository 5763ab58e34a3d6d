/*
	Copyright 2026 OpenVelo
*/

package main

import "github.com/openvelo/ride-engine/cmd"

func main() {
	cmd.Execute()
}
