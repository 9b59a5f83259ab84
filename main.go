package main

import "github.com/mirrordesk/perp-mirror/cmd"

func main() {
	cmd.Execute()
}
