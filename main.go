package main

import "github.com/khanhnv2901/secheckup/cmd"

var execCmd = cmd.Execute

func main() {
	execCmd()
}
