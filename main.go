package main

import "github.com/frahmantamala/tutor-billing/cmd"

func main() {
	cmd.Execute()
}
