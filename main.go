package main

import "github.com/tabloom/tabloom/cmd"

func main() {
	cmd.Execute()
}
