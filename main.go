package main

import "github.com/Todor-5rov/Vexcel/cmd"

func main() {
	cmd.Execute()
}
