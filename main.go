package main

import "github.com/andresmejia3/facepunch/cmd"

func main() {
	cmd.Execute()
}
