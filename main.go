package main

import "github.com/andresmejia3/autoflip/cmd"

func main() {
	cmd.Execute()
}
