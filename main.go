package main

import "github.com/mailsift/mailsift/cmd"

func main() {
	cmd.Execute()
}
