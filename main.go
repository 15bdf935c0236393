package main

import "github.com/sylvester-francis/Resource-Reserver-sub000/cmd"

func main() {
	cmd.Execute()
}
