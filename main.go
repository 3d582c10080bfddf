package main

import (
	"github.com/Rhoxio/ChongBot/cmd"
)

func main() {
	cmd.Execute()
}
