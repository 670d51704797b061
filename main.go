// ./main.go
package main

import (
	"github.com/networkdynamics/gotok/cmd"
)

func main() {
	cmd.Execute()
}
