// Entry point; all CLI handling lives in the Cobra commands under cmd/.
package main

import (
	"github.com/pthm-cable/plenum/cmd"
)

func main() {
	cmd.Execute()
}
