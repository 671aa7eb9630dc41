// fitsyncd はフィットネスプロバイダーとアクティビティレジャーを
// 同期するデーモン。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/fitsync/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fitsyncd: %v\n", err)
		os.Exit(1)
	}
}
